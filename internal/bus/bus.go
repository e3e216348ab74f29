// Package bus carries plans to executors and outcomes back over NATS.
//
// Plans are published on <plan subject>.<strategy>, so an executor that
// only applies schema fixes can subscribe to resolvd.plans.self_healing.
// Outcomes arrive as JSON on the outcome subject; when the message has a
// reply subject the bus answers with an acknowledgement.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/config"
	"github.com/fyrsmithlabs/resolvd/internal/engine"
	"github.com/fyrsmithlabs/resolvd/internal/learner"
)

// Default subjects.
const (
	DefaultOutcomeSubject = "resolvd.outcomes"
	DefaultPlanSubject    = "resolvd.plans"
)

// handleTimeout bounds processing of one outcome message.
const handleTimeout = 10 * time.Second

// OutcomeHandler receives decoded outcomes.
type OutcomeHandler interface {
	ReportOutcome(ctx context.Context, o learner.Outcome) error
}

// Ack is the reply sent for request-style outcome messages.
type Ack struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Bus publishes plans and consumes outcomes on one connection.
type Bus struct {
	nc             *nats.Conn
	outcomeSubject string
	planSubject    string
	logger         *zap.Logger
	sub            *nats.Subscription
}

// Connect dials NATS with reconnect settings suited to a long-running
// daemon.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("resolvd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// New wraps an open connection. Empty subjects take the defaults.
func New(nc *nats.Conn, cfg config.NATSConfig, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		nc:             nc,
		outcomeSubject: cfg.OutcomeSubject,
		planSubject:    cfg.PlanSubject,
		logger:         logger,
	}
	if b.outcomeSubject == "" {
		b.outcomeSubject = DefaultOutcomeSubject
	}
	if b.planSubject == "" {
		b.planSubject = DefaultPlanSubject
	}
	return b
}

// PlanSubject returns the subject a plan with strategy st is published on.
func (b *Bus) PlanSubject(st string) string {
	return b.planSubject + "." + st
}

// PublishPlan implements engine.PlanPublisher.
func (b *Bus) PublishPlan(ctx context.Context, p *engine.ResolutionPlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	msg := nats.NewMsg(b.PlanSubject(string(p.Strategy)))
	msg.Data = data
	msg.Header.Set("Plan-Id", p.ID)
	msg.Header.Set("Signature", p.Signature)
	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish plan %s: %w", p.ID, err)
	}
	return nil
}

// SubscribeOutcomes starts delivering outcome messages to h.
func (b *Bus) SubscribeOutcomes(h OutcomeHandler) error {
	if b.sub != nil {
		return errors.New("outcome subscription already active")
	}
	sub, err := b.nc.Subscribe(b.outcomeSubject, func(m *nats.Msg) {
		b.handleOutcome(h, m)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.outcomeSubject, err)
	}
	b.sub = sub
	b.logger.Info("subscribed to outcomes", zap.String("subject", b.outcomeSubject))
	return nil
}

func (b *Bus) handleOutcome(h OutcomeHandler, m *nats.Msg) {
	var o learner.Outcome
	err := json.Unmarshal(m.Data, &o)
	if err != nil {
		err = fmt.Errorf("%w: %v", learner.ErrInvalidOutcome, err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		err = h.ReportOutcome(ctx, o)
		cancel()
	}

	if err != nil {
		b.logger.Warn("outcome rejected",
			zap.String("subject", m.Subject),
			zap.String("signature", o.Signature),
			zap.Error(err))
	}
	if m.Reply == "" {
		return
	}
	ack := Ack{Status: "accepted"}
	if err != nil {
		ack = Ack{Status: "rejected", Error: err.Error()}
	}
	data, _ := json.Marshal(ack)
	if rerr := m.Respond(data); rerr != nil {
		b.logger.Debug("outcome ack failed", zap.Error(rerr))
	}
}

// Ping reports whether the connection is usable.
func (b *Bus) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats %s", b.nc.Status())
	}
	return b.nc.FlushWithContext(ctx)
}

// Close drains the subscription and the connection.
func (b *Bus) Close() error {
	if b.sub != nil {
		if err := b.sub.Drain(); err != nil {
			b.logger.Debug("outcome subscription drain failed", zap.Error(err))
		}
	}
	return b.nc.Drain()
}

var _ engine.PlanPublisher = (*Bus)(nil)
