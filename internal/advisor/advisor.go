// Package advisor asks a text-generation collaborator to explain errors
// the engine cannot fix mechanically. Answers are cached by normalized
// prompt and identical concurrent requests share one call.
package advisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/resolvd/internal/action"
	"github.com/fyrsmithlabs/resolvd/internal/metrics"
)

// Defaults applied by New.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultCacheSize = 256
	DefaultCacheTTL  = time.Hour
)

// Options configures an Advisor.
type Options struct {
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Advisor fronts an LLMClient with a response cache.
type Advisor struct {
	client  LLMClient
	cache   *expirable.LRU[string, string]
	group   singleflight.Group
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates an advisor around client.
func New(client LLMClient, opts Options, logger *zap.Logger) *Advisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &Advisor{
		client:  client,
		cache:   expirable.NewLRU[string, string](opts.CacheSize, nil, opts.CacheTTL),
		timeout: opts.Timeout,
		logger:  logger,
		metrics: metrics.New(),
	}
}

// CacheKey identifies the advice for p. Payloads naming a signature are
// keyed on signature, kind and guidance; the rest on the normalized prompt.
func CacheKey(p action.AIRequestPayload) string {
	norm := normalize(p.Prompt)
	if p.Signature != "" {
		norm = "sig\x00" + p.Signature + "\x00" + p.Kind + "\x00" + normalize(p.Guidance)
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Advise returns explanatory text for p. Errors mean the caller should
// substitute its own fallback; nothing is cached on failure.
func (a *Advisor) Advise(ctx context.Context, p action.AIRequestPayload) (string, error) {
	if p.Prompt == "" {
		return "", errors.New("advisor prompt is empty")
	}
	key := CacheKey(p)
	if text, ok := a.cache.Get(key); ok {
		a.metrics.AdvisorRequests.WithLabelValues("hit").Inc()
		return text, nil
	}

	// The shared call outlives any single waiter; each waiter still honours
	// its own context below.
	ch := a.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		start := time.Now()
		text, err := a.client.Complete(callCtx, p.Prompt)
		a.metrics.AdvisorDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				a.metrics.AdvisorRequests.WithLabelValues("timeout").Inc()
				return "", fmt.Errorf("advisor timed out after %s: %w", a.timeout, context.DeadlineExceeded)
			}
			a.metrics.AdvisorRequests.WithLabelValues("error").Inc()
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			a.metrics.AdvisorRequests.WithLabelValues("error").Inc()
			return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
		}
		a.cache.Add(key, text)
		a.metrics.AdvisorRequests.WithLabelValues("miss").Inc()
		return text, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			a.logger.Warn("advisor request failed",
				zap.String("signature", p.Signature),
				zap.String("kind", p.Kind),
				zap.Error(res.Err))
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Purge drops every cached answer.
func (a *Advisor) Purge() {
	a.cache.Purge()
}

// Len reports the number of cached answers.
func (a *Advisor) Len() int {
	return a.cache.Len()
}
