// Resolvd is the error pattern recognition and resolution daemon.
//
// It classifies submitted database errors, tracks their recurrence, selects a
// resolution strategy and learns from reported outcomes. Plans are served
// over HTTP and, when NATS is enabled, published on the plan subject.
//
// Usage:
//
//	# Start with ~/.config/resolvd/config.yaml (or defaults)
//	resolvd
//
//	# Use an explicit config file
//	resolvd -config /etc/resolvd/config.yaml
//
//	# Override via environment
//	RESOLVD_SERVER_HTTP_PORT=9191 RESOLVD_STORE_BACKEND=redis RESOLVD_REDIS_ADDR=localhost:6379 resolvd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/resolvd/internal/action"
	"github.com/fyrsmithlabs/resolvd/internal/advisor"
	"github.com/fyrsmithlabs/resolvd/internal/bus"
	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/config"
	"github.com/fyrsmithlabs/resolvd/internal/engine"
	"github.com/fyrsmithlabs/resolvd/internal/http"
	"github.com/fyrsmithlabs/resolvd/internal/knowledge"
	"github.com/fyrsmithlabs/resolvd/internal/learner"
	"github.com/fyrsmithlabs/resolvd/internal/loadmon"
	"github.com/fyrsmithlabs/resolvd/internal/logging"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
	"github.com/fyrsmithlabs/resolvd/internal/secrets"
	"github.com/fyrsmithlabs/resolvd/internal/strategy"
	"github.com/fyrsmithlabs/resolvd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/resolvd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  resolvd           Start the resolvd daemon\n")
			fmt.Fprintf(os.Stderr, "  resolvd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("resolvd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run builds every component from cfg and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	appLogger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = appLogger.Sync() }()
	logger := appLogger.Underlying()

	logger.Info("starting resolvd",
		zap.String("version", version),
		zap.String("store", cfg.Store.Backend),
		zap.String("advisor", cfg.Advisor.Provider),
		zap.Bool("nats", cfg.NATS.Enabled),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))
	if degraded, reason := tel.Degraded(); degraded {
		logger.Warn("telemetry degraded", zap.String("reason", reason))
	}

	store, ping, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	tracker := pattern.NewTracker(store, pattern.Config{
		Window:     cfg.Engine.RecurrenceWindow.Duration(),
		EscalateAt: cfg.Engine.SelfHealAt,
	}, logger.Named("pattern"))

	scrubber, err := newScrubber(cfg.Secrets)
	if err != nil {
		return err
	}
	kb, err := loadKnowledge(cfg.Knowledge)
	if err != nil {
		return err
	}

	llm, err := advisor.NewClient(cfg.Advisor)
	if err != nil {
		return fmt.Errorf("initializing advisor client: %w", err)
	}
	adv := advisor.New(llm, advisor.Options{
		Timeout:   cfg.Advisor.Timeout.Duration(),
		CacheSize: cfg.Advisor.CacheSize,
		CacheTTL:  cfg.Advisor.CacheTTL.Duration(),
	}, logger.Named("advisor"))

	load, err := loadmon.FromConfig(cfg.Load)
	if err != nil {
		return fmt.Errorf("initializing load source: %w", err)
	}

	eng, err := engine.New(engine.Options{
		Classifier: classifier.New(nil),
		Tracker:    tracker,
		Selector: strategy.NewSelector(strategy.Config{
			PreventiveAt:      cfg.Engine.PreventiveAt,
			SelfHealAt:        cfg.Engine.SelfHealAt,
			Window:            cfg.Engine.RecurrenceWindow.Duration(),
			LoadHoldThreshold: cfg.Engine.LoadHold(),
		}),
		Actions: action.NewSet(action.Options{
			Knowledge:        kb,
			Scrubber:         scrubber,
			AllowDestructive: cfg.Engine.AllowDestructive,
		}),
		Learner:   learner.New(tracker, cfg.Engine.AdaptationThreshold, logger.Named("learner")),
		Advisor:   adv,
		Knowledge: kb,
		Scrubber:  scrubber,
		Load:      load,
		Alerts: engine.AlertConfig{
			ErrorRatePerHour: cfg.Alerts.ErrorRatePerHour,
			CriticalPerHour:  cfg.Alerts.CriticalPerHour,
		},
		OutcomeWait: cfg.Engine.OutcomeWait.Duration(),
		Retention:   cfg.Engine.Retention.Duration(),
		Logger:      logger.Named("engine"),
	})
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}

	server, err := http.NewServer(eng, scrubber, logger.Named("http"), &http.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}
	if ping != nil {
		server.AddCheck("store", ping)
	}

	if cfg.NATS.Enabled {
		nc, err := bus.Connect(cfg.NATS.URL, logger.Named("nats"))
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		b := bus.New(nc, cfg.NATS, logger.Named("bus"))
		defer func() {
			if err := b.Close(); err != nil {
				logger.Warn("closing nats bus", zap.Error(err))
			}
		}()
		if err := b.SubscribeOutcomes(eng); err != nil {
			return fmt.Errorf("subscribing to outcomes: %w", err)
		}
		eng.SetPublisher(b)
		server.AddCheck("nats", b.Ping)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return eng.Run(gctx, cfg.Engine.PruneInterval.Duration())
	})
	if cfg.Knowledge.Watch {
		g.Go(func() error {
			return knowledge.Watch(gctx, cfg.Knowledge.Path, kb, logger.Named("knowledge"))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// loadKnowledge returns the operator knowledge base when one is configured,
// the built-in one otherwise.
func loadKnowledge(cfg config.KnowledgeConfig) (*knowledge.Base, error) {
	if cfg.Path == "" {
		kb, err := knowledge.Builtin()
		if err != nil {
			return nil, fmt.Errorf("loading built-in knowledge base: %w", err)
		}
		return kb, nil
	}
	kb, err := knowledge.LoadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base %s: %w", cfg.Path, err)
	}
	return kb, nil
}

// newScrubber builds the redactor, extending the default allow list with
// the operator file when one is configured.
func newScrubber(cfg config.SecretsConfig) (secrets.Scrubber, error) {
	scfg := secrets.DefaultConfig()
	if cfg.AllowListPath != "" {
		extra, err := secrets.LoadAllowList(cfg.AllowListPath)
		if err != nil {
			return nil, err
		}
		scfg.AllowList = append(scfg.AllowList, extra...)
	}
	s, err := secrets.New(scfg)
	if err != nil {
		return nil, fmt.Errorf("initializing scrubber: %w", err)
	}
	return s, nil
}

// openStore returns the configured pattern store and, for remote backends,
// a readiness check.
func openStore(ctx context.Context, cfg *config.Config) (pattern.Store, http.CheckFunc, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password.Value(),
			DB:       cfg.Redis.DB,
		})
		store := pattern.NewRedisStore(client, cfg.Redis.KeyPrefix)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return store, store.Ping, nil
	default:
		return pattern.NewMemoryStore(), nil, nil
	}
}
