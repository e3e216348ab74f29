// Package config provides configuration loading for resolvd.
//
// Configuration is read from a YAML file and overridden by RESOLVD_-prefixed
// environment variables. Every section has defaults, so an empty file (or no
// file at all) yields a runnable in-memory engine.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete resolvd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Engine        EngineConfig        `koanf:"engine"`
	Advisor       AdvisorConfig       `koanf:"advisor"`
	Store         StoreConfig         `koanf:"store"`
	Redis         RedisConfig         `koanf:"redis"`
	NATS          NATSConfig          `koanf:"nats"`
	Alerts        AlertsConfig        `koanf:"alerts"`
	Load          LoadConfig          `koanf:"load"`
	Knowledge     KnowledgeConfig     `koanf:"knowledge"`
	Secrets       SecretsConfig       `koanf:"secrets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// EngineConfig tunes classification, escalation and learning.
type EngineConfig struct {
	// RecurrenceWindow is the span over which repeat occurrences are counted.
	RecurrenceWindow Duration `koanf:"recurrence_window"`

	// PreventiveAt and SelfHealAt are the escalation ladder rungs.
	PreventiveAt int `koanf:"preventive_at"`
	SelfHealAt   int `koanf:"self_heal_at"`

	AdaptationThreshold float64 `koanf:"adaptation_threshold"`

	// AllowDestructive pre-confirms destructive self-healing actions such
	// as killing idle connections. Off by default.
	AllowDestructive bool `koanf:"allow_destructive"`

	// LoadHoldThreshold holds self-healing at preventive when cpu or memory
	// utilisation reaches it. Unset means 0.9.
	LoadHoldThreshold float64 `koanf:"load_hold_threshold"`

	// DisableLoadHold turns the load hold off regardless of the threshold.
	DisableLoadHold bool `koanf:"disable_load_hold"`

	// OutcomeWait bounds how long a plan waits for its executor report.
	OutcomeWait Duration `koanf:"outcome_wait"`

	// Retention prunes non-learned patterns idle for longer than this.
	// Zero keeps patterns forever.
	Retention     Duration `koanf:"retention"`
	PruneInterval Duration `koanf:"prune_interval"`
}

// AdvisorConfig configures the text-generation collaborator.
type AdvisorConfig struct {
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	APIKey    Secret   `koanf:"api_key"`
	BaseURL   string   `koanf:"base_url"`
	Timeout   Duration `koanf:"timeout"`
	CacheSize int      `koanf:"cache_size"`
	CacheTTL  Duration `koanf:"cache_ttl"`
}

// StoreConfig selects the pattern store backend.
type StoreConfig struct {
	Backend string `koanf:"backend"`
}

// RedisConfig holds connection settings for the redis pattern store.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  Secret `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// NATSConfig configures the outcome/plan bus.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	OutcomeSubject string `koanf:"outcome_subject"`
	PlanSubject    string `koanf:"plan_subject"`
}

// AlertsConfig holds error-rate alert thresholds.
type AlertsConfig struct {
	ErrorRatePerHour int `koanf:"error_rate_per_hour"`
	CriticalPerHour  int `koanf:"critical_per_hour"`
}

// LoadConfig selects where database load snapshots come from.
type LoadConfig struct {
	Source string `koanf:"source"`

	// Static values, used when Source is "static".
	CPU         float64 `koanf:"cpu"`
	Memory      float64 `koanf:"memory"`
	Connections int     `koanf:"connections"`

	// PromQL source, used when Source is "prometheus".
	PrometheusURL    string   `koanf:"prometheus_url"`
	CPUQuery         string   `koanf:"cpu_query"`
	MemoryQuery      string   `koanf:"memory_query"`
	ConnectionsQuery string   `koanf:"connections_query"`
	Timeout          Duration `koanf:"timeout"`
}

// KnowledgeConfig points at an operator knowledge base replacing the
// built-in one.
type KnowledgeConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// SecretsConfig tunes redaction of error messages and context.
type SecretsConfig struct {
	// AllowListPath names a TOML file whose [allowlist] regexes are never
	// redacted.
	AllowListPath string `koanf:"allowlist_path"`
}

// Load sources.
const (
	LoadStatic     = "static"
	LoadPrometheus = "prometheus"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Advisor providers.
const (
	ProviderStatic    = "static"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// LoadHold returns the effective load hold threshold; zero means disabled.
func (e EngineConfig) LoadHold() float64 {
	if e.DisableLoadHold {
		return 0
	}
	return e.LoadHoldThreshold
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	e := c.Engine
	if e.RecurrenceWindow <= 0 {
		return errors.New("engine.recurrence_window must be positive")
	}
	if e.PreventiveAt < 2 {
		return fmt.Errorf("engine.preventive_at must be >= 2, got %d", e.PreventiveAt)
	}
	if e.SelfHealAt <= e.PreventiveAt {
		return fmt.Errorf("engine.self_heal_at (%d) must exceed preventive_at (%d)", e.SelfHealAt, e.PreventiveAt)
	}
	if e.AdaptationThreshold <= 0 || e.AdaptationThreshold >= 1 {
		return fmt.Errorf("engine.adaptation_threshold must be in (0,1), got %v", e.AdaptationThreshold)
	}
	if e.LoadHoldThreshold < 0 || e.LoadHoldThreshold > 1 {
		return fmt.Errorf("engine.load_hold_threshold must be in [0,1], got %v", e.LoadHoldThreshold)
	}

	switch c.Advisor.Provider {
	case ProviderStatic:
	case ProviderAnthropic, ProviderOpenAI:
		if !c.Advisor.APIKey.IsSet() {
			return fmt.Errorf("advisor.api_key required for provider %q", c.Advisor.Provider)
		}
	default:
		return fmt.Errorf("unknown advisor provider %q", c.Advisor.Provider)
	}
	if c.Advisor.Timeout <= 0 {
		return errors.New("advisor.timeout must be positive")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr required when store.backend is redis")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Load.Source {
	case LoadStatic:
	case LoadPrometheus:
		if c.Load.PrometheusURL == "" {
			return errors.New("load.prometheus_url required when load.source is prometheus")
		}
	default:
		return fmt.Errorf("unknown load source %q", c.Load.Source)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url required when nats is enabled")
	}

	if c.Knowledge.Watch && c.Knowledge.Path == "" {
		return errors.New("knowledge.path required when knowledge.watch is enabled")
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "resolvd"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Engine.RecurrenceWindow == 0 {
		cfg.Engine.RecurrenceWindow = Duration(24 * time.Hour)
	}
	if cfg.Engine.PreventiveAt == 0 {
		cfg.Engine.PreventiveAt = 2
	}
	if cfg.Engine.SelfHealAt == 0 {
		cfg.Engine.SelfHealAt = 3
	}
	if cfg.Engine.AdaptationThreshold == 0 {
		cfg.Engine.AdaptationThreshold = 0.7
	}
	if cfg.Engine.LoadHoldThreshold == 0 && !cfg.Engine.DisableLoadHold {
		cfg.Engine.LoadHoldThreshold = 0.9
	}
	if cfg.Engine.OutcomeWait == 0 {
		cfg.Engine.OutcomeWait = Duration(10 * time.Minute)
	}
	if cfg.Engine.PruneInterval == 0 {
		cfg.Engine.PruneInterval = Duration(time.Hour)
	}

	if cfg.Advisor.Provider == "" {
		cfg.Advisor.Provider = ProviderStatic
	}
	if cfg.Advisor.Timeout == 0 {
		cfg.Advisor.Timeout = Duration(30 * time.Second)
	}
	if cfg.Advisor.CacheSize == 0 {
		cfg.Advisor.CacheSize = 256
	}
	if cfg.Advisor.CacheTTL == 0 {
		cfg.Advisor.CacheTTL = Duration(time.Hour)
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreMemory
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "resolvd:pattern:"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.OutcomeSubject == "" {
		cfg.NATS.OutcomeSubject = "resolvd.outcomes"
	}
	if cfg.NATS.PlanSubject == "" {
		cfg.NATS.PlanSubject = "resolvd.plans"
	}

	if cfg.Alerts.ErrorRatePerHour == 0 {
		cfg.Alerts.ErrorRatePerHour = 5
	}
	if cfg.Alerts.CriticalPerHour == 0 {
		cfg.Alerts.CriticalPerHour = 3
	}

	if cfg.Load.Source == "" {
		cfg.Load.Source = LoadStatic
	}
	if cfg.Load.Timeout == 0 {
		cfg.Load.Timeout = Duration(2 * time.Second)
	}
}
