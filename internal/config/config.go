// Package config loads process configuration shared by the commands.
package config

import (
	"fmt"
	"runtime"
	"time"

	"nba-temporal-panel/internal/domain"
)

// Storage backend names.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is json or console.
	LogFormat string `koanf:"log_format"`

	PostgresDSN   string `koanf:"postgres_dsn"`
	ClickHouseDSN string `koanf:"clickhouse_dsn"`

	// EventBackend selects the event store: memory, postgres or clickhouse.
	EventBackend string `koanf:"event_backend"`

	// SnapshotBackend selects the snapshot store: memory or postgres.
	SnapshotBackend string `koanf:"snapshot_backend"`

	// MinEventTime is the earliest accepted event time (RFC3339).
	MinEventTime string `koanf:"min_event_time"`

	// MaxClockSkew is how far past now an event time may be.
	MaxClockSkew time.Duration `koanf:"max_clock_skew"`

	// Workers bounds concurrent entities during batch snapshot generation.
	Workers int `koanf:"workers"`

	// PrecisionThreshold is the coarsest precision a query result may have
	// and still be reported as reliable.
	PrecisionThreshold string `koanf:"precision_threshold"`

	// VerifySnapshotBasis makes queries recount events behind each snapshot
	// and bypass snapshots that predate late-arriving events. On by default.
	VerifySnapshotBasis bool `koanf:"verify_snapshot_basis"`

	// MetricsAddr is the listen address for /metrics; empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`

	// FeedURL is the WebSocket endpoint for live ingestion.
	FeedURL            string        `koanf:"feed_url"`
	FeedReconnectDelay time.Duration `koanf:"feed_reconnect_delay"`
	FeedPingInterval   time.Duration `koanf:"feed_ping_interval"`

	minEventTime time.Time
	threshold    domain.Precision
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "json",
		EventBackend:        BackendMemory,
		SnapshotBackend:     BackendMemory,
		MinEventTime:        domain.LeagueFounding.Format(time.RFC3339),
		Workers:             runtime.NumCPU(),
		VerifySnapshotBasis: true,
		PrecisionThreshold:  domain.PrecisionUnknown.String(),
		FeedReconnectDelay:  5 * time.Second,
		FeedPingInterval:    30 * time.Second,
	}
}

// Validate checks field values and resolves parsed forms.
// Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	switch c.EventBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn required for event_backend=postgres", ErrInvalidConfig)
		}
	case BackendClickHouse:
		if c.ClickHouseDSN == "" {
			return fmt.Errorf("%w: clickhouse_dsn required for event_backend=clickhouse", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown event_backend %q", ErrInvalidConfig, c.EventBackend)
	}

	switch c.SnapshotBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn required for snapshot_backend=postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown snapshot_backend %q", ErrInvalidConfig, c.SnapshotBackend)
	}

	minTime, err := time.Parse(time.RFC3339, c.MinEventTime)
	if err != nil {
		return fmt.Errorf("%w: min_event_time: %v", ErrInvalidConfig, err)
	}
	c.minEventTime = minTime

	threshold, err := domain.ParsePrecision(c.PrecisionThreshold)
	if err != nil {
		return fmt.Errorf("%w: precision_threshold: %v", ErrInvalidConfig, err)
	}
	c.threshold = threshold

	if c.MaxClockSkew < 0 {
		return fmt.Errorf("%w: max_clock_skew must not be negative", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// Bounds returns the event time window implied by the config.
// Validate must have succeeded.
func (c *Config) Bounds() domain.Bounds {
	return domain.Bounds{
		Min:     c.minEventTime,
		MaxSkew: c.MaxClockSkew,
		Now:     time.Now,
	}
}

// Threshold returns the parsed precision threshold. Validate must have succeeded.
func (c *Config) Threshold() domain.Precision {
	return c.threshold
}
