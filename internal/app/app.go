// Package app assembles stores and services from configuration for the commands.
package app

import (
	"context"
	"fmt"

	"nba-temporal-panel/internal/config"
	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/eventlog"
	"nba-temporal-panel/internal/logging"
	"nba-temporal-panel/internal/provenance"
	"nba-temporal-panel/internal/query"
	"nba-temporal-panel/internal/snapshot"
	"nba-temporal-panel/internal/storage"
	chstore "nba-temporal-panel/internal/storage/clickhouse"
	"nba-temporal-panel/internal/storage/memory"
	"nba-temporal-panel/internal/storage/migrations"
	pgstore "nba-temporal-panel/internal/storage/postgres"
	"nba-temporal-panel/internal/verification"
)

// App holds the wired services of one process.
type App struct {
	Config *config.Config

	// Store is the raw event store; Events validates in front of it.
	Store     storage.EventStore
	Events    *eventlog.Log
	Snapshots storage.SnapshotStore

	Generator *snapshot.Generator
	Query     *query.Engine
	Tracker   *provenance.Tracker
	Verifier  *verification.SnapshotVerifier

	closers []func()
}

// Open connects the configured backends, applies migrations and builds the
// services. cfg must have been validated.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	var pool *pgstore.Pool
	if cfg.EventBackend == config.BackendPostgres || cfg.SnapshotBackend == config.BackendPostgres {
		p, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		if err := migrations.RunPostgresMigrations(ctx, p); err != nil {
			a.Close()
			return nil, err
		}
		pool = p
	}

	switch cfg.EventBackend {
	case config.BackendPostgres:
		a.Store = pgstore.NewEventStore(pool)
	case config.BackendClickHouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.Store = chstore.NewEventStore(conn)
	case config.BackendMemory:
		a.Store = memory.NewEventStore()
	default:
		a.Close()
		return nil, fmt.Errorf("%w: event_backend %q", config.ErrInvalidConfig, cfg.EventBackend)
	}

	switch cfg.SnapshotBackend {
	case config.BackendPostgres:
		a.Snapshots = pgstore.NewSnapshotStore(pool)
	case config.BackendMemory:
		a.Snapshots = memory.NewSnapshotStore()
	default:
		a.Close()
		return nil, fmt.Errorf("%w: snapshot_backend %q", config.ErrInvalidConfig, cfg.SnapshotBackend)
	}

	a.wire(cfg.Bounds())

	logging.Info().
		Str("event_backend", cfg.EventBackend).
		Str("snapshot_backend", cfg.SnapshotBackend).
		Msg("stores ready")
	return a, nil
}

// WithStores builds an App over existing stores. Used by tests and tools
// that share stores between components.
func WithStores(cfg *config.Config, events storage.EventStore, snapshots storage.SnapshotStore) *App {
	a := &App{Config: cfg, Store: events, Snapshots: snapshots}
	a.wire(cfg.Bounds())
	return a
}

// AllowFutureEvents lifts the upper event time bound, for historical backfills
// with clock-skewed sources.
func (a *App) AllowFutureEvents() {
	b := a.Config.Bounds()
	b.NoUpperBound = true
	a.wire(b)
}

func (a *App) wire(bounds domain.Bounds) {
	a.Events = eventlog.New(a.Store, bounds)
	a.Generator = snapshot.New(snapshot.Options{
		Events:    a.Events,
		Snapshots: a.Snapshots,
		Workers:   a.Config.Workers,
	})
	a.Query = query.New(query.Options{
		Events:         a.Events,
		Snapshots:      a.Snapshots,
		Threshold:      a.Config.Threshold(),
		SkipBasisCheck: !a.Config.VerifySnapshotBasis,
	})
	a.Tracker = provenance.NewTracker(a.Events, a.Snapshots)
	a.Verifier = verification.NewSnapshotVerifier(verification.Options{
		Generator: a.Generator,
		Events:    a.Events,
		Snapshots: a.Snapshots,
	})
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
