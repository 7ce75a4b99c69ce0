package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// Put is a single upsert statement, so readers never see a partial row.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const selectSnapshotColumns = `
	SELECT entity_id, snapshot_time, state, basis_event_count, last_sequence,
		precision_level, sources, state_digest, generated_at
	FROM entity_snapshots
`

// Put inserts or replaces the snapshot at (entity_id, snapshot_time).
func (s *SnapshotStore) Put(ctx context.Context, snap *domain.Snapshot) (err error) {
	if snap == nil || snap.EntityID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("snapshot_put", start, err) }()

	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	sources := make([]string, len(snap.Sources))
	for i, src := range snap.Sources {
		sources[i] = string(src)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO entity_snapshots (
			entity_id, snapshot_time, state, basis_event_count, last_sequence,
			precision_level, sources, state_digest, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (entity_id, snapshot_time) DO UPDATE SET
			state = EXCLUDED.state,
			basis_event_count = EXCLUDED.basis_event_count,
			last_sequence = EXCLUDED.last_sequence,
			precision_level = EXCLUDED.precision_level,
			sources = EXCLUDED.sources,
			state_digest = EXCLUDED.state_digest,
			generated_at = EXCLUDED.generated_at
	`,
		snap.EntityID,
		snap.SnapshotTime,
		state,
		snap.BasisEventCount,
		snap.LastSequence,
		snap.Precision.String(),
		sources,
		snap.StateDigest,
		snap.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("put snapshot %s@%d: %w", snap.EntityID, snap.SnapshotTime, err)
	}
	return nil
}

// Get retrieves the snapshot at exactly snapshotTime.
func (s *SnapshotStore) Get(ctx context.Context, entityID string, snapshotTime int64) (*domain.Snapshot, error) {
	return s.one(ctx, "snapshot_get", selectSnapshotColumns+`
		WHERE entity_id = $1 AND snapshot_time = $2
	`, entityID, snapshotTime)
}

// Nearest returns the latest snapshot with snapshot_time <= t.
func (s *SnapshotStore) Nearest(ctx context.Context, entityID string, t int64) (*domain.Snapshot, error) {
	return s.one(ctx, "snapshot_nearest", selectSnapshotColumns+`
		WHERE entity_id = $1 AND snapshot_time <= $2
		ORDER BY snapshot_time DESC
		LIMIT 1
	`, entityID, t)
}

func (s *SnapshotStore) one(ctx context.Context, operation, query string, args ...any) (*domain.Snapshot, error) {
	start := time.Now()
	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNotFoundError(err) {
			observe(operation, start, nil)
			return nil, storage.ErrNotFound
		}
		observe(operation, start, err)
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	observe(operation, start, nil)
	return snap, nil
}

// ListByEntity retrieves all snapshots for an entity, ordered by snapshot_time ASC.
func (s *SnapshotStore) ListByEntity(ctx context.Context, entityID string) (out []*domain.Snapshot, err error) {
	start := time.Now()
	defer func() { observe("snapshot_list", start, err) }()

	rows, err := s.pool.Query(ctx, selectSnapshotColumns+`
		WHERE entity_id = $1
		ORDER BY snapshot_time ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots %s: %w", entityID, err)
	}
	defer rows.Close()

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Delete removes the snapshot at (entityID, snapshotTime).
func (s *SnapshotStore) Delete(ctx context.Context, entityID string, snapshotTime int64) (err error) {
	start := time.Now()
	defer func() { observe("snapshot_delete", start, err) }()

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM entity_snapshots WHERE entity_id = $1 AND snapshot_time = $2
	`, entityID, snapshotTime)
	if err != nil {
		return fmt.Errorf("delete snapshot %s@%d: %w", entityID, snapshotTime, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Coverage counts snapshots with from <= snapshot_time <= through.
// A snapshot counts once for each distinct source in its sources array.
func (s *SnapshotStore) Coverage(ctx context.Context, from, through int64) (cov *storage.Coverage, err error) {
	start := time.Now()
	defer func() { observe("snapshot_coverage", start, err) }()

	cov = storage.NewCoverage()

	rows, err := s.pool.Query(ctx, `
		SELECT precision_level, COUNT(*)
		FROM entity_snapshots
		WHERE snapshot_time >= $1 AND snapshot_time <= $2
		GROUP BY precision_level
	`, from, through)
	if err != nil {
		return nil, fmt.Errorf("snapshot coverage by precision: %w", err)
	}
	for rows.Next() {
		var (
			precision string
			count     int64
		)
		if err := rows.Scan(&precision, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		p, err := domain.ParsePrecision(precision)
		if err != nil {
			rows.Close()
			return nil, err
		}
		cov.Total += count
		cov.ByPrecision[p] += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT src, COUNT(*)
		FROM (
			SELECT DISTINCT entity_id, snapshot_time, unnest(sources) AS src
			FROM entity_snapshots
			WHERE snapshot_time >= $1 AND snapshot_time <= $2
		) s
		GROUP BY src
	`, from, through)
	if err != nil {
		return nil, fmt.Errorf("snapshot coverage by source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source string
			count  int64
		)
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		cov.BySource[domain.Source(source)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage: %w", err)
	}
	return cov, nil
}

// scanSnapshot scans a single snapshot from a row.
func scanSnapshot(row pgx.Row) (*domain.Snapshot, error) {
	var (
		snap      domain.Snapshot
		state     []byte
		precision string
		sources   []string
	)
	err := row.Scan(
		&snap.EntityID,
		&snap.SnapshotTime,
		&state,
		&snap.BasisEventCount,
		&snap.LastSequence,
		&precision,
		&sources,
		&snap.StateDigest,
		&snap.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}

	if snap.Precision, err = domain.ParsePrecision(precision); err != nil {
		return nil, fmt.Errorf("snapshot %s@%d: %w", snap.EntityID, snap.SnapshotTime, err)
	}
	if err := json.Unmarshal(state, &snap.State); err != nil {
		return nil, fmt.Errorf("snapshot %s@%d: unmarshal state: %w", snap.EntityID, snap.SnapshotTime, err)
	}
	if snap.State == nil {
		snap.State = domain.State{}
	}
	snap.Sources = make([]domain.Source, len(sources))
	for i, src := range sources {
		snap.Sources[i] = domain.Source(src)
	}
	return &snap, nil
}
