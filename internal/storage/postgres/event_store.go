package postgres

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
// The identity column on entity_events assigns insertion sequences.
type EventStore struct {
	pool *Pool
	now  func() time.Time
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const insertEventQuery = `
	INSERT INTO entity_events (
		entity_id, event_time, precision_level, source, game_id, period,
		payload_kind, payload, recorded_at
	) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
	RETURNING insertion_sequence
`

const selectEventColumns = `
	SELECT insertion_sequence, entity_id, event_time, precision_level, source,
		COALESCE(game_id, ''), period, payload_kind, payload, recorded_at
	FROM entity_events
`

// execer is satisfied by both *Pool and pgx.Tx.
type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Append persists one event and assigns its insertion sequence.
func (s *EventStore) Append(ctx context.Context, e *domain.Event) (err error) {
	if e == nil || e.EntityID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("append", start, err) }()

	if err := s.insert(ctx, s.pool, e, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("append event %s: %w", e.EntityID, err)
	}
	return nil
}

// AppendBatch adds multiple events atomically. Sequences follow slice order.
func (s *EventStore) AppendBatch(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.EntityID == "" {
			return storage.ErrInvalidInput
		}
	}
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	recordedAt := s.now().UnixMilli()
	assigned := make([]int64, len(events))
	for i, e := range events {
		clone := *e
		if err := s.insert(ctx, tx, &clone, recordedAt); err != nil {
			observe("append_batch", start, err)
			return fmt.Errorf("append event in batch: %w", err)
		}
		assigned[i] = clone.Sequence
	}

	if err := tx.Commit(ctx); err != nil {
		observe("append_batch", start, err)
		return fmt.Errorf("commit tx: %w", err)
	}
	observe("append_batch", start, nil)

	// sequences become visible to the caller only after commit
	for i, e := range events {
		e.Sequence = assigned[i]
		e.RecordedAt = recordedAt
	}
	return nil
}

func (s *EventStore) insert(ctx context.Context, q execer, e *domain.Event, recordedAt int64) error {
	payload, err := json.Marshal(e.Payload.Stats)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var seq int64
	err = q.QueryRow(ctx, insertEventQuery,
		e.EntityID,
		e.EventTime,
		e.Precision.String(),
		string(e.Source),
		e.GameID,
		e.Period,
		string(e.Payload.Kind),
		payload,
		recordedAt,
	).Scan(&seq)
	if err != nil {
		return err
	}

	e.Sequence = seq
	e.RecordedAt = recordedAt
	return nil
}

// RangeQuery yields events with after < event_time <= through in fold order.
// Rows are streamed; each iteration runs the query again.
func (s *EventStore) RangeQuery(ctx context.Context, entityID string, after, through int64) iter.Seq2[*domain.Event, error] {
	return func(yield func(*domain.Event, error) bool) {
		start := time.Now()
		rows, err := s.pool.Query(ctx, selectEventColumns+`
			WHERE entity_id = $1 AND event_time > $2 AND event_time <= $3
			ORDER BY event_time ASC, insertion_sequence ASC
		`, entityID, after, through)
		if err != nil {
			observe("range_query", start, err)
			yield(nil, fmt.Errorf("range query %s: %w", entityID, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				observe("range_query", start, err)
				yield(nil, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		err = rows.Err()
		observe("range_query", start, err)
		if err != nil {
			yield(nil, fmt.Errorf("iterate events %s: %w", entityID, err))
		}
	}
}

// LatestBefore returns the most recent event with event_time <= t.
func (s *EventStore) LatestBefore(ctx context.Context, entityID string, t int64) (*domain.Event, error) {
	return s.one(ctx, "latest_before", selectEventColumns+`
		WHERE entity_id = $1 AND event_time <= $2
		ORDER BY event_time DESC, insertion_sequence DESC
		LIMIT 1
	`, entityID, t)
}

// Earliest returns the first event of an entity in fold order.
func (s *EventStore) Earliest(ctx context.Context, entityID string) (*domain.Event, error) {
	return s.one(ctx, "earliest", selectEventColumns+`
		WHERE entity_id = $1
		ORDER BY event_time ASC, insertion_sequence ASC
		LIMIT 1
	`, entityID)
}

func (s *EventStore) one(ctx context.Context, operation, query string, args ...any) (*domain.Event, error) {
	start := time.Now()
	e, err := scanEvent(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNotFoundError(err) {
			observe(operation, start, nil)
			return nil, storage.ErrNotFound
		}
		observe(operation, start, err)
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	observe(operation, start, nil)
	return e, nil
}

// Entities returns distinct entity ids, sorted ASC.
func (s *EventStore) Entities(ctx context.Context) (ids []string, err error) {
	start := time.Now()
	defer func() { observe("entities", start, err) }()

	rows, err := s.pool.Query(ctx, `SELECT DISTINCT entity_id FROM entity_events ORDER BY entity_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan entities: %w", err)
	}
	return ids, nil
}

// CountThrough returns the number of events for an entity with event_time <= t.
func (s *EventStore) CountThrough(ctx context.Context, entityID string, t int64) (n int64, err error) {
	start := time.Now()
	defer func() { observe("count_through", start, err) }()

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM entity_events WHERE entity_id = $1 AND event_time <= $2
	`, entityID, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events %s: %w", entityID, err)
	}
	return n, nil
}

// Coverage counts events with from <= event_time <= through.
func (s *EventStore) Coverage(ctx context.Context, from, through int64) (cov *storage.Coverage, err error) {
	start := time.Now()
	defer func() { observe("event_coverage", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT precision_level, source, COUNT(*)
		FROM entity_events
		WHERE event_time >= $1 AND event_time <= $2
		GROUP BY precision_level, source
	`, from, through)
	if err != nil {
		return nil, fmt.Errorf("event coverage: %w", err)
	}
	defer rows.Close()

	cov = storage.NewCoverage()
	for rows.Next() {
		var (
			precision, source string
			count             int64
		)
		if err := rows.Scan(&precision, &source, &count); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		p, err := domain.ParsePrecision(precision)
		if err != nil {
			return nil, err
		}
		cov.Total += count
		cov.ByPrecision[p] += count
		cov.BySource[domain.Source(source)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage: %w", err)
	}
	return cov, nil
}

// scanEvent scans a single event from a row.
func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		e         domain.Event
		precision string
		source    string
		kind      string
		payload   []byte
	)
	err := row.Scan(
		&e.Sequence,
		&e.EntityID,
		&e.EventTime,
		&precision,
		&source,
		&e.GameID,
		&e.Period,
		&kind,
		&payload,
		&e.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.Precision, err = domain.ParsePrecision(precision); err != nil {
		return nil, fmt.Errorf("event %d: %w", e.Sequence, err)
	}
	e.Source = domain.Source(source)
	e.Payload.Kind = domain.PayloadKind(kind)
	if err := json.Unmarshal(payload, &e.Payload.Stats); err != nil {
		return nil, fmt.Errorf("event %d: unmarshal payload: %w", e.Sequence, err)
	}
	return &e, nil
}
