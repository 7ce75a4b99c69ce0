package clickhouse

import (
	"context"
	"fmt"
	"iter"
	"math"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/goccy/go-json"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
//
// MergeTree has no sequence generator, so insertion sequences come from a
// counter seeded from max(insertion_sequence) on first write. A single
// EventStore must be the only writer to its table.
type EventStore struct {
	conn *Conn
	now  func() time.Time

	mu      sync.Mutex
	nextSeq int64
	seeded  bool
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const selectEventColumns = `
	SELECT insertion_sequence, entity_id, event_time, precision_level, source,
		game_id, period, payload_kind, payload, recorded_at
	FROM entity_events
`

// Append persists one event and assigns its insertion sequence.
func (s *EventStore) Append(ctx context.Context, e *domain.Event) error {
	if e == nil || e.EntityID == "" {
		return storage.ErrInvalidInput
	}
	return s.AppendBatch(ctx, []*domain.Event{e})
}

// AppendBatch sends all events as one INSERT block. Sequences follow slice
// order and are only handed out once the block is accepted.
func (s *EventStore) AppendBatch(ctx context.Context, events []*domain.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.EntityID == "" {
			return storage.ErrInvalidInput
		}
		if e.Period < 0 || e.Period > math.MaxUint16 {
			return fmt.Errorf("%w: period %d does not fit the column", storage.ErrInvalidInput, e.Period)
		}
	}
	start := time.Now()
	defer func() { observe("append_batch", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.seedLocked(ctx); err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO entity_events (
			entity_id, event_time, insertion_sequence, precision_level, source,
			game_id, period, payload_kind, payload, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	recordedAt := s.now().UnixMilli()
	seq := s.nextSeq
	for _, e := range events {
		seq++
		payload, err := json.Marshal(e.Payload.Stats)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("marshal payload: %w", err)
		}
		err = batch.Append(
			e.EntityID, e.EventTime, seq, e.Precision.String(), string(e.Source),
			e.GameID, uint16(e.Period), string(e.Payload.Kind), string(payload), recordedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	for _, e := range events {
		s.nextSeq++
		e.Sequence = s.nextSeq
		e.RecordedAt = recordedAt
	}
	return nil
}

func (s *EventStore) seedLocked(ctx context.Context) error {
	if s.seeded {
		return nil
	}
	var maxSeq int64
	if err := s.conn.QueryRow(ctx, `SELECT max(insertion_sequence) FROM entity_events`).Scan(&maxSeq); err != nil {
		return fmt.Errorf("seed insertion sequence: %w", err)
	}
	s.nextSeq = maxSeq
	s.seeded = true
	return nil
}

// RangeQuery yields events with after < event_time <= through in fold order.
func (s *EventStore) RangeQuery(ctx context.Context, entityID string, after, through int64) iter.Seq2[*domain.Event, error] {
	return func(yield func(*domain.Event, error) bool) {
		start := time.Now()
		rows, err := s.conn.Query(ctx, selectEventColumns+`
			WHERE entity_id = ? AND event_time > ? AND event_time <= ?
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
		WHERE entity_id = ? AND event_time <= ?
		ORDER BY event_time DESC, insertion_sequence DESC
		LIMIT 1
	`, entityID, t)
}

// Earliest returns the first event of an entity in fold order.
func (s *EventStore) Earliest(ctx context.Context, entityID string) (*domain.Event, error) {
	return s.one(ctx, "earliest", selectEventColumns+`
		WHERE entity_id = ?
		ORDER BY event_time ASC, insertion_sequence ASC
		LIMIT 1
	`, entityID)
}

func (s *EventStore) one(ctx context.Context, operation, query string, args ...any) (e *domain.Event, err error) {
	start := time.Now()
	defer func() { observe(operation, start, err) }()

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", operation, err)
		}
		return nil, storage.ErrNotFound
	}
	return scanEvent(rows)
}

// Entities returns distinct entity ids, sorted ASC.
func (s *EventStore) Entities(ctx context.Context) (ids []string, err error) {
	start := time.Now()
	defer func() { observe("entities", start, err) }()

	rows, err := s.conn.Query(ctx, `SELECT DISTINCT entity_id FROM entity_events ORDER BY entity_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountThrough returns the number of events for an entity with event_time <= t.
func (s *EventStore) CountThrough(ctx context.Context, entityID string, t int64) (n int64, err error) {
	start := time.Now()
	defer func() { observe("count_through", start, err) }()

	var count uint64
	err = s.conn.QueryRow(ctx, `
		SELECT count() FROM entity_events WHERE entity_id = ? AND event_time <= ?
	`, entityID, t).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events %s: %w", entityID, err)
	}
	return int64(count), nil
}

// Coverage counts events with from <= event_time <= through.
func (s *EventStore) Coverage(ctx context.Context, from, through int64) (cov *storage.Coverage, err error) {
	start := time.Now()
	defer func() { observe("event_coverage", start, err) }()

	rows, err := s.conn.Query(ctx, `
		SELECT precision_level, source, count()
		FROM entity_events
		WHERE event_time >= ? AND event_time <= ?
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
			count             uint64
		)
		if err := rows.Scan(&precision, &source, &count); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		p, err := domain.ParsePrecision(precision)
		if err != nil {
			return nil, err
		}
		cov.Total += int64(count)
		cov.ByPrecision[p] += int64(count)
		cov.BySource[domain.Source(source)] += int64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage: %w", err)
	}
	return cov, nil
}

// scanEvent scans the current row into an event.
func scanEvent(rows driver.Rows) (*domain.Event, error) {
	var (
		e         domain.Event
		precision string
		source    string
		period    uint16
		kind      string
		payload   string
	)
	err := rows.Scan(
		&e.Sequence,
		&e.EntityID,
		&e.EventTime,
		&precision,
		&source,
		&e.GameID,
		&period,
		&kind,
		&payload,
		&e.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}

	if e.Precision, err = domain.ParsePrecision(precision); err != nil {
		return nil, fmt.Errorf("event %d: %w", e.Sequence, err)
	}
	e.Source = domain.Source(source)
	e.Period = int(period)
	e.Payload.Kind = domain.PayloadKind(kind)
	if err := json.Unmarshal([]byte(payload), &e.Payload.Stats); err != nil {
		return nil, fmt.Errorf("event %d: unmarshal payload: %w", e.Sequence, err)
	}
	return &e, nil
}
