package memory

import (
	"context"
	"sort"
	"sync"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
// Put swaps in a fresh copy, so a reader holding a previous snapshot never sees it change.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]*domain.Snapshot // entity_id -> snapshot_time -> snapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string]map[int64]*domain.Snapshot),
	}
}

// Put inserts or replaces the snapshot at (entity_id, snapshot_time).
func (s *SnapshotStore) Put(_ context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.EntityID == "" {
		return storage.ErrInvalidInput
	}
	replacement := snap.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	byTime, ok := s.data[snap.EntityID]
	if !ok {
		byTime = make(map[int64]*domain.Snapshot)
		s.data[snap.EntityID] = byTime
	}
	byTime[snap.SnapshotTime] = replacement
	return nil
}

// Get retrieves the snapshot at exactly snapshotTime.
func (s *SnapshotStore) Get(_ context.Context, entityID string, snapshotTime int64) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[entityID][snapshotTime]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return snap.Clone(), nil
}

// Nearest returns the snapshot with the greatest snapshot_time <= t.
func (s *SnapshotStore) Nearest(_ context.Context, entityID string, t int64) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Snapshot
	for ts, snap := range s.data[entityID] {
		if ts > t {
			continue
		}
		if best == nil || ts > best.SnapshotTime {
			best = snap
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best.Clone(), nil
}

// ListByEntity retrieves all snapshots for an entity, ordered by snapshot_time ASC.
func (s *SnapshotStore) ListByEntity(_ context.Context, entityID string) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Snapshot, 0, len(s.data[entityID]))
	for _, snap := range s.data[entityID] {
		result = append(result, snap.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SnapshotTime < result[j].SnapshotTime
	})
	return result, nil
}

// Delete removes the snapshot at (entity_id, snapshot_time).
func (s *SnapshotStore) Delete(_ context.Context, entityID string, snapshotTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTime := s.data[entityID]
	if _, ok := byTime[snapshotTime]; !ok {
		return storage.ErrNotFound
	}
	delete(byTime, snapshotTime)
	if len(byTime) == 0 {
		delete(s.data, entityID)
	}
	return nil
}

// Coverage counts snapshots with from <= snapshot_time <= through.
func (s *SnapshotStore) Coverage(_ context.Context, from, through int64) (*storage.Coverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cov := storage.NewCoverage()
	for _, byTime := range s.data {
		for ts, snap := range byTime {
			if ts < from || ts > through {
				continue
			}
			cov.Total++
			cov.ByPrecision[snap.Precision]++
			for _, src := range distinctSources(snap.Sources) {
				cov.BySource[src]++
			}
		}
	}
	return cov, nil
}

func distinctSources(sources []domain.Source) []domain.Source {
	seen := make(map[domain.Source]struct{}, len(sources))
	out := make([]domain.Source, 0, len(sources))
	for _, src := range sources {
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)
