package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/statehash"
	"nba-temporal-panel/internal/storage"
)

func testSnapshot(entityID string, at int64, state domain.State, sources ...domain.Source) *domain.Snapshot {
	return &domain.Snapshot{
		EntityID:        entityID,
		SnapshotTime:    at,
		State:           state,
		BasisEventCount: int64(len(state)),
		LastSequence:    at / 10,
		Precision:       domain.PrecisionDay,
		Sources:         sources,
		StateDigest:     statehash.Digest(state),
		GeneratedAt:     1_700_000_000_000,
	}
}

func TestSnapshotStore_PutGetReplace(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	orig := testSnapshot("P1", 100, domain.State{"pts": 10}, domain.SourceESPN)
	require.NoError(t, store.Put(ctx, orig))

	got, err := store.Get(ctx, "P1", 100)
	require.NoError(t, err)
	assert.Equal(t, orig, got)

	replaced := testSnapshot("P1", 100, domain.State{"pts": 12, "reb": 1}, domain.SourceESPN, domain.SourceManual)
	require.NoError(t, store.Put(ctx, replaced))

	got, err = store.Get(ctx, "P1", 100)
	require.NoError(t, err)
	assert.Equal(t, replaced.StateDigest, got.StateDigest)
	assert.Equal(t, []domain.Source{domain.SourceESPN, domain.SourceManual}, got.Sources)

	list, err := store.ListByEntity(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSnapshotStore_Nearest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	for _, at := range []int64{100, 300, 200} {
		require.NoError(t, store.Put(ctx, testSnapshot("P1", at, domain.State{"pts": at}, domain.SourceESPN)))
	}

	got, err := store.Nearest(ctx, "P1", 250)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.SnapshotTime)

	got, err = store.Nearest(ctx, "P1", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.SnapshotTime)

	_, err = store.Nearest(ctx, "P1", 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := store.ListByEntity(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, int64(100), list[0].SnapshotTime)
	assert.Equal(t, int64(300), list[2].SnapshotTime)
}

func TestSnapshotStore_Delete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSnapshot("P1", 100, domain.State{"pts": 1}, domain.SourceESPN)))
	require.NoError(t, store.Delete(ctx, "P1", 100))
	assert.ErrorIs(t, store.Delete(ctx, "P1", 100), storage.ErrNotFound)

	_, err := store.Get(ctx, "P1", 100)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotStore_Coverage(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	a := testSnapshot("P1", 100, domain.State{"pts": 1}, domain.SourceESPN, domain.SourceNBAAPI)
	b := testSnapshot("P2", 200, domain.State{"pts": 1}, domain.SourceESPN)
	b.Precision = domain.PrecisionYear
	c := testSnapshot("P2", 900, domain.State{"pts": 1}, domain.SourceESPN)
	for _, s := range []*domain.Snapshot{a, b, c} {
		require.NoError(t, store.Put(ctx, s))
	}

	cov, err := store.Coverage(ctx, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cov.Total)
	assert.Equal(t, int64(1), cov.ByPrecision[domain.PrecisionDay])
	assert.Equal(t, int64(1), cov.ByPrecision[domain.PrecisionYear])
	assert.Equal(t, int64(2), cov.BySource[domain.SourceESPN])
	assert.Equal(t, int64(1), cov.BySource[domain.SourceNBAAPI])
}
