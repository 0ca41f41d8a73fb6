package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/model"
	_ "github.com/memoric/memoric/internal/plugin/store/postgres"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/memoric/memoric/internal/testutil/testpg"
)

func setupTestStore(t *testing.T) (registrystore.MemoryStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "postgres"
	cfg.DBURL = dbURL
	cfg.DatastoreMigrateAtStart = true
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, ctx
}

// TestGetRecords_OrdersNewestUpdatedFirst exercises the native jsonb store
// against a real Postgres instance: most-recently-updated records must sort
// first so a candidate-limited fetch keeps fresh records, not the oldest
// ones (spec.md §4.1, §4.5).
func TestGetRecords_OrdersNewestUpdatedFirst(t *testing.T) {
	store, ctx := setupTestStore(t)

	base := time.Now().Add(-time.Hour)
	ids := make([]int64, 3)
	for i := range ids {
		rec := &model.MemoryRecord{
			UserID:  "user-1",
			Content: "record",
			Tier:    model.TierShortTerm,
		}
		require.NoError(t, store.InsertRecord(ctx, rec))
		ids[i] = rec.ID
	}

	// Touch the oldest-inserted record last so it becomes the most recently
	// updated one.
	updated := "record (touched)"
	_, err := store.UpdateRecord(ctx, ids[0], registrystore.RecordUpdate{Content: &updated})
	require.NoError(t, err)

	recs, err := store.GetRecords(ctx, registrystore.RecordFilter{UserID: "user-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ids[0], recs[0].ID)
	assert.Equal(t, base.Before(recs[0].UpdatedAt), true)
}

// TestMetadataContainment_NativeJSONB exercises Postgres's jsonb `@>`
// containment path with a list-valued filter, the same predicate
// internal/matcher evaluates in application code for SQLite.
func TestMetadataContainment_NativeJSONB(t *testing.T) {
	store, ctx := setupTestStore(t)

	rec := &model.MemoryRecord{
		UserID:  "user-1",
		Content: "prefers dark roast coffee",
		Tier:    model.TierShortTerm,
		Metadata: model.Metadata{
			"entities": []string{"coffee", "dark-roast"},
		},
	}
	require.NoError(t, store.InsertRecord(ctx, rec))

	recs, err := store.GetRecords(ctx, registrystore.RecordFilter{
		UserID:   "user-1",
		Metadata: map[string]any{"entities": []string{"coffee"}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID, recs[0].ID)
}
