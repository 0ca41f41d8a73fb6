package sqlite

import (
	"context"
	"testing"

	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/model"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = "file::memory:?cache=shared"
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	st, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st.(*Store)
}

func TestInsertAndGetRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &model.MemoryRecord{
		UserID:  "u1",
		Content: "hello world",
		Metadata: model.Metadata{
			model.MetaTopic: "greeting",
		},
	}
	require.NoError(t, store.InsertRecord(ctx, rec))
	require.NotZero(t, rec.ID)

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "hello world", got.Content)
	require.Equal(t, model.TierShortTerm, got.Tier)
}

func TestGetRecords_FiltersByMetadataContainment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRecord(ctx, &model.MemoryRecord{
		UserID: "u1", Content: "a", Metadata: model.Metadata{model.MetaTopic: "billing"},
	}))
	require.NoError(t, store.InsertRecord(ctx, &model.MemoryRecord{
		UserID: "u1", Content: "b", Metadata: model.Metadata{model.MetaTopic: "support"},
	}))

	recs, err := store.GetRecords(ctx, registrystore.RecordFilter{
		UserID:   "u1",
		Metadata: map[string]any{model.MetaTopic: "billing"},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "a", recs[0].Content)
}

func TestUpdateRecord_ChangesTier(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &model.MemoryRecord{UserID: "u1", Content: "x"}
	require.NoError(t, store.InsertRecord(ctx, rec))

	midTerm := model.TierMidTerm
	updated, err := store.UpdateRecord(ctx, rec.ID, registrystore.RecordUpdate{Tier: &midTerm})
	require.NoError(t, err)
	require.Equal(t, model.TierMidTerm, updated.Tier)
}

func TestDeleteRecord_RemovesIt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &model.MemoryRecord{UserID: "u1", Content: "x"}
	require.NoError(t, store.InsertRecord(ctx, rec))
	require.NoError(t, store.DeleteRecord(ctx, rec.ID))

	_, err := store.GetRecord(ctx, rec.ID)
	require.Error(t, err)
}

func TestUpsertCluster_MergesOnSecondCall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cluster := &model.MemoryCluster{UserID: "u1", Topic: "billing", Category: "support", MemoryIDs: model.NewIDSet(1, 2)}
	require.NoError(t, store.UpsertCluster(ctx, cluster))

	cluster2 := &model.MemoryCluster{UserID: "u1", Topic: "billing", Category: "support", MemoryIDs: model.NewIDSet(1, 2, 3), Occurrences: 3}
	require.NoError(t, store.UpsertCluster(ctx, cluster2))

	clusters, err := store.GetClusters(ctx, registrystore.ClusterFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.True(t, clusters[0].MemoryIDs.Contains(3))
}

func TestDistinctUserIDs_PaginatesAlphabetically(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"b", "a", "c"} {
		require.NoError(t, store.InsertRecord(ctx, &model.MemoryRecord{UserID: u, Content: "x"}))
	}

	ids, err := store.DistinctUserIDs(ctx, "", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids)
}
