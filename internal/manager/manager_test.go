package manager

import (
	"context"
	"testing"

	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/events"
	"github.com/memoric/memoric/internal/model"
	_ "github.com/memoric/memoric/internal/plugin/store/sqlite"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = "file::memory:?cache=shared"
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mgr, err := New(context.Background(), store, &cfg, events.NewBroadcaster(), "")
	require.NoError(t, err)
	return mgr
}

func TestSave_RequiresUserID(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.Save(context.Background(), SaveRequest{Content: "hello"})
	require.Error(t, err)
}

func TestSave_MessageAliasesContent(t *testing.T) {
	mgr := newTestManager(t)
	id, err := mgr.Save(context.Background(), SaveRequest{UserID: "u1", Message: "hello via alias"})
	require.NoError(t, err)
	require.NotZero(t, id)

	rec, err := mgr.Store.GetRecord(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "hello via alias", rec.Content)
	require.Equal(t, model.TierShortTerm, rec.Tier)
}

func TestSave_ContentWinsOverMessageAlias(t *testing.T) {
	mgr := newTestManager(t)
	id, err := mgr.Save(context.Background(), SaveRequest{UserID: "u1", Content: "real", Message: "ignored"})
	require.NoError(t, err)

	rec, err := mgr.Store.GetRecord(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "real", rec.Content)
}

func TestRetrieve_MaxResultsAliasesTopK(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := mgr.Save(ctx, SaveRequest{UserID: "u1", Content: "note"})
		require.NoError(t, err)
	}

	resp, err := mgr.Retrieve(ctx, RetrieveRequest{UserID: "u1", Scope: "user", MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
}

func TestRetrieveContext_PartitionsByThread(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Save(ctx, SaveRequest{UserID: "u1", Content: "in this thread", ThreadID: "t1", Role: "user"})
	require.NoError(t, err)
	_, err = mgr.Save(ctx, SaveRequest{UserID: "u1", Content: "from elsewhere", ThreadID: "t2", Role: "assistant"})
	require.NoError(t, err)

	result, err := mgr.RetrieveContext(ctx, RetrieveContextRequest{
		RetrieveRequest: RetrieveRequest{UserID: "u1", Scope: "user", TopK: 10},
		Shape:           "chat",
	})
	require.NoError(t, err)
	require.Len(t, result.ThreadContext, 0) // ThreadID wasn't requested, so nothing is "this" thread
	require.Len(t, result.RelatedHistory, 2)

	result, err = mgr.RetrieveContext(ctx, RetrieveContextRequest{
		RetrieveRequest: RetrieveRequest{UserID: "u1", Scope: "user", ThreadID: "t1", TopK: 10},
		Shape:           "chat",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Metadata["thread_memories"])
	require.Equal(t, 1, result.Metadata["related_memories"])
}

func TestPromoteTier_RejectsBackwardMove(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	id, err := mgr.Save(ctx, SaveRequest{UserID: "u1", Content: "note"})
	require.NoError(t, err)

	_, err = mgr.PromoteTier(ctx, []int64{id}, string(model.TierLongTerm))
	require.NoError(t, err)

	_, err = mgr.PromoteTier(ctx, []int64{id}, string(model.TierShortTerm))
	require.Error(t, err)
}

func TestPromoteTier_AdvancesForward(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	id, err := mgr.Save(ctx, SaveRequest{UserID: "u1", Content: "note"})
	require.NoError(t, err)

	n, err := mgr.PromoteTier(ctx, []int64{id}, string(model.TierMidTerm))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rec, err := mgr.Store.GetRecord(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.TierMidTerm, rec.Tier)
}

func TestRunPolicies_AggregatesCountsAcrossUsers(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	_, err := mgr.Save(ctx, SaveRequest{UserID: "u1", Content: "note"})
	require.NoError(t, err)
	_, err = mgr.Save(ctx, SaveRequest{UserID: "u2", Content: "note"})
	require.NoError(t, err)

	counts, err := mgr.RunPolicies(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts.UsersProcessed)
}

func TestRebuildClusters_ReturnsClusterCount(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := mgr.Save(ctx, SaveRequest{
			UserID:   "u1",
			Content:  "x",
			Metadata: model.Metadata{model.MetaTopic: "billing", model.MetaCategory: "support"},
		})
		require.NoError(t, err)
	}

	n, err := mgr.RebuildClusters(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestGetTierStats_RequiresUserID(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.GetTierStats(context.Background(), "")
	require.Error(t, err)
}

func TestInspect_ReturnsSnapshot(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	_, err := mgr.Save(ctx, SaveRequest{UserID: "u1", Content: "note"})
	require.NoError(t, err)

	snap, err := mgr.Inspect(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, snap.TierStats)
	require.NotEmpty(t, snap.RecentEvents)
}

func TestSave_PublishesCreatedEvent(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	var seen []model.LifecycleEvent
	mgr.Events.Subscribe(events.SinkFunc(func(_ context.Context, e model.LifecycleEvent) {
		seen = append(seen, e)
	}))

	_, err := mgr.Save(ctx, SaveRequest{UserID: "u1", Content: "note"})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	require.Equal(t, model.EventCreated, seen[0].Kind)
}
