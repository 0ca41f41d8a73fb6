package policy

import (
	"context"
	"testing"
	"time"

	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/events"
	"github.com/memoric/memoric/internal/model"
	_ "github.com/memoric/memoric/internal/plugin/store/sqlite"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/memoric/memoric/internal/textproc"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*Executor, registrystore.MemoryStore) {
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

	exec, err := NewExecutor(store, &cfg, events.NewBroadcaster())
	require.NoError(t, err)
	return exec, store
}

func TestMigratePhase_MovesRecordsPastTheConfiguredAge(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	now := time.Now()

	rec := &model.MemoryRecord{UserID: "u1", Content: "old", Tier: model.TierShortTerm}
	require.NoError(t, store.InsertRecord(ctx, rec))

	// A negative WhenAgeDays pushes the cutoff into the future, so a
	// just-inserted record already qualifies — exercising the migrate
	// phase without needing to backdate CreatedAt.
	exec.Config.MigratePolicies = []config.MigratePolicy{{From: "short_term", To: "mid_term", WhenAgeDays: -1}}

	touched, err := exec.migratePhase(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, 1, touched)

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, model.TierMidTerm, got.Tier)
}

func TestMigratePhase_IsIdempotent(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	now := time.Now()

	rec := &model.MemoryRecord{UserID: "u1", Content: "old", Tier: model.TierShortTerm}
	require.NoError(t, store.InsertRecord(ctx, rec))
	exec.Config.MigratePolicies = []config.MigratePolicy{{From: "short_term", To: "mid_term", WhenAgeDays: -1}}

	_, err := exec.migratePhase(ctx, "u1", now)
	require.NoError(t, err)
	touchedAgain, err := exec.migratePhase(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, 0, touchedAgain)
}

func TestTrimPhase_ShrinksOversizedContent(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	now := time.Now()

	longContent := ""
	for i := 0; i < 3000; i++ {
		longContent += "x"
	}
	rec := &model.MemoryRecord{UserID: "u1", Content: longContent, Tier: model.TierShortTerm}
	require.NoError(t, store.InsertRecord(ctx, rec))
	// The configured default trimmer is noop; select truncation explicitly.
	exec.Trimmer = textproc.Truncating{}

	touched, err := exec.trimPhase(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, 1, touched)

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.LessOrEqual(t, len([]rune(got.Content)), 2000)
}

func TestTrimPhase_IsIdempotent(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	now := time.Now()

	longContent := ""
	for i := 0; i < 3000; i++ {
		longContent += "x"
	}
	rec := &model.MemoryRecord{UserID: "u1", Content: longContent, Tier: model.TierShortTerm}
	require.NoError(t, store.InsertRecord(ctx, rec))
	exec.Trimmer = textproc.Truncating{}

	_, err := exec.trimPhase(ctx, "u1", now)
	require.NoError(t, err)
	touchedAgain, err := exec.trimPhase(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, 0, touchedAgain)
}

func TestClusterRebuildPhase_GroupsByTopicAndCategory(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertRecord(ctx, &model.MemoryRecord{
			UserID: "u1", Content: "x",
			Metadata: model.Metadata{model.MetaTopic: "billing", model.MetaCategory: "support"},
		}))
	}

	touched, err := exec.clusterRebuildPhase(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, 1, touched)

	clusters, err := store.GetClusters(ctx, registrystore.ClusterFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, 3, clusters[0].Occurrences)
}

func TestClusterRebuildPhase_SkipsBelowMinSize(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertRecord(ctx, &model.MemoryRecord{
		UserID: "u1", Content: "x",
		Metadata: model.Metadata{model.MetaTopic: "billing", model.MetaCategory: "support"},
	}))

	touched, err := exec.clusterRebuildPhase(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, 0, touched)
}

func TestRunForUser_RunsAllFivePhasesInOrder(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertRecord(ctx, &model.MemoryRecord{UserID: "u1", Content: "hello"}))

	report := exec.RunForUser(ctx, "u1", now)
	require.Len(t, report.Phases, 5)
	require.Equal(t, "migrate", report.Phases[0].Phase)
	require.Equal(t, "trim", report.Phases[1].Phase)
	require.Equal(t, "summarize", report.Phases[2].Phase)
	require.Equal(t, "thread_summarize", report.Phases[3].Phase)
	require.Equal(t, "cluster_rebuild", report.Phases[4].Phase)
	for _, p := range report.Phases {
		require.NoError(t, p.Err)
	}
}

func TestLocalLocker_SecondLockFailsUntilReleased(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok2, err := locker.TryLock(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok2)

	release()
	_, ok3, err := locker.TryLock(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok3)
}
