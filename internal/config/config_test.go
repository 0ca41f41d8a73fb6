package config

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedTempDir_DefaultsToOSTempDir(t *testing.T) {
	var cfg Config
	require.Equal(t, os.TempDir(), cfg.ResolvedTempDir())
}

func TestResolvedTempDir_UsesConfiguredValue(t *testing.T) {
	cfg := Config{TempDir: " /tmp/custom-dir "}
	require.Equal(t, "/tmp/custom-dir", cfg.ResolvedTempDir())
}

func TestDefaultConfig_HasForwardOnlyMigratePolicies(t *testing.T) {
	cfg := DefaultConfig()
	require.Len(t, cfg.MigratePolicies, 2)
	assert.Equal(t, "short_term", cfg.MigratePolicies[0].From)
	assert.Equal(t, "mid_term", cfg.MigratePolicies[0].To)
	assert.Equal(t, "mid_term", cfg.MigratePolicies[1].From)
	assert.Equal(t, "long_term", cfg.MigratePolicies[1].To)
}

func TestDefaultConfig_ScoringWeightsMatchDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.6, cfg.Scoring.ImportanceWeight)
	assert.Equal(t, 0.3, cfg.Scoring.RecencyWeight)
	assert.Equal(t, 0.1, cfg.Scoring.RepetitionWeight)
}

func TestTierByName_FindsConfiguredTier(t *testing.T) {
	cfg := DefaultConfig()
	tier, ok := cfg.TierByName("mid_term")
	require.True(t, ok)
	assert.Equal(t, 90, tier.ExpiryDays)

	_, ok = cfg.TierByName("nonexistent")
	assert.False(t, ok)
}

func TestWithContext_RoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, cfg.DatastoreType, got.DatastoreType)
}
