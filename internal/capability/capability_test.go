package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowsGlobalScope_DefaultPolicyRequiresCapability(t *testing.T) {
	ctx := context.Background()
	checker, err := NewChecker(ctx, "")
	require.NoError(t, err)

	allowed, err := checker.AllowsGlobalScope(ctx, "memoric:global", Context{
		UserID:       "u1",
		Capabilities: []string{"memoric:global"},
	})
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestAllowsGlobalScope_DeniesWithoutCapability(t *testing.T) {
	ctx := context.Background()
	checker, err := NewChecker(ctx, "")
	require.NoError(t, err)

	allowed, err := checker.AllowsGlobalScope(ctx, "memoric:global", Context{
		UserID:       "u1",
		Capabilities: []string{"memoric:read"},
	})
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestNewChecker_MissingPolicyFileFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	checker, err := NewChecker(ctx, "/nonexistent/path.rego")
	require.NoError(t, err)

	allowed, err := checker.AllowsGlobalScope(ctx, "memoric:global", Context{
		Capabilities: []string{"memoric:global"},
	})
	require.NoError(t, err)
	require.True(t, allowed)
}
