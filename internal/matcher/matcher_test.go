package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches_ScalarEquality(t *testing.T) {
	stored := map[string]any{"topic": "x", "foo": float64(1)}
	assert.True(t, Matches(map[string]any{"topic": "x"}, stored))
	assert.False(t, Matches(map[string]any{"topic": "y"}, stored))
}

func TestMatches_ListContainment(t *testing.T) {
	stored := map[string]any{"topic": "x", "entities": []any{"A", "B"}}

	assert.True(t, Matches(map[string]any{"topic": "x", "entities": []any{"A"}}, stored))
	assert.False(t, Matches(map[string]any{"topic": "x", "entities": []any{"B", "C"}}, stored))
}

func TestMatches_NestedDict(t *testing.T) {
	stored := map[string]any{
		"profile": map[string]any{"role": "admin", "level": float64(3)},
	}
	assert.True(t, Matches(map[string]any{"profile": map[string]any{"role": "admin"}}, stored))
	assert.False(t, Matches(map[string]any{"profile": map[string]any{"role": "user"}}, stored))
}

func TestMatches_TypeMismatchIsNoMatch(t *testing.T) {
	stored := map[string]any{"topic": "x"}
	assert.False(t, Matches(map[string]any{"topic": []any{"x"}}, stored))
	assert.False(t, Matches(map[string]any{"missing": "x"}, stored))
}

func TestMatches_EmptyFilterMatchesEverything(t *testing.T) {
	assert.True(t, Matches(map[string]any{}, map[string]any{"topic": "x"}))
}

// TestMatches_ListContainment_TypedStringSliceFilter guards against a
// regression where a caller-supplied []string filter value (the idiomatic
// Go shape for an "entities" filter) fell through to scalar comparison
// instead of list containment, because only []any was normalized.
func TestMatches_ListContainment_TypedStringSliceFilter(t *testing.T) {
	stored := map[string]any{"entities": []any{"coffee", "dark-roast"}}

	assert.True(t, Matches(map[string]any{"entities": []string{"coffee"}}, stored))
	assert.False(t, Matches(map[string]any{"entities": []string{"tea"}}, stored))
}
