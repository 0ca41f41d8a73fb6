package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/memoric/memoric/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PreservesExistingKeys(t *testing.T) {
	existing := model.Metadata{"topic": "already set", "custom": "value"}
	out, err := Default{}.Enrich(context.Background(), "Refund Request for Acme Corp invoice", existing)
	require.NoError(t, err)
	assert.Equal(t, "already set", out["topic"])
	assert.Equal(t, "value", out["custom"])
}

func TestDefault_FillsMissingReservedKeys(t *testing.T) {
	out, err := Default{}.Enrich(context.Background(), "The Billing Team processed a refund for Acme Corp", model.Metadata{})
	require.NoError(t, err)
	topic, ok := out.Topic()
	assert.True(t, ok)
	assert.NotEmpty(t, topic)
	category, ok := out.Category()
	assert.True(t, ok)
	assert.Equal(t, "billing", category)
	assert.Equal(t, model.ImportanceMedium, out[model.MetaImportance])
}

func TestDefault_IsDeterministic(t *testing.T) {
	content := "Acme Corp Support reported a login error"
	a, _ := Default{}.Enrich(context.Background(), content, model.Metadata{})
	b, _ := Default{}.Enrich(context.Background(), content, model.Metadata{})
	assert.Equal(t, a, b)
}

type erroringEnricher struct{}

func (erroringEnricher) Enrich(context.Context, string, model.Metadata) (model.Metadata, error) {
	return nil, errors.New("boom")
}

func TestWithFallback_DegradesOnError(t *testing.T) {
	existing := model.Metadata{"topic": "kept"}
	wf := WithFallback{Enricher: erroringEnricher{}}
	out := wf.Enrich(context.Background(), "content", existing)
	assert.Equal(t, existing, out)
}

type panickingEnricher struct{}

func (panickingEnricher) Enrich(context.Context, string, model.Metadata) (model.Metadata, error) {
	panic("unexpected")
}

func TestWithFallback_RecoversFromPanic(t *testing.T) {
	existing := model.Metadata{"topic": "kept"}
	wf := WithFallback{Enricher: panickingEnricher{}}
	out := wf.Enrich(context.Background(), "content", existing)
	assert.Equal(t, existing, out)
}
