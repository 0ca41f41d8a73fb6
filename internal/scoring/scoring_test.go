package scoring

import (
	"testing"
	"time"

	"github.com/memoric/memoric/internal/model"
	"github.com/stretchr/testify/assert"
)

func record(id int64, importance any, createdAt time.Time, updatedAt time.Time) model.MemoryRecord {
	md := model.Metadata{}
	if importance != nil {
		md[model.MetaImportance] = importance
	}
	return model.MemoryRecord{
		ID:        id,
		Metadata:  md,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func TestScore_IsDeterministicForFixedNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := record(1, "high", now.Add(-2*time.Hour), now.Add(-1*time.Hour))
	engine := NewEngine(DefaultConfig())

	a := engine.Score(Candidate{Record: rec, Occurrences: 2}, Query{}, now)
	b := engine.Score(Candidate{Record: rec, Occurrences: 2}, Query{}, now)
	assert.Equal(t, a, b)
}

func TestScore_ImportanceOrdering(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	low := record(1, "low", now, now)
	high := record(2, "high", now, now)
	engine := NewEngine(DefaultConfig())

	lowScore := engine.Score(Candidate{Record: low}, Query{}, now)
	highScore := engine.Score(Candidate{Record: high}, Query{}, now)
	assert.Greater(t, highScore, lowScore)
}

func TestScoreAll_TieBreakByUpdatedAtThenID(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := record(1, "medium", now, now.Add(-1*time.Hour))
	b := record(2, "medium", now, now.Add(-1*time.Hour))
	c := record(3, "medium", now, now)

	engine := NewEngine(DefaultConfig())
	results := engine.ScoreAll([]Candidate{{Record: a}, {Record: b}, {Record: c}}, Query{}, now)

	// c has a more recent updated_at, so it sorts first.
	assert.Equal(t, int64(3), results[0].Record.ID)
	// a and b tie on score and updated_at; larger id (b) sorts first.
	assert.Equal(t, int64(2), results[1].Record.ID)
	assert.Equal(t, int64(1), results[2].Record.ID)
}

func TestTopicBoost(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := record(1, "medium", now, now)
	rec.Metadata[model.MetaTopic] = "billing"

	cfg := DefaultConfig()
	cfg.Boosts = []BoostRule{TopicBoost([]string{"billing"}, 0.5)}
	engine := NewEngine(cfg)

	boosted := engine.Score(Candidate{Record: rec}, Query{}, now)

	cfg2 := DefaultConfig()
	plain := NewEngine(cfg2).Score(Candidate{Record: rec}, Query{}, now)
	assert.InDelta(t, plain+0.5, boosted, 1e-9)
}

func TestRepetitionNorm_SaturatesAtConfiguredValue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := record(1, "medium", now, now)
	cfg := DefaultConfig()
	cfg.RepetitionSaturation = 4
	engine := NewEngine(cfg)

	atSaturation := engine.Score(Candidate{Record: rec, Occurrences: 4}, Query{}, now)
	beyondSaturation := engine.Score(Candidate{Record: rec, Occurrences: 40}, Query{}, now)
	assert.InDelta(t, atSaturation, beyondSaturation, 1e-9)
}
