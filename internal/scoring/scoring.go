// Package scoring computes the deterministic relevance score retrieval
// ranks candidates by (spec.md §4.4).
package scoring

import (
	"math"
	"time"

	"github.com/memoric/memoric/internal/model"
)

// Weights holds the three linear-combination weights. The engine does not
// enforce that they sum to 1; it must remain stable under non-normalized
// weights.
type Weights struct {
	Importance float64
	Recency    float64
	Repetition float64
}

// DefaultWeights matches spec.md §4.4's default {0.6, 0.3, 0.1}.
var DefaultWeights = Weights{Importance: 0.6, Recency: 0.3, Repetition: 0.1}

// Config bundles the weights and the two tunable normalization constants.
type Config struct {
	Weights                Weights
	HalfLife               time.Duration // default ~14 days for short-term queries
	RepetitionSaturation   float64       // occurrences at which repetition_norm saturates to 1.0
	Boosts                 []BoostRule
}

// DefaultHalfLife is ~14 days, spec.md §4.4's default for short-term
// queries.
const DefaultHalfLife = 14 * 24 * time.Hour

// DefaultRepetitionSaturation is the default "occurrences" value at which
// repetition_norm reaches 1.0.
const DefaultRepetitionSaturation = 5.0

// DefaultConfig returns a Config matching spec.md §4.4's documented
// defaults, with no boost rules configured.
func DefaultConfig() Config {
	return Config{
		Weights:              DefaultWeights,
		HalfLife:             DefaultHalfLife,
		RepetitionSaturation: DefaultRepetitionSaturation,
	}
}

// Query carries the caller-supplied context boost rules may consult (free
// text plus any topics being searched for).
type Query struct {
	Text   string
	Topics []string
}

// BoostRule is an ordered function contributing an additive delta to a
// record's score based on record/query context.
type BoostRule func(record model.MemoryRecord, query Query) float64

// Candidate pairs a record with the occurrence count taken from its joined
// cluster, if any (spec.md §4.4: "occurrences is taken from a joined
// cluster if present, else 1").
type Candidate struct {
	Record      model.MemoryRecord
	Occurrences int
}

// Result is a scored candidate, ready for sorting and trimming to top_k.
type Result struct {
	Record model.MemoryRecord
	Score  float64
}

// Engine computes scores for candidates against a Config.
type Engine struct {
	Config Config
}

// NewEngine builds a scoring Engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{Config: cfg}
}

// Score computes the canonical score for a single candidate at the given
// instant. now is passed explicitly so scoring stays deterministic under
// test (spec.md §8 "Scoring stability").
func (e *Engine) Score(candidate Candidate, query Query, now time.Time) float64 {
	cfg := e.Config
	rec := candidate.Record

	importanceNorm := rec.Metadata.ImportanceNorm()

	halfLife := cfg.HalfLife
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	ageSeconds := now.UTC().Sub(rec.CreatedAt.UTC()).Seconds()
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	recencyNorm := math.Exp(-ageSeconds / halfLife.Seconds())

	occurrences := candidate.Occurrences
	if occurrences <= 0 {
		occurrences = 1
	}
	saturation := cfg.RepetitionSaturation
	if saturation <= 0 {
		saturation = DefaultRepetitionSaturation
	}
	repetitionNorm := math.Min(1.0, float64(occurrences)/saturation)

	score := cfg.Weights.Importance*importanceNorm +
		cfg.Weights.Recency*recencyNorm +
		cfg.Weights.Repetition*repetitionNorm

	for _, boost := range cfg.Boosts {
		score += boost(rec, query)
	}
	return score
}

// ScoreAll scores every candidate and returns them ranked descending by
// score, breaking ties by (updated_at desc, id desc) per spec.md §4.4.
func (e *Engine) ScoreAll(candidates []Candidate, query Query, now time.Time) []Result {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{Record: c.Record, Score: e.Score(c, query, now)}
	}
	sortResults(results)
	return results
}

func sortResults(results []Result) {
	// Insertion sort is fine at retrieval candidate sizes (candidate_limit
	// defaults to 50 rows) and keeps the tie-break comparison
	// colocated with the sort.
	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && less(results[j], results[j-1]) {
			results[j], results[j-1] = results[j-1], results[j]
			j--
		}
	}
}

// less reports whether a should sort before b: higher score first, then
// more recent updated_at, then larger id.
func less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Record.UpdatedAt.Equal(b.Record.UpdatedAt) {
		return a.Record.UpdatedAt.After(b.Record.UpdatedAt)
	}
	return a.Record.ID > b.Record.ID
}

// TopicBoost adds amount to the score when the record's topic is one of
// topics.
func TopicBoost(topics []string, amount float64) BoostRule {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return func(record model.MemoryRecord, _ Query) float64 {
		topic, ok := record.Metadata.Topic()
		if !ok {
			return 0
		}
		if _, found := set[topic]; found {
			return amount
		}
		return 0
	}
}

// StalePenalty subtracts amount when the record's age exceeds thresholdDays.
func StalePenalty(thresholdDays float64, amount float64) BoostRule {
	threshold := time.Duration(thresholdDays * 24 * float64(time.Hour))
	return func(record model.MemoryRecord, _ Query) float64 {
		age := time.Since(record.CreatedAt.UTC())
		if age > threshold {
			return -amount
		}
		return 0
	}
}

// EntityMatch adds amount per matching entity between entities and the
// record's metadata entities, up to maxMatches.
func EntityMatch(entities []string, amount float64, maxMatches int) BoostRule {
	set := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		set[e] = struct{}{}
	}
	return func(record model.MemoryRecord, _ Query) float64 {
		matches := 0
		for _, e := range record.Metadata.Entities() {
			if _, found := set[e]; found {
				matches++
				if maxMatches > 0 && matches >= maxMatches {
					break
				}
			}
		}
		return amount * float64(matches)
	}
}
