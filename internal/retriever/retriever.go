// Package retriever implements retrieve/retrieve_context: scope
// resolution, candidate fetch, scoring, and ranking (spec.md §4.4).
package retriever

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memoric/memoric/internal/capability"
	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/errs"
	"github.com/memoric/memoric/internal/events"
	"github.com/memoric/memoric/internal/model"
	"github.com/memoric/memoric/internal/obsv"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/memoric/memoric/internal/scoring"
)

// scopeOrder is the cascade retrieve_context walks when the caller does
// not pin a single scope: the narrowest scope that still has data wins,
// and broader scopes are only tried when the narrower one falls short of
// CandidateFloor (spec.md §4.4).
var scopeOrder = []string{"thread", "topic", "user", "global"}

// Request describes one retrieval call.
type Request struct {
	UserID    string
	Namespace string
	ThreadID  string
	SessionID string

	// Scope pins retrieval to exactly one level ("thread", "topic",
	// "user", "global"). Empty lets the cascade pick the narrowest scope
	// with enough candidates.
	Scope string

	Query scoring.Query

	// Topic narrows the "topic" scope level; derived from Query.Topics[0]
	// when empty.
	Topic string

	MetadataFilter map[string]any

	TopK int

	// Caller carries the capability context needed to authorize global
	// scope (spec.md §4.5, §7).
	Caller capability.Context
}

// Result is one ranked record plus its score, mirroring the retrieved
// items returned to the caller.
type Result struct {
	Record model.MemoryRecord
	Score  float64
}

// Response is the outcome of a Retrieve call.
type Response struct {
	Results        []Result
	ScopeUsed      string
	CandidateCount int
}

// Retriever executes retrieval requests against a store.
type Retriever struct {
	Store      registrystore.MemoryStore
	Scorer     *scoring.Engine
	Events     *events.Broadcaster
	Config     *config.Config
	Capability *capability.Checker
}

// Retrieve resolves scope, fetches candidates, scores them, and returns
// the top_k ranked results.
func (r *Retriever) Retrieve(ctx context.Context, req Request, now time.Time) (*Response, error) {
	start := time.Now()
	defer func() {
		if obsv.RetrievalLatency != nil {
			obsv.RetrievalLatency.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())
		}
	}()

	if req.UserID == "" && req.Scope != "global" {
		return nil, errs.NewInvalidArgument("user_id is required unless scope is global")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = r.Config.Retrieval.DefaultTopK
	}
	floor := r.Config.Retrieval.CandidateFloor
	if floor <= 0 {
		floor = 50
	}
	multiplier := r.Config.Retrieval.CandidateMultiplier
	if multiplier <= 0 {
		multiplier = 4
	}
	candidateLimit := topK * multiplier
	if candidateLimit < floor {
		candidateLimit = floor
	}

	scopes := scopeOrder
	if req.Scope != "" {
		scopes = []string{req.Scope}
	}

	var chosenScope string
	var candidates []model.MemoryRecord
	for _, scope := range scopes {
		if scope == "global" {
			allowed, err := r.authorizeGlobalScope(ctx, req.Caller)
			if err != nil {
				return nil, err
			}
			if !allowed {
				if req.Scope == "global" {
					return nil, errs.NewScopeUnauthorized("caller is not authorized for global scope")
				}
				continue
			}
		}

		filter := r.buildFilter(req, scope, candidateLimit)
		recs, err := r.Store.GetRecords(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("retriever: fetch candidates at scope %q: %w", scope, err)
		}
		chosenScope = scope
		candidates = recs
		if len(candidates) >= floor || req.Scope != "" {
			break
		}
	}

	if obsv.RetrievalCandidatesTotal != nil {
		obsv.RetrievalCandidatesTotal.Observe(float64(len(candidates)))
	}

	scoringCandidates := make([]scoring.Candidate, len(candidates))
	for i, rec := range candidates {
		occurrences := 1
		if cluster, err := r.Store.ClusterForRecord(ctx, rec.ID); err == nil && cluster != nil {
			occurrences = cluster.Occurrences
		}
		scoringCandidates[i] = scoring.Candidate{Record: rec, Occurrences: occurrences}
	}
	ranked := r.Scorer.ScoreAll(scoringCandidates, req.Query, now)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]Result, len(ranked))
	for i, res := range ranked {
		results[i] = Result{Record: res.Record, Score: res.Score}
	}

	r.publishRetrieved(ctx, req.UserID, chosenScope, len(candidates), len(results))

	return &Response{Results: results, ScopeUsed: chosenScope, CandidateCount: len(candidates)}, nil
}

func (r *Retriever) buildFilter(req Request, scope string, limit int) registrystore.RecordFilter {
	filter := registrystore.RecordFilter{
		Namespace:         req.Namespace,
		Metadata:          req.MetadataFilter,
		IncludeSummarized: false,
		Limit:             limit,
	}
	switch scope {
	case "thread":
		filter.UserID = req.UserID
		filter.ThreadID = req.ThreadID
		filter.SessionID = req.SessionID
	case "topic":
		filter.UserID = req.UserID
		topic := req.Topic
		if topic == "" && len(req.Query.Topics) > 0 {
			topic = req.Query.Topics[0]
		}
		if topic != "" {
			if filter.Metadata == nil {
				filter.Metadata = map[string]any{}
			}
			filter.Metadata[model.MetaTopic] = topic
		}
	case "user":
		filter.UserID = req.UserID
	case "global":
		// No UserID constraint: global scope spans every user.
	}
	return filter
}

func (r *Retriever) authorizeGlobalScope(ctx context.Context, caller capability.Context) (bool, error) {
	if r.Capability == nil {
		return false, nil
	}
	requiredCapability := r.Config.Privacy.GlobalScopeCapability
	if requiredCapability == "" {
		requiredCapability = "memoric:global"
	}
	return r.Capability.AllowsGlobalScope(ctx, requiredCapability, caller)
}

func (r *Retriever) publishRetrieved(ctx context.Context, userID, scope string, candidateCount, resultCount int) {
	event := model.LifecycleEvent{
		Kind:      model.EventRetrieved,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Metadata: model.Metadata{
			"scope":           scope,
			"candidate_count": candidateCount,
			"result_count":    resultCount,
		},
	}
	if err := r.Store.AppendEvent(ctx, &event); err != nil {
		log.Warn("retriever: failed to persist lifecycle event", "err", err)
	}
	if r.Events != nil {
		r.Events.Publish(ctx, event)
	}
}
