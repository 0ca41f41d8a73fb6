// Package manager implements the Memory Manager facade (spec.md §4.7): the
// single entry point that wires the Enricher, text processors, Scoring
// Engine, Retriever, and Policy Executor together behind save / retrieve /
// retrieve_context / run_policies / promote_tier / rebuild_clusters /
// get_tier_stats / inspect. Backward-compatible parameter aliases
// (message<->content, max_results<->top_k) are resolved here and nowhere
// deeper, matching the teacher's thin-facade-over-services shape.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memoric/memoric/internal/capability"
	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/dataencryption"
	"github.com/memoric/memoric/internal/enrich"
	"github.com/memoric/memoric/internal/errs"
	"github.com/memoric/memoric/internal/events"
	"github.com/memoric/memoric/internal/model"
	_ "github.com/memoric/memoric/internal/plugin/encrypt/plain"
	"github.com/memoric/memoric/internal/policy"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/memoric/memoric/internal/retriever"
	"github.com/memoric/memoric/internal/scoring"
)

// Manager is the facade every external surface (CLI, eventual HTTP layer)
// calls through. It owns the Store, processors, enricher, scoring engine,
// and policy executor; tests construct a fresh Manager per case, never a
// shared global (spec.md §9).
type Manager struct {
	Store      registrystore.MemoryStore
	Config     *config.Config
	Enricher   enrich.WithFallback
	Retriever  *retriever.Retriever
	Executor   *policy.Executor
	Capability *capability.Checker
	Events     *events.Broadcaster
	Crypto     *dataencryption.Service
}

// New builds a Manager from a store and config. The Retriever gets a scoring
// engine and the capability checker built here; the Policy Executor builds
// its own scoring engine from the same cfg.Scoring values and does not use
// the capability checker.
func New(ctx context.Context, store registrystore.MemoryStore, cfg *config.Config, broadcaster *events.Broadcaster, policyPath string) (*Manager, error) {
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster()
	}

	checker, err := capability.NewChecker(ctx, policyPath)
	if err != nil {
		return nil, fmt.Errorf("manager: build capability checker: %w", err)
	}

	scorer := scoring.NewEngine(scoring.Config{
		Weights: scoring.Weights{
			Importance: cfg.Scoring.ImportanceWeight,
			Recency:    cfg.Scoring.RecencyWeight,
			Repetition: cfg.Scoring.RepetitionWeight,
		},
		HalfLife:             cfg.Scoring.HalfLife,
		RepetitionSaturation: cfg.Scoring.RepetitionSaturation,
	})

	exec, err := policy.NewExecutor(store, cfg, broadcaster)
	if err != nil {
		return nil, fmt.Errorf("manager: build policy executor: %w", err)
	}

	var enricher enrich.Enricher = enrich.Default{}
	if !cfg.Enrichment.Enabled {
		enricher = noopEnricher{}
	}

	crypto, err := dataencryption.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("manager: build encryption service: %w", err)
	}

	return &Manager{
		Store:      store,
		Config:     cfg,
		Enricher:   enrich.WithFallback{Enricher: enricher},
		Retriever: &retriever.Retriever{
			Store:      store,
			Scorer:     scorer,
			Events:     broadcaster,
			Config:     cfg,
			Capability: checker,
		},
		Executor:   exec,
		Capability: checker,
		Events:     broadcaster,
		Crypto:     crypto,
	}, nil
}

type noopEnricher struct{}

func (noopEnricher) Enrich(_ context.Context, _ string, existing model.Metadata) (model.Metadata, error) {
	return existing, nil
}

// SaveRequest is save(...)'s keyword-argument surface. Content and Message
// are aliases; Content wins when both are set (spec.md §4.7, §9).
type SaveRequest struct {
	UserID    string
	Content   string
	Message   string // alias for Content when Content is empty
	Namespace string
	ThreadID  string
	SessionID string
	Role      string
	Metadata  model.Metadata
}

// resolveContent implements the message<->content alias: message stands in
// for content only when content is absent.
func resolveContent(req SaveRequest) (string, error) {
	if req.Content != "" {
		return req.Content, nil
	}
	if req.Message != "" {
		return req.Message, nil
	}
	return "", errs.NewInvalidArgument("save requires content (or its message alias)")
}

// Save enriches and inserts a new record at tier short_term, returning its
// assigned id.
func (m *Manager) Save(ctx context.Context, req SaveRequest) (int64, error) {
	if req.UserID == "" {
		return 0, errs.NewInvalidArgument("save requires user_id")
	}
	content, err := resolveContent(req)
	if err != nil {
		return 0, err
	}

	existing := req.Metadata
	if existing == nil {
		existing = model.Metadata{}
	} else {
		existing = existing.Clone()
	}
	if req.Role != "" {
		if _, ok := existing.Role(); !ok {
			existing[model.MetaRole] = req.Role
		}
	}

	enricher := m.Enricher
	if enricher.OnWarn == nil {
		enricher.OnWarn = func(err error) {
			m.publishEvent(ctx, model.EventWarning, req.UserID, "", nil, false, err.Error())
		}
	}
	merged := enricher.Enrich(ctx, content, existing)

	// Enrichment reads plaintext content; encryption happens last so the
	// stored Content column holds ciphertext (or unchanged plaintext under
	// the default "plain" provider).
	stored, err := m.Crypto.Encrypt(content)
	if err != nil {
		return 0, fmt.Errorf("manager: save: %w", err)
	}

	rec := &model.MemoryRecord{
		UserID:    req.UserID,
		Namespace: req.Namespace,
		ThreadID:  req.ThreadID,
		SessionID: req.SessionID,
		Content:   stored,
		Metadata:  merged,
		Tier:      model.TierShortTerm,
	}
	if err := m.Store.InsertRecord(ctx, rec); err != nil {
		return 0, fmt.Errorf("manager: save: %w", err)
	}

	m.publishEvent(ctx, model.EventCreated, req.UserID, fmt.Sprintf("%d", rec.ID), nil, true, "")
	return rec.ID, nil
}

// RetrieveRequest is retrieve(...)'s keyword-argument surface. TopK and
// MaxResults are aliases; TopK wins when both are set.
type RetrieveRequest struct {
	UserID         string
	Namespace      string
	Scope          string
	ThreadID       string
	SessionID      string
	Topic          string
	MetadataFilter map[string]any
	Query          scoring.Query
	TopK           int
	MaxResults     int // alias for TopK when TopK is <= 0
	Caller         capability.Context
}

// resolveTopK implements the max_results<->top_k alias.
func resolveTopK(req RetrieveRequest) int {
	if req.TopK > 0 {
		return req.TopK
	}
	return req.MaxResults
}

// Retrieve delegates to the Retriever after resolving the top_k alias, then
// decrypts each result's Content so every other caller of Retrieve
// (including RetrieveContext) sees plaintext.
func (m *Manager) Retrieve(ctx context.Context, req RetrieveRequest) (*retriever.Response, error) {
	resp, err := m.Retriever.Retrieve(ctx, retriever.Request{
		UserID:         req.UserID,
		Namespace:      req.Namespace,
		ThreadID:       req.ThreadID,
		SessionID:      req.SessionID,
		Scope:          req.Scope,
		Query:          req.Query,
		Topic:          req.Topic,
		MetadataFilter: req.MetadataFilter,
		TopK:           resolveTopK(req),
		Caller:         req.Caller,
	}, time.Now())
	if err != nil {
		return nil, err
	}
	if !m.Crypto.IsPlain() {
		for i := range resp.Results {
			plain, err := m.Crypto.Decrypt(resp.Results[i].Record.Content)
			if err != nil {
				return nil, fmt.Errorf("manager: retrieve: decrypt record %d: %w", resp.Results[i].Record.ID, err)
			}
			resp.Results[i].Record.Content = plain
		}
	}
	return resp, nil
}

// RetrieveContextRequest extends RetrieveRequest with the output Shape
// retrieve_context renders ("structured", "simple", or "chat").
type RetrieveContextRequest struct {
	RetrieveRequest
	Shape string
}

// RetrieveContextResponse mirrors spec.md §6's representative response
// shape for retrieve_context.
type RetrieveContextResponse struct {
	ThreadContext  []string
	RelatedHistory []string
	Metadata       map[string]any
}

// RetrieveContext calls Retrieve, then partitions results into
// thread_context (matching the requested thread_id) vs. related_history
// (everything else), rendering each entry per Shape.
func (m *Manager) RetrieveContext(ctx context.Context, req RetrieveContextRequest) (*RetrieveContextResponse, error) {
	resp, err := m.Retrieve(ctx, req.RetrieveRequest)
	if err != nil {
		return nil, err
	}

	shape := req.Shape
	if shape == "" {
		shape = "chat"
	}

	topics := map[string]struct{}{}
	threadContext := make([]string, 0, len(resp.Results))
	relatedHistory := make([]string, 0, len(resp.Results))
	threadCount, relatedCount := 0, 0

	for _, res := range resp.Results {
		if topic, ok := res.Record.Metadata.Topic(); ok {
			topics[topic] = struct{}{}
		}
		entry := renderEntry(res.Record, shape)
		if req.ThreadID != "" && res.Record.ThreadID == req.ThreadID {
			threadContext = append(threadContext, entry)
			threadCount++
		} else {
			relatedHistory = append(relatedHistory, entry)
			relatedCount++
		}
	}

	topic := ""
	for t := range topics {
		topic = t
		break
	}

	return &RetrieveContextResponse{
		ThreadContext:  threadContext,
		RelatedHistory: relatedHistory,
		Metadata: map[string]any{
			"thread_id":        req.ThreadID,
			"user_id":          req.UserID,
			"topic":            topic,
			"total_memories":   len(resp.Results),
			"thread_memories":  threadCount,
			"related_memories": relatedCount,
		},
	}, nil
}

func renderEntry(rec model.MemoryRecord, shape string) string {
	switch shape {
	case "simple":
		return rec.Content
	case "structured":
		return fmt.Sprintf("[%s] %s", rec.Tier, rec.Content)
	default: // "chat"
		role, ok := rec.Metadata.Role()
		if !ok {
			role = "user"
		}
		return fmt.Sprintf("%s: %s", role, rec.Content)
	}
}

// PolicyCounts is run_policies()'s returned per-phase tally, summed across
// every user processed in the run.
type PolicyCounts struct {
	Migrated         int
	Trimmed          int
	Summarized       int
	ThreadSummarized int
	Clustered        int
	UsersProcessed   int
	UsersSkipped     int
}

// RunPolicies runs a full policy pass over every user and returns the
// aggregated per-phase counts.
func (m *Manager) RunPolicies(ctx context.Context) (*PolicyCounts, error) {
	report, err := m.Executor.RunPolicies(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("manager: run_policies: %w", err)
	}

	counts := &PolicyCounts{
		UsersProcessed: len(report.Users),
		UsersSkipped:   len(report.UsersSkipped),
	}
	for _, user := range report.Users {
		for _, phase := range user.Phases {
			switch phase.Phase {
			case "migrate":
				counts.Migrated += phase.RecordsTouched
			case "trim":
				counts.Trimmed += phase.RecordsTouched
			case "summarize":
				counts.Summarized += phase.RecordsTouched
			case "thread_summarize":
				counts.ThreadSummarized += phase.RecordsTouched
			case "cluster_rebuild":
				counts.Clustered += phase.RecordsTouched
			}
		}
	}
	return counts, nil
}

// PromoteTier explicitly advances the given records to targetTier,
// rejecting any record whose current tier is already at or past it
// (backward moves are always an InvalidArgument, spec.md §7).
func (m *Manager) PromoteTier(ctx context.Context, ids []int64, targetTier string) (int, error) {
	target := model.Tier(targetTier)
	if !target.IsValid() {
		return 0, errs.NewInvalidArgument(fmt.Sprintf("promote_tier: unknown tier %q", targetTier))
	}

	promoted := 0
	for _, id := range ids {
		rec, err := m.Store.GetRecord(ctx, id)
		if err != nil {
			return promoted, fmt.Errorf("manager: promote_tier: %w", err)
		}
		if !rec.Tier.Before(target) {
			return promoted, errs.NewInvalidArgument(fmt.Sprintf("promote_tier: record %d is already at or past tier %q", id, targetTier))
		}
		if _, err := m.Store.UpdateRecord(ctx, id, registrystore.RecordUpdate{Tier: &target}); err != nil {
			return promoted, fmt.Errorf("manager: promote_tier: update %d: %w", id, err)
		}
		promoted++
	}
	return promoted, nil
}

// RebuildClusters runs the full per-user policy pass (all five phases, via
// Executor.RunForUser) for one user and returns the cluster_rebuild phase's
// count of clusters written. The cluster-rebuild phase is not run on its
// own.
func (m *Manager) RebuildClusters(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, errs.NewInvalidArgument("rebuild_clusters requires user_id")
	}
	report := m.Executor.RunForUser(ctx, userID, time.Now())
	for _, phase := range report.Phases {
		if phase.Phase == "cluster_rebuild" {
			return phase.RecordsTouched, phase.Err
		}
	}
	return 0, nil
}

// GetTierStats returns per-tier record counts and age ranges for a user.
func (m *Manager) GetTierStats(ctx context.Context, userID string) ([]registrystore.TierStats, error) {
	if userID == "" {
		return nil, errs.NewInvalidArgument("get_tier_stats requires user_id")
	}
	stats, err := m.Store.TierStatsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("manager: get_tier_stats: %w", err)
	}
	return stats, nil
}

// InspectResult is a diagnostic snapshot of one user's memory state.
type InspectResult struct {
	TierStats    []registrystore.TierStats
	ClusterCount int
	RecentEvents []model.LifecycleEvent
}

// Inspect returns a diagnostic snapshot: tier counts, cluster count, and
// the most recent lifecycle events for a user.
func (m *Manager) Inspect(ctx context.Context, userID string) (*InspectResult, error) {
	if userID == "" {
		return nil, errs.NewInvalidArgument("inspect requires user_id")
	}
	stats, err := m.Store.TierStatsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("manager: inspect: tier stats: %w", err)
	}
	clusters, err := m.Store.GetClusters(ctx, registrystore.ClusterFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("manager: inspect: clusters: %w", err)
	}
	recentEvents, err := m.Store.GetEvents(ctx, userID, 20)
	if err != nil {
		return nil, fmt.Errorf("manager: inspect: events: %w", err)
	}
	return &InspectResult{
		TierStats:    stats,
		ClusterCount: len(clusters),
		RecentEvents: recentEvents,
	}, nil
}

func (m *Manager) publishEvent(ctx context.Context, kind model.EventKind, userID, resourceID string, metadata model.Metadata, success bool, errMsg string) {
	event := model.LifecycleEvent{
		Kind:       kind,
		UserID:     userID,
		ResourceID: resourceID,
		Metadata:   metadata,
		Timestamp:  time.Now().UTC(),
		Success:    success,
		Error:      errMsg,
	}
	if err := m.Store.AppendEvent(ctx, &event); err != nil {
		log.Warn("manager: failed to persist lifecycle event", "kind", kind, "err", err)
	}
	if m.Events != nil {
		m.Events.Publish(ctx, event)
	}
}
