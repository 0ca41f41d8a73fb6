// Package policy implements the Policy Executor: the five ordered phases
// (migrate, trim, summarize, thread-summarize, cluster rebuild) that move
// memories through their lifecycle tiers. Each phase is independently
// idempotent, and the executor takes a per-user advisory lock around the
// whole run so two concurrent invocations never race on the same user's
// memories (spec.md §4.6, §5), grounded on the teacher's ticking
// EpisodicTTLService.
package policy

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/events"
	"github.com/memoric/memoric/internal/model"
	"github.com/memoric/memoric/internal/obsv"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/memoric/memoric/internal/scoring"
	"github.com/memoric/memoric/internal/textproc"
)

// PhaseResult summarizes one phase's effect on one user's memories.
type PhaseResult struct {
	Phase         string
	RecordsTouched int
	Err           error
}

// UserReport summarizes a full run_policies pass for one user.
type UserReport struct {
	UserID string
	Phases []PhaseResult
}

// Report summarizes a full run_policies invocation across users.
type Report struct {
	Users        []UserReport
	UsersSkipped []string // locked by a concurrent executor
}

// Executor runs the five lifecycle phases over a store.
type Executor struct {
	Store      registrystore.MemoryStore
	Config     *config.Config
	Trimmer    textproc.Trimmer
	Summarizer textproc.Summarizer
	Scorer     *scoring.Engine
	Events     *events.Broadcaster
	Locker     Locker
}

// NewExecutor builds an Executor, defaulting the Locker to a LocalLocker
// when cfg.RedisURL is empty (spec.md §9: single-instance deployments do
// not require Redis).
func NewExecutor(store registrystore.MemoryStore, cfg *config.Config, broadcaster *events.Broadcaster) (*Executor, error) {
	var locker Locker
	if cfg.RedisURL != "" {
		redisLocker, err := NewRedisLocker(cfg.RedisURL, 10*time.Minute)
		if err != nil {
			return nil, err
		}
		locker = redisLocker
	} else {
		locker = NewLocalLocker()
	}

	summarizerCfg := textproc.SummarizerConfig{Type: textproc.Kind(cfg.Summarizer.Type)}
	if cfg.Summarizer.MaxRetries > 0 {
		summarizerCfg.MaxRetries = uint64(cfg.Summarizer.MaxRetries)
	}
	if cfg.Summarizer.AnthropicAPIKey != "" {
		summarizerCfg.Model = textproc.NewAnthropicModel(cfg.Summarizer.AnthropicAPIKey, cfg.Summarizer.AnthropicModel)
	}

	return &Executor{
		Store:      store,
		Config:     cfg,
		Trimmer:    textproc.NewTrimmer(textproc.TrimmerConfig{Type: textproc.Kind(cfg.Trimmer.Type)}),
		Summarizer: textproc.NewSummarizer(summarizerCfg),
		Scorer:     scoring.NewEngine(scoring.Config{Weights: scoring.Weights{Importance: cfg.Scoring.ImportanceWeight, Recency: cfg.Scoring.RecencyWeight, Repetition: cfg.Scoring.RepetitionWeight}, HalfLife: cfg.Scoring.HalfLife, RepetitionSaturation: cfg.Scoring.RepetitionSaturation}),
		Events:     broadcaster,
		Locker:     locker,
	}, nil
}

// RunPolicies runs a full batch of run_policies over every user with at
// least one memory record, honoring cfg.PolicyBatchSize.
func (e *Executor) RunPolicies(ctx context.Context, now time.Time) (*Report, error) {
	report := &Report{}
	afterUserID := ""
	for {
		batchSize := e.Config.PolicyBatchSize
		if batchSize <= 0 {
			batchSize = 50
		}
		userIDs, err := e.Store.DistinctUserIDs(ctx, afterUserID, batchSize)
		if err != nil {
			return report, err
		}
		if len(userIDs) == 0 {
			break
		}
		for _, userID := range userIDs {
			release, acquired, err := e.Locker.TryLock(ctx, userID)
			if err != nil {
				log.Error("policy: lock failed", "user_id", userID, "err", err)
				continue
			}
			if !acquired {
				report.UsersSkipped = append(report.UsersSkipped, userID)
				continue
			}
			userReport := e.RunForUser(ctx, userID, now)
			release()
			report.Users = append(report.Users, userReport)
		}
		afterUserID = userIDs[len(userIDs)-1]
		if len(userIDs) < batchSize {
			break
		}
	}
	return report, nil
}

// RunForUser runs the five lifecycle phases, in order, for a single user.
// A phase's failure is recorded and does not prevent later phases from
// running: each phase is independently safe to retry on its own.
func (e *Executor) RunForUser(ctx context.Context, userID string, now time.Time) UserReport {
	report := UserReport{UserID: userID}

	phases := []struct {
		name string
		run  func(context.Context, string, time.Time) (int, error)
	}{
		{"migrate", e.migratePhase},
		{"trim", e.trimPhase},
		{"summarize", e.summarizePhase},
		{"thread_summarize", e.threadSummarizePhase},
		{"cluster_rebuild", e.clusterRebuildPhase},
	}

	for _, phase := range phases {
		start := time.Now()
		count, err := phase.run(ctx, userID, now)
		duration := time.Since(start)

		outcome := "ok"
		if err != nil {
			outcome = "error"
			log.Error("policy: phase failed", "phase", phase.name, "user_id", userID, "err", err)
		}
		if obsv.PolicyPhaseTotal != nil {
			obsv.PolicyPhaseTotal.WithLabelValues(phase.name, outcome).Inc()
			obsv.PolicyPhaseDuration.WithLabelValues(phase.name).Observe(duration.Seconds())
		}
		e.publishPhaseEvent(ctx, userID, phase.name, count, err)
		report.Phases = append(report.Phases, PhaseResult{Phase: phase.name, RecordsTouched: count, Err: err})
	}
	return report
}

func (e *Executor) publishPhaseEvent(ctx context.Context, userID, phase string, count int, err error) {
	if e.Events == nil {
		return
	}
	kind := phaseEventKind(phase)
	if err != nil {
		kind = model.EventPolicyFailed
	}
	event := model.LifecycleEvent{
		Kind:      kind,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Success:   err == nil,
		Metadata:  model.Metadata{"phase": phase, "records_touched": count},
	}
	if err != nil {
		event.Error = err.Error()
	}
	// Event persistence is best-effort: a failure here must never fail the
	// phase that produced it.
	if persistErr := e.Store.AppendEvent(ctx, &event); persistErr != nil {
		log.Warn("policy: failed to persist lifecycle event", "phase", phase, "err", persistErr)
	}
	e.Events.Publish(ctx, event)
}

func phaseEventKind(phase string) model.EventKind {
	switch phase {
	case "migrate":
		return model.EventMigrated
	case "trim":
		return model.EventTrimmed
	case "summarize":
		return model.EventSummarized
	case "thread_summarize":
		return model.EventThreadSummarized
	case "cluster_rebuild":
		return model.EventClustered
	default:
		return model.EventPolicyRun
	}
}
