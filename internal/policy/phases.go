package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/memoric/memoric/internal/model"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/memoric/memoric/internal/scoring"
)

// migratePhase applies every configured MigratePolicy, in order, moving
// records forward one tier at a time. Re-running is a no-op for records
// already moved, since the filter only matches records still in From.
func (e *Executor) migratePhase(ctx context.Context, userID string, now time.Time) (int, error) {
	touched := 0
	for _, mp := range e.Config.MigratePolicies {
		cutoff := now.Add(-time.Duration(mp.WhenAgeDays) * 24 * time.Hour)
		fromTier := model.Tier(mp.From)
		toTier := model.Tier(mp.To)
		if !fromTier.IsValid() || !toTier.IsValid() || !fromTier.Before(toTier) {
			continue
		}

		records, err := e.Store.GetRecords(ctx, registrystore.RecordFilter{
			UserID:            userID,
			Tier:              fromTier,
			CreatedBefore:     &cutoff,
			IncludeSummarized: true,
			Limit:             e.chunkSize(),
		})
		if err != nil {
			return touched, fmt.Errorf("policy: migrate phase: %w", err)
		}
		for _, rec := range records {
			if _, err := e.Store.UpdateRecord(ctx, rec.ID, registrystore.RecordUpdate{Tier: &toTier}); err != nil {
				return touched, fmt.Errorf("policy: migrate record %d: %w", rec.ID, err)
			}
			touched++
		}
	}
	return touched, nil
}

// trimPhase shrinks content past each tier's TrimMaxChars and evicts the
// lowest-scoring excess once a tier exceeds its configured capacity.
// Re-running is a no-op once every record is within bounds.
func (e *Executor) trimPhase(ctx context.Context, userID string, now time.Time) (int, error) {
	// Trim mutates Content directly; with a real encryption provider
	// configured, Content at rest is ciphertext, and trimming it would
	// corrupt the envelope rather than shorten readable text. Capacity
	// eviction doesn't touch Content, so it still runs either way.
	contentEncrypted := e.Config.Encryption.Provider != "" && e.Config.Encryption.Provider != "plain"

	touched := 0
	for _, tier := range e.Config.Tiers {
		if tier.TrimMaxChars > 0 && !contentEncrypted {
			n, err := e.trimContentForTier(ctx, userID, model.Tier(tier.Name), tier.TrimMaxChars)
			if err != nil {
				return touched, err
			}
			touched += n
		}
		if tier.Capacity > 0 {
			n, err := e.evictExcessForTier(ctx, userID, model.Tier(tier.Name), tier.Capacity, now)
			if err != nil {
				return touched, err
			}
			touched += n
		}
	}
	return touched, nil
}

func (e *Executor) trimContentForTier(ctx context.Context, userID string, tier model.Tier, maxChars int) (int, error) {
	records, err := e.Store.GetRecords(ctx, registrystore.RecordFilter{
		UserID: userID, Tier: tier, IncludeSummarized: true, Limit: e.chunkSize(),
	})
	if err != nil {
		return 0, fmt.Errorf("policy: trim phase: %w", err)
	}
	touched := 0
	for _, rec := range records {
		if rec.Metadata.IsHighImportance() {
			continue
		}
		if len([]rune(rec.Content)) <= maxChars {
			continue
		}
		trimmed := e.Trimmer.Trim(rec.Content, maxChars)
		if trimmed == rec.Content {
			continue
		}
		md := rec.Metadata.Clone()
		md[model.MetaTrimmed] = true
		if _, err := e.Store.UpdateRecord(ctx, rec.ID, registrystore.RecordUpdate{Content: &trimmed, Metadata: md}); err != nil {
			return touched, fmt.Errorf("policy: trim record %d: %w", rec.ID, err)
		}
		touched++
	}
	return touched, nil
}

func (e *Executor) evictExcessForTier(ctx context.Context, userID string, tier model.Tier, capacity int, now time.Time) (int, error) {
	records, err := e.Store.GetRecords(ctx, registrystore.RecordFilter{
		UserID: userID, Tier: tier, IncludeSummarized: true,
	})
	if err != nil {
		return 0, fmt.Errorf("policy: trim phase (capacity): %w", err)
	}
	if len(records) <= capacity {
		return 0, nil
	}

	candidates := make([]scoring.Candidate, len(records))
	for i, rec := range records {
		occurrences := 1
		if cluster, err := e.Store.ClusterForRecord(ctx, rec.ID); err == nil && cluster != nil {
			occurrences = cluster.Occurrences
		}
		candidates[i] = scoring.Candidate{Record: rec, Occurrences: occurrences}
	}
	ranked := e.Scorer.ScoreAll(candidates, scoring.Query{}, now)

	excess := ranked[capacity:]
	for _, r := range excess {
		if err := e.Store.DeleteRecord(ctx, r.Record.ID); err != nil {
			return 0, fmt.Errorf("policy: evict record %d: %w", r.Record.ID, err)
		}
	}
	return len(excess), nil
}

// summarizePhase condenses oversized record content toward the tier's
// SummarizeTargetChars. It only touches records at or above
// SummarizeMinChars, so a record summarized once (shorter than the
// min-chars threshold) is never re-summarized.
func (e *Executor) summarizePhase(ctx context.Context, userID string, now time.Time) (int, error) {
	// Summarize mutates Content the same way trim does, so it is skipped
	// under a real encryption provider for the same reason (see trimPhase).
	if e.Config.Encryption.Provider != "" && e.Config.Encryption.Provider != "plain" {
		return 0, nil
	}

	touched := 0
	for _, tier := range e.Config.Tiers {
		if tier.SummarizeMinChars <= 0 {
			continue
		}
		records, err := e.Store.GetRecords(ctx, registrystore.RecordFilter{
			UserID: userID, Tier: model.Tier(tier.Name), Limit: e.chunkSize(),
		})
		if err != nil {
			return touched, fmt.Errorf("policy: summarize phase: %w", err)
		}
		for _, rec := range records {
			if rec.Metadata.IsHighImportance() {
				continue
			}
			if len([]rune(rec.Content)) < tier.SummarizeMinChars {
				continue
			}
			summarized := e.Summarizer.Summarize(rec.Content, tier.SummarizeTargetChars)
			if summarized == rec.Content {
				continue
			}
			if _, err := e.Store.UpdateRecord(ctx, rec.ID, registrystore.RecordUpdate{Content: &summarized}); err != nil {
				return touched, fmt.Errorf("policy: summarize record %d: %w", rec.ID, err)
			}
			touched++
		}
	}
	return touched, nil
}

// threadSummarizePhase folds each eligible thread's unsummarized records
// into a single thread_summary record, marking the originals summarized
// so they drop out of default retrieval and are never folded twice.
func (e *Executor) threadSummarizePhase(ctx context.Context, userID string, now time.Time) (int, error) {
	if !e.Config.ThreadSummarization.Enabled {
		return 0, nil
	}
	// Folds plaintext Content from multiple records into one summary; see
	// trimPhase for why this can't safely run against ciphertext Content.
	if e.Config.Encryption.Provider != "" && e.Config.Encryption.Provider != "plain" {
		return 0, nil
	}

	records, err := e.Store.GetRecords(ctx, registrystore.RecordFilter{UserID: userID, Limit: 0})
	if err != nil {
		return 0, fmt.Errorf("policy: thread-summarize phase: %w", err)
	}

	byThread := map[string][]model.MemoryRecord{}
	for _, rec := range records {
		if rec.ThreadID == "" || rec.IsSummarized() || rec.Metadata.Kind() == model.KindThreadSummary {
			continue
		}
		byThread[rec.ThreadID] = append(byThread[rec.ThreadID], rec)
	}

	touched := 0
	for threadID, recs := range byThread {
		if len(recs) < e.Config.ThreadSummarization.MinRecords {
			continue
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })

		var joined strings.Builder
		sourceIDs := make([]int64, 0, len(recs))
		topics := map[string]struct{}{}
		for _, rec := range recs {
			joined.WriteString(rec.Content)
			joined.WriteString("\n")
			sourceIDs = append(sourceIDs, rec.ID)
			if topic, ok := rec.Metadata.Topic(); ok {
				topics[topic] = struct{}{}
			}
		}
		summary := e.Summarizer.Summarize(joined.String(), e.Config.ThreadSummarization.MaxChars)

		topicList := make([]string, 0, len(topics))
		for t := range topics {
			topicList = append(topicList, t)
		}
		sort.Strings(topicList)

		summaryRecord := &model.MemoryRecord{
			UserID:    userID,
			Namespace: recs[0].Namespace,
			ThreadID:  threadID,
			Content:   summary,
			Tier:      model.TierLongTerm,
			Metadata: model.Metadata{
				model.MetaKind:      model.KindThreadSummary,
				model.MetaSourceIDs: sourceIDs,
				model.MetaTopics:    topicList,
			},
		}
		if err := e.Store.InsertRecord(ctx, summaryRecord); err != nil {
			return touched, fmt.Errorf("policy: insert thread summary for thread %q: %w", threadID, err)
		}

		for _, rec := range recs {
			md := rec.Metadata.Clone()
			md[model.MetaSummarized] = true
			if _, err := e.Store.UpdateRecord(ctx, rec.ID, registrystore.RecordUpdate{Metadata: md}); err != nil {
				return touched, fmt.Errorf("policy: mark record %d summarized: %w", rec.ID, err)
			}
		}
		touched += len(recs) + 1
	}
	return touched, nil
}

// clusterRebuildPhase recomputes every (topic, category) cluster from
// scratch for the user. Rebuilding is idempotent: UpsertCluster replaces
// the full membership set each time, so re-running with unchanged input
// produces the same cluster.
func (e *Executor) clusterRebuildPhase(ctx context.Context, userID string, now time.Time) (int, error) {
	if !e.Config.Clustering.Enabled || e.Config.Clustering.Strategy != "topic_category" {
		return 0, nil
	}

	records, err := e.Store.GetRecords(ctx, registrystore.RecordFilter{UserID: userID, IncludeSummarized: true})
	if err != nil {
		return 0, fmt.Errorf("policy: cluster-rebuild phase: %w", err)
	}

	type group struct {
		ids       []int64
		firstSeen time.Time
		lastSeen  time.Time
	}
	groups := map[[2]string]*group{}
	for _, rec := range records {
		topic, ok := rec.Metadata.Topic()
		if !ok || topic == "" {
			continue
		}
		category, _ := rec.Metadata.Category()
		key := [2]string{topic, category}
		g, ok := groups[key]
		if !ok {
			g = &group{firstSeen: rec.CreatedAt, lastSeen: rec.CreatedAt}
			groups[key] = g
		}
		g.ids = append(g.ids, rec.ID)
		if rec.CreatedAt.Before(g.firstSeen) {
			g.firstSeen = rec.CreatedAt
		}
		if rec.CreatedAt.After(g.lastSeen) {
			g.lastSeen = rec.CreatedAt
		}
	}

	touched := 0
	for key, g := range groups {
		if len(g.ids) < e.Config.Clustering.MinClusterSize {
			continue
		}
		cluster := &model.MemoryCluster{
			UserID:      userID,
			Topic:       key[0],
			Category:    key[1],
			MemoryIDs:   model.NewIDSet(g.ids...),
			FirstSeen:   g.firstSeen,
			LastSeen:    g.lastSeen,
			LastBuiltAt: now,
			Occurrences: len(g.ids),
		}
		if err := e.Store.UpsertCluster(ctx, cluster); err != nil {
			return touched, fmt.Errorf("policy: upsert cluster %v: %w", key, err)
		}
		touched++
	}
	return touched, nil
}

func (e *Executor) chunkSize() int {
	if e.Config.PolicyChunkSize > 0 {
		return e.Config.PolicyChunkSize
	}
	return 200
}
