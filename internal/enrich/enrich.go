// Package enrich derives {topic, category, entities, importance}
// metadata from memory content (spec.md §4.3). The Enricher contract always
// returns a superset of the existing metadata; failures degrade to the
// existing metadata unchanged, never block the save.
package enrich

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/memoric/memoric/internal/model"
)

// Enricher derives additional metadata from content. Implementations may
// add topic/category/entities/importance; they must never drop or
// overwrite an existing_metadata key the caller already set explicitly,
// except to fill in reserved keys that were absent.
type Enricher interface {
	Enrich(ctx context.Context, content string, existing model.Metadata) (model.Metadata, error)
}

// Default is the deterministic heuristic enricher: it extracts a
// title-case noun phrase as the topic, assigns a category via keyword
// lookup, and defaults importance to the medium value. It never errors.
type Default struct{}

var titleCasePhrase = regexp.MustCompile(`\b([A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*)\b`)

var categoryKeywords = map[string][]string{
	"billing":    {"invoice", "payment", "charge", "refund", "subscription", "bill"},
	"support":    {"bug", "error", "issue", "broken", "crash", "fail"},
	"onboarding": {"welcome", "getting started", "setup", "onboard", "tutorial"},
	"account":    {"password", "login", "email", "profile", "username"},
	"feedback":   {"feedback", "suggestion", "idea", "feature request"},
}

func (Default) Enrich(_ context.Context, content string, existing model.Metadata) (model.Metadata, error) {
	out := existing.Clone()

	if _, ok := out.Topic(); !ok {
		if topic := extractTopic(content); topic != "" {
			out[model.MetaTopic] = topic
		}
	}
	if _, ok := out.Category(); !ok {
		if category := classifyCategory(content); category != "" {
			out[model.MetaCategory] = category
		}
	}
	if _, ok := out[model.MetaEntities]; !ok {
		if entities := extractEntities(content); len(entities) > 0 {
			out[model.MetaEntities] = entities
		}
	}
	if _, ok := out[model.MetaImportance]; !ok {
		out[model.MetaImportance] = model.ImportanceMedium
	}
	return out, nil
}

// extractTopic returns the first multi-word title-case phrase found in
// content, lowercased, as a simple deterministic stand-in for a real NLP
// topic extractor.
func extractTopic(content string) string {
	matches := titleCasePhrase.FindAllString(content, -1)
	for _, m := range matches {
		if strings.Contains(m, " ") {
			return strings.ToLower(m)
		}
	}
	if len(matches) > 0 {
		return strings.ToLower(matches[0])
	}
	return ""
}

func classifyCategory(content string) string {
	lower := strings.ToLower(content)
	categories := make([]string, 0, len(categoryKeywords))
	for category := range categoryKeywords {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(lower, kw) {
				return category
			}
		}
	}
	return ""
}

// extractEntities collects the set of distinct title-case tokens in
// content, in first-seen order, as a deterministic entity stand-in.
func extractEntities(content string) []string {
	matches := titleCasePhrase.FindAllString(content, -1)
	seen := map[string]bool{}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// WithFallback wraps an Enricher so that any error degrades to the existing
// metadata unchanged and is reported via onWarn rather than propagated,
// matching spec.md §4.3's failure policy. onWarn may be nil.
type WithFallback struct {
	Enricher Enricher
	OnWarn   func(err error)
}

func (w WithFallback) Enrich(ctx context.Context, content string, existing model.Metadata) model.Metadata {
	result, err := safeEnrich(ctx, w.Enricher, content, existing)
	if err != nil {
		log.Warn("enrich: enrichment failed, proceeding with existing metadata", "err", err)
		if w.OnWarn != nil {
			w.OnWarn(err)
		}
		return existing
	}
	return result
}

func safeEnrich(ctx context.Context, e Enricher, content string, existing model.Metadata) (result model.Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicToErr(r)
		}
	}()
	return e.Enrich(ctx, content, existing)
}

func panicToErr(r any) error {
	if e, ok := r.(error); ok {
		return e
	}
	return &panicError{r}
}

type panicError struct{ v any }

func (p *panicError) Error() string { return "enrich: panic recovered" }
