// Package store defines the MemoryStore contract and the plugin registry
// store backends register themselves into, mirroring the teacher's
// registry/loader pattern.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/memoric/memoric/internal/model"
)

// RecordFilter selects a slice of memories for a retrieval candidate fetch
// or a policy phase sweep. Zero-value fields are unconstrained.
type RecordFilter struct {
	UserID     string
	Namespace  string
	ThreadID   string
	SessionID  string
	Tier       model.Tier
	// Metadata, when non-nil, is matched by containment: a record matches
	// when its metadata is a superset of this filter (internal/matcher
	// rules).
	Metadata map[string]any

	IncludeSummarized bool

	CreatedBefore *time.Time
	CreatedAfter  *time.Time

	Limit  int
	Offset int
}

// RecordUpdate carries the mutable subset of a MemoryRecord a policy phase
// or manager operation may change. Nil fields are left untouched.
type RecordUpdate struct {
	Content        *string
	Metadata       model.Metadata
	Tier           *model.Tier
	RelatedThreads model.StringList
}

// ClusterFilter selects clusters for rebuild or lookup.
type ClusterFilter struct {
	UserID   string
	Topic    string
	Category string
	Limit    int
}

// TierStats summarizes one (user, tier) pair for get_tier_stats.
type TierStats struct {
	Tier            model.Tier
	Count           int64
	OldestCreatedAt time.Time
	NewestCreatedAt time.Time
}

// MemoryStore is the storage contract every store plugin implements. It is
// the boundary across which dialect differences (native jsonb containment
// vs. application-level evaluation) are hidden from the rest of the
// engine (spec.md §8 dialect-equivalence).
type MemoryStore interface {
	// Migrate applies the store's schema, creating tables/indexes as
	// needed. Safe to call repeatedly.
	Migrate(ctx context.Context) error

	// InsertRecord persists a new memory record, assigning its ID.
	InsertRecord(ctx context.Context, rec *model.MemoryRecord) error
	// UpdateRecord applies a partial update to an existing record.
	UpdateRecord(ctx context.Context, id int64, update RecordUpdate) (*model.MemoryRecord, error)
	// DeleteRecord removes a record outright (used by trim, never by
	// normal retrieval paths).
	DeleteRecord(ctx context.Context, id int64) error
	// GetRecord fetches a single record by ID.
	GetRecord(ctx context.Context, id int64) (*model.MemoryRecord, error)
	// GetRecords returns records matching filter, ordered by updated_at
	// descending, then id descending (callers that need score ordering sort
	// in-process).
	GetRecords(ctx context.Context, filter RecordFilter) ([]model.MemoryRecord, error)
	// CountRecords returns the count of records matching filter without
	// fetching them.
	CountRecords(ctx context.Context, filter RecordFilter) (int64, error)

	// UpsertCluster creates or updates a cluster keyed by (user, topic,
	// category).
	UpsertCluster(ctx context.Context, cluster *model.MemoryCluster) error
	// GetClusters returns clusters matching filter.
	GetClusters(ctx context.Context, filter ClusterFilter) ([]model.MemoryCluster, error)
	// ClusterForRecord returns the cluster a record currently belongs to,
	// if any, used to resolve scoring.Candidate.Occurrences.
	ClusterForRecord(ctx context.Context, recordID int64) (*model.MemoryCluster, error)

	// AppendEvent records a lifecycle event in the append-only event
	// stream.
	AppendEvent(ctx context.Context, event *model.LifecycleEvent) error
	// GetEvents returns events for a user, most recent first, for
	// inspection/auditing.
	GetEvents(ctx context.Context, userID string, limit int) ([]model.LifecycleEvent, error)

	// TierStatsFor summarizes per-tier counts for a user, for
	// get_tier_stats.
	TierStatsFor(ctx context.Context, userID string) ([]TierStats, error)

	// DistinctUserIDs returns every user_id with at least one record,
	// used by the Policy Executor to batch run_policies across users.
	DistinctUserIDs(ctx context.Context, afterUserID string, limit int) ([]string, error)

	// SupportsNativeJSONContainment reports whether this dialect can
	// push metadata containment filters down to the database (Postgres
	// jsonb @>) or must rely on internal/matcher in-process (SQLite).
	SupportsNativeJSONContainment() bool

	Close() error
}

// Loader creates a MemoryStore from context (the context carries
// *config.Config via config.FromContext).
type Loader func(ctx context.Context) (MemoryStore, error)

// Plugin represents a registered store backend.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from each plugin package's init().
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
