package model

import "time"

// MemoryRecord is the atomic unit of the memory store: user-attributed text
// plus structured metadata, classified into a lifetime tier.
type MemoryRecord struct {
	// ID is a monotonic integer assigned on insert.
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement;column:id"`

	// UserID is mandatory and immutable; every query filters on it (the
	// isolation invariant) unless global scope is explicitly requested.
	UserID string `json:"userId" gorm:"not null;index:idx_user;index:idx_user_thread,priority:1;index:idx_user_tier_updated,priority:1;column:user_id"`

	// Namespace is an optional tenant scope; empty string is the single
	// global namespace.
	Namespace string `json:"namespace" gorm:"not null;default:'';column:namespace"`

	// ThreadID is an optional conversation identifier.
	ThreadID string `json:"threadId" gorm:"column:thread_id;index:idx_user_thread,priority:2"`

	// SessionID is an optional finer-grained grouping within a thread.
	SessionID string `json:"sessionId" gorm:"column:session_id"`

	// Content is UTF-8 text; it may be rewritten in place by the policy
	// executor's trim/summarize phases.
	Content string `json:"content" gorm:"type:text;not null;column:content"`

	// Metadata is the semi-structured mapping described in model.Metadata.
	Metadata Metadata `json:"metadata" gorm:"type:text;column:metadata"`

	// Tier is the record's lifetime bucket; it only ever moves forward.
	Tier Tier `json:"tier" gorm:"not null;default:'short_term';column:tier;index:idx_user_tier_updated,priority:2"`

	// RelatedThreads is advisory metadata, not a primary key (spec.md §9
	// Open Question). No policy phase, cluster rebuild included, populates
	// it.
	RelatedThreads StringList `json:"relatedThreads" gorm:"type:text;column:related_threads"`

	// CreatedAt and UpdatedAt are UTC timestamps; CreatedAt ≤ UpdatedAt and
	// both are monotonic per record.
	CreatedAt time.Time `json:"createdAt" gorm:"not null;column:created_at;index:idx_user_tier_updated,priority:3"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;column:updated_at"`
}

// TableName implements gorm.Tabler.
func (MemoryRecord) TableName() string { return "memories" }

// Age returns how long ago the record was created, relative to now.
func (r MemoryRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt.UTC())
}

// IsSummarized reports whether this record was folded into a summary and
// should be hidden from default retrieval.
func (r MemoryRecord) IsSummarized() bool {
	return r.Metadata.Summarized()
}
