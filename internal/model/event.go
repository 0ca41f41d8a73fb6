package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the lifecycle events the core emits. Consumers
// (an external audit log, metrics) subscribe to the append-only stream;
// see internal/events.
type EventKind string

const (
	EventCreated          EventKind = "created"
	EventRetrieved        EventKind = "retrieved"
	EventMigrated         EventKind = "migrated"
	EventTrimmed          EventKind = "trimmed"
	EventSummarized       EventKind = "summarized"
	EventThreadSummarized EventKind = "thread_summarized"
	EventClustered        EventKind = "clustered"
	EventDeleted          EventKind = "deleted"
	EventPolicyRun        EventKind = "policy_run"
	EventWarning          EventKind = "warn"
	EventPolicyFailed     EventKind = "policy_failed"
)

// LifecycleEvent is an append-only record of something that happened to a
// user's memories. The Store's AppendEvent is best-effort: a failure to
// persist an event must never fail the operation that produced it.
type LifecycleEvent struct {
	ID         uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;column:id"`
	Kind       EventKind `json:"kind" gorm:"not null;column:kind;index:idx_events_user_time,priority:2"`
	UserID     string    `json:"userId" gorm:"column:user_id;index:idx_events_user_time,priority:1"`
	ResourceID string    `json:"resourceId" gorm:"column:resource_id"`
	Metadata   Metadata  `json:"metadata" gorm:"type:text;column:metadata"`
	Timestamp  time.Time `json:"timestamp" gorm:"not null;column:timestamp;index:idx_events_user_time,priority:3"`
	Success    bool      `json:"success" gorm:"column:success"`
	Error      string    `json:"error,omitempty" gorm:"column:error"`
}

// TableName implements gorm.Tabler.
func (LifecycleEvent) TableName() string { return "memory_events" }
