package model

import (
	"time"

	"github.com/google/uuid"
)

// MemoryCluster is aggregated long-term knowledge derived from the
// underlying records sharing a (user, topic, category). Clusters are
// derived state: they may be rebuilt idempotently at any time.
type MemoryCluster struct {
	ID       uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;column:id"`
	UserID   string    `json:"userId" gorm:"not null;uniqueIndex:idx_user_topic_category,priority:1;column:user_id"`
	Topic    string    `json:"topic" gorm:"not null;uniqueIndex:idx_user_topic_category,priority:2;column:topic"`
	Category string    `json:"category" gorm:"not null;uniqueIndex:idx_user_topic_category,priority:3;column:category"`

	// MemoryIDs is the set of record ids aggregated into this cluster.
	MemoryIDs IDSet `json:"memoryIds" gorm:"type:text;column:memory_ids"`

	Summary string `json:"summary" gorm:"type:text;column:summary"`

	FirstSeen   time.Time `json:"firstSeen" gorm:"column:first_seen"`
	LastSeen    time.Time `json:"lastSeen" gorm:"column:last_seen"`
	LastBuiltAt time.Time `json:"lastBuiltAt" gorm:"column:last_built_at"`
	Occurrences int       `json:"occurrences" gorm:"column:occurrences"`
}

// TableName implements gorm.Tabler.
func (MemoryCluster) TableName() string { return "memory_clusters" }
