// Package postgres implements the MemoryStore contract against PostgreSQL
// via GORM, pushing metadata containment filters down to native jsonb `@>`
// queries.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/errs"
	"github.com/memoric/memoric/internal/model"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return nil, fmt.Errorf("postgres store: no config in context")
			}
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("postgres store: failed to connect: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("postgres store: failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)

			store := &Store{db: db}
			if cfg.DatastoreMigrateAtStart {
				if err := store.Migrate(ctx); err != nil {
					return nil, err
				}
			}
			return store, nil
		},
	})
}

// Store implements registrystore.MemoryStore against PostgreSQL.
type Store struct {
	db *gorm.DB
}

// Migrate applies the schema via GORM AutoMigrate.
func (s *Store) Migrate(ctx context.Context) error {
	log.Info("postgres: running schema migration")
	return s.db.WithContext(ctx).AutoMigrate(&model.MemoryRecord{}, &model.MemoryCluster{}, &model.LifecycleEvent{})
}

// SupportsNativeJSONContainment is true: Postgres evaluates metadata
// containment with its native jsonb `@>` operator.
func (s *Store) SupportsNativeJSONContainment() bool { return true }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) InsertRecord(ctx context.Context, rec *model.MemoryRecord) error {
	if rec.Tier == "" {
		rec.Tier = model.TierShortTerm
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *Store) UpdateRecord(ctx context.Context, id int64, update registrystore.RecordUpdate) (*model.MemoryRecord, error) {
	var rec model.MemoryRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			return err
		}
		changes := map[string]any{}
		if update.Content != nil {
			changes["content"] = *update.Content
		}
		if update.Metadata != nil {
			changes["metadata"] = update.Metadata
		}
		if update.Tier != nil {
			changes["tier"] = *update.Tier
		}
		if update.RelatedThreads != nil {
			changes["related_threads"] = update.RelatedThreads
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&rec).Clauses(clause.Returning{}).Updates(changes).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound(fmt.Sprintf("memory record %d not found", id))
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&model.MemoryRecord{}, "id = ?", id).Error
}

func (s *Store) GetRecord(ctx context.Context, id int64) (*model.MemoryRecord, error) {
	var rec model.MemoryRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound(fmt.Sprintf("memory record %d not found", id))
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetRecords(ctx context.Context, filter registrystore.RecordFilter) ([]model.MemoryRecord, error) {
	q := applyRecordFilter(s.db.WithContext(ctx), filter)
	q = q.Order("updated_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var recs []model.MemoryRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) CountRecords(ctx context.Context, filter registrystore.RecordFilter) (int64, error) {
	var count int64
	q := applyRecordFilter(s.db.WithContext(ctx).Model(&model.MemoryRecord{}), filter)
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyRecordFilter(q *gorm.DB, filter registrystore.RecordFilter) *gorm.DB {
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Namespace != "" {
		q = q.Where("namespace = ?", filter.Namespace)
	}
	if filter.ThreadID != "" {
		q = q.Where("thread_id = ?", filter.ThreadID)
	}
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.Tier != "" {
		q = q.Where("tier = ?", filter.Tier)
	}
	if !filter.IncludeSummarized {
		q = q.Where("metadata::jsonb->>'summarized' IS DISTINCT FROM 'true'")
	}
	if filter.CreatedBefore != nil {
		q = q.Where("created_at < ?", *filter.CreatedBefore)
	}
	if filter.CreatedAfter != nil {
		q = q.Where("created_at > ?", *filter.CreatedAfter)
	}
	if len(filter.Metadata) > 0 {
		raw, err := json.Marshal(filter.Metadata)
		if err == nil {
			q = q.Where("metadata::jsonb @> ?::jsonb", string(raw))
		}
	}
	return q
}

func (s *Store) UpsertCluster(ctx context.Context, cluster *model.MemoryCluster) error {
	if cluster.ID == uuid.Nil {
		cluster.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "topic"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"memory_ids", "summary", "last_seen", "last_built_at", "occurrences"}),
	}).Create(cluster).Error
}

func (s *Store) GetClusters(ctx context.Context, filter registrystore.ClusterFilter) ([]model.MemoryCluster, error) {
	q := s.db.WithContext(ctx)
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Topic != "" {
		q = q.Where("topic = ?", filter.Topic)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var clusters []model.MemoryCluster
	if err := q.Find(&clusters).Error; err != nil {
		return nil, err
	}
	return clusters, nil
}

func (s *Store) ClusterForRecord(ctx context.Context, recordID int64) (*model.MemoryCluster, error) {
	raw, _ := json.Marshal([]int64{recordID})
	var cluster model.MemoryCluster
	err := s.db.WithContext(ctx).Where("memory_ids::jsonb @> ?::jsonb", string(raw)).First(&cluster).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cluster, nil
}

func (s *Store) AppendEvent(ctx context.Context, event *model.LifecycleEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *Store) GetEvents(ctx context.Context, userID string, limit int) ([]model.LifecycleEvent, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []model.LifecycleEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) TierStatsFor(ctx context.Context, userID string) ([]registrystore.TierStats, error) {
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT tier, COUNT(*) AS count, MIN(created_at) AS oldest, MAX(created_at) AS newest
		FROM memories WHERE user_id = ? GROUP BY tier
	`, userID).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []registrystore.TierStats
	for rows.Next() {
		var tier model.Tier
		var count int64
		var oldest, newest time.Time
		if err := rows.Scan(&tier, &count, &oldest, &newest); err != nil {
			return nil, err
		}
		stats = append(stats, registrystore.TierStats{Tier: tier, Count: count, OldestCreatedAt: oldest, NewestCreatedAt: newest})
	}
	return stats, rows.Err()
}

func (s *Store) DistinctUserIDs(ctx context.Context, afterUserID string, limit int) ([]string, error) {
	q := s.db.WithContext(ctx).Model(&model.MemoryRecord{}).Distinct("user_id").Order("user_id ASC")
	if afterUserID != "" {
		q = q.Where("user_id > ?", afterUserID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []string
	if err := q.Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
