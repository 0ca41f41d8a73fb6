// Package sqlite implements the MemoryStore contract against embedded
// SQLite via GORM, evaluating metadata containment in application code with
// internal/matcher since SQLite has no portable native jsonb operator
// reachable through database/sql.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/errs"
	"github.com/memoric/memoric/internal/matcher"
	"github.com/memoric/memoric/internal/model"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return nil, fmt.Errorf("sqlite store: no config in context")
			}
			dsn := cfg.DBURL
			if dsn == "" {
				dsn = "file::memory:?cache=shared"
			}
			db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("sqlite store: failed to open: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("sqlite store: failed to get underlying db: %w", err)
			}
			// A single writer connection sidesteps SQLite's "database is
			// locked" errors under concurrent writes.
			sqlDB.SetMaxOpenConns(1)

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

// Store implements registrystore.MemoryStore against embedded SQLite.
type Store struct {
	db *gorm.DB
}

func (s *Store) Migrate(ctx context.Context) error {
	log.Info("sqlite: running schema migration")
	return s.db.WithContext(ctx).AutoMigrate(&model.MemoryRecord{}, &model.MemoryCluster{}, &model.LifecycleEvent{})
}

// SupportsNativeJSONContainment is false: SQLite has no portable native
// jsonb containment operator, so GetRecords filters candidates with
// internal/matcher in application code.
func (s *Store) SupportsNativeJSONContainment() bool { return false }

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
		return tx.Model(&rec).Updates(changes).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound(fmt.Sprintf("memory record %d not found", id))
		}
		return nil, err
	}
	// Re-fetch: sqlite's gorm driver doesn't support RETURNING, so the
	// in-memory struct may not reflect computed column defaults.
	return s.GetRecord(ctx, id)
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

// GetRecords applies the scalar filters in SQL, then — because SQLite has
// no native jsonb containment — evaluates the metadata filter in
// application code via internal/matcher before applying limit/offset, so
// pagination stays correct under the containment predicate.
func (s *Store) GetRecords(ctx context.Context, filter registrystore.RecordFilter) ([]model.MemoryRecord, error) {
	q := applyScalarFilter(s.db.WithContext(ctx), filter)
	q = q.Order("updated_at DESC").Order("id DESC")

	var candidates []model.MemoryRecord
	if err := q.Find(&candidates).Error; err != nil {
		return nil, err
	}

	if len(filter.Metadata) == 0 {
		return paginate(candidates, filter.Offset, filter.Limit), nil
	}

	matched := make([]model.MemoryRecord, 0, len(candidates))
	for _, rec := range candidates {
		if matcher.Matches(filter.Metadata, rec.Metadata) {
			matched = append(matched, rec)
		}
	}
	return paginate(matched, filter.Offset, filter.Limit), nil
}

func (s *Store) CountRecords(ctx context.Context, filter registrystore.RecordFilter) (int64, error) {
	if len(filter.Metadata) == 0 {
		var count int64
		q := applyScalarFilter(s.db.WithContext(ctx).Model(&model.MemoryRecord{}), filter)
		if err := q.Count(&count).Error; err != nil {
			return 0, err
		}
		return count, nil
	}
	recs, err := s.GetRecords(ctx, registrystore.RecordFilter{
		UserID: filter.UserID, Namespace: filter.Namespace, ThreadID: filter.ThreadID,
		SessionID: filter.SessionID, Tier: filter.Tier, Metadata: filter.Metadata,
		IncludeSummarized: filter.IncludeSummarized,
		CreatedBefore:     filter.CreatedBefore, CreatedAfter: filter.CreatedAfter,
	})
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

func paginate(recs []model.MemoryRecord, offset, limit int) []model.MemoryRecord {
	if offset > 0 {
		if offset >= len(recs) {
			return nil
		}
		recs = recs[offset:]
	}
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

func applyScalarFilter(q *gorm.DB, filter registrystore.RecordFilter) *gorm.DB {
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
		q = q.Where("metadata NOT LIKE ?", `%"summarized":true%`)
	}
	if filter.CreatedBefore != nil {
		q = q.Where("created_at < ?", *filter.CreatedBefore)
	}
	if filter.CreatedAfter != nil {
		q = q.Where("created_at > ?", *filter.CreatedAfter)
	}
	return q
}

func (s *Store) UpsertCluster(ctx context.Context, cluster *model.MemoryCluster) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.MemoryCluster
		err := tx.Where("user_id = ? AND topic = ? AND category = ?", cluster.UserID, cluster.Topic, cluster.Category).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if cluster.ID == uuid.Nil {
				cluster.ID = uuid.New()
			}
			return tx.Create(cluster).Error
		case err != nil:
			return err
		default:
			cluster.ID = existing.ID
			cluster.FirstSeen = existing.FirstSeen
			return tx.Model(&existing).Updates(map[string]any{
				"memory_ids":    cluster.MemoryIDs,
				"summary":       cluster.Summary,
				"last_seen":     cluster.LastSeen,
				"last_built_at": cluster.LastBuiltAt,
				"occurrences":   cluster.Occurrences,
			}).Error
		}
	})
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

// ClusterForRecord scans clusters in application code since SQLite cannot
// push the membership-containment check down to SQL.
func (s *Store) ClusterForRecord(ctx context.Context, recordID int64) (*model.MemoryCluster, error) {
	var clusters []model.MemoryCluster
	if err := s.db.WithContext(ctx).Find(&clusters).Error; err != nil {
		return nil, err
	}
	for i := range clusters {
		if clusters[i].MemoryIDs.Contains(recordID) {
			return &clusters[i], nil
		}
	}
	return nil, nil
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
