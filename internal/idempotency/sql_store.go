package idempotency

import (
	"context"
	"time"

	"github.com/smallbiznis/schoolpay/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cacheRow struct {
	Kind      string         `gorm:"column:kind;primaryKey"`
	CacheKey  string         `gorm:"column:cache_key;primaryKey"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (cacheRow) TableName() string { return "idempotency_cache" }

var cacheKeyColumns = []clause.Column{{Name: "kind"}, {Name: "cache_key"}}

// SQLStore keeps entries in idempotency_cache. Expired rows of a kind are
// deleted on every access to that kind.
type SQLStore struct {
	db    *gorm.DB
	clock clock.Clock
	ttl   time.Duration
}

func NewSQLStore(db *gorm.DB, c clock.Clock, ttl time.Duration) *SQLStore {
	return &SQLStore{db: db, clock: c, ttl: ttlOrDefault(ttl)}
}

func (s *SQLStore) MarkSeen(ctx context.Context, kind Kind, key string) (bool, error) {
	key, err := validate(kind, key)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	if err := s.purge(ctx, kind, now); err != nil {
		return false, err
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: cacheKeyColumns, DoNothing: true}).
		Create(&cacheRow{Kind: string(kind), CacheKey: key, CreatedAt: now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 0, nil
}

func (s *SQLStore) Remember(ctx context.Context, kind Kind, key string, payload []byte) error {
	key, err := validate(kind, key)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	if err := s.purge(ctx, kind, now); err != nil {
		return err
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   cacheKeyColumns,
			DoUpdates: clause.AssignmentColumns([]string{"payload", "created_at"}),
		}).
		Create(&cacheRow{Kind: string(kind), CacheKey: key, Payload: datatypes.JSON(payload), CreatedAt: now}).Error
}

func (s *SQLStore) Recall(ctx context.Context, kind Kind, key string) ([]byte, bool, error) {
	key, err := validate(kind, key)
	if err != nil {
		return nil, false, err
	}
	now := s.clock.Now()
	if err := s.purge(ctx, kind, now); err != nil {
		return nil, false, err
	}

	var rows []struct {
		Payload datatypes.JSON
	}
	err = s.db.WithContext(ctx).Raw(
		`SELECT payload FROM idempotency_cache
		 WHERE kind = ? AND cache_key = ? AND payload IS NOT NULL
		 LIMIT 1`,
		string(kind),
		key,
	).Scan(&rows).Error
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 || len(rows[0].Payload) == 0 {
		return nil, false, nil
	}
	return []byte(rows[0].Payload), true, nil
}

func (s *SQLStore) Forget(ctx context.Context, kind Kind, key string) error {
	key, err := validate(kind, key)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(
		`DELETE FROM idempotency_cache WHERE kind = ? AND cache_key = ?`,
		string(kind),
		key,
	).Error
}

func (s *SQLStore) purge(ctx context.Context, kind Kind, now time.Time) error {
	return s.db.WithContext(ctx).Exec(
		`DELETE FROM idempotency_cache WHERE kind = ? AND created_at < ?`,
		string(kind),
		now.Add(-s.ttl),
	).Error
}
