package idempotency

import (
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	BackendSQL   = "sql"
	BackendRedis = "redis"
)

var Module = fx.Module("idempotency",
	fx.Provide(NewStore),
)

type StoreParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Clock  clock.Clock
	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
}

func NewStore(p StoreParams) (Store, error) {
	ttl := p.Config.Idempotency.TTL
	switch p.Config.Idempotency.Backend {
	case BackendRedis:
		if p.Redis == nil {
			return nil, errors.New("IDEMPOTENCY_BACKEND=redis requires REDIS_ADDR")
		}
		p.Log.Info("idempotency store: redis", zap.Duration("ttl", ttlOrDefault(ttl)))
		return NewRedisStore(p.Redis, ttl), nil
	case BackendSQL, "":
		p.Log.Info("idempotency store: sql", zap.Duration("ttl", ttlOrDefault(ttl)))
		return NewSQLStore(p.DB, p.Clock, ttl), nil
	default:
		return nil, errors.New("unsupported idempotency backend " + p.Config.Idempotency.Backend)
	}
}
