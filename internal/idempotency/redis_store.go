package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyFormat = "schoolpay:idem:%s:%s"

// RedisStore relies on key expiry instead of purging.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttlOrDefault(ttl)}
}

func (s *RedisStore) MarkSeen(ctx context.Context, kind Kind, key string) (bool, error) {
	key, err := validate(kind, key)
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, fmt.Sprintf(redisKeyFormat, kind, key), "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (s *RedisStore) Remember(ctx context.Context, kind Kind, key string, payload []byte) error {
	key, err := validate(kind, key)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, fmt.Sprintf(redisKeyFormat, kind, key), payload, s.ttl).Err()
}

func (s *RedisStore) Recall(ctx context.Context, kind Kind, key string) ([]byte, bool, error) {
	key, err := validate(kind, key)
	if err != nil {
		return nil, false, err
	}
	payload, err := s.client.Get(ctx, fmt.Sprintf(redisKeyFormat, kind, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *RedisStore) Forget(ctx context.Context, kind Kind, key string) error {
	key, err := validate(kind, key)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, fmt.Sprintf(redisKeyFormat, kind, key)).Err()
}
