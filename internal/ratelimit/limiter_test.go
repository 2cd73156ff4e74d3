package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLimiterWithoutRedisAllowsEverything(t *testing.T) {
	l := NewLimiter(config.Config{LoginRatePerMinute: 1, PayPageRatePerMin: 1}, NewTokenBucket(nil), NewGenerationLocks(nil), nil, zap.NewNop())
	assert.False(t, l.Enabled())

	for i := 0; i < 5; i++ {
		res, err := l.AllowLogin(context.Background(), "bursar@example.com")
		assert.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	release, ok := l.LockGeneration(context.Background(), 1, 2)
	assert.True(t, ok)
	release()
}

func TestNilLimiterIsSafe(t *testing.T) {
	var l *Limiter
	res, err := l.AllowPayPage(context.Background(), "10.0.0.1")
	assert.NoError(t, err)
	assert.True(t, res.Allowed)

	release, ok := l.LockGeneration(context.Background(), 1, 2)
	assert.True(t, ok)
	release()
}

func TestTokenBucketRequiresClient(t *testing.T) {
	var b *TokenBucket
	_, err := b.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGenerationLocksWithoutRedis(t *testing.T) {
	var locks *GenerationLocks
	lease, err := locks.Acquire(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Nil(t, lease)
	assert.NoError(t, locks.Release(context.Background(), &Lease{key: "k", token: "t"}))
	assert.Empty(t, lease.Key())
}

func TestGenerationKeyIsPerSchoolAndTerm(t *testing.T) {
	assert.Equal(t, "schoolpay:lock:invoicegen:1001:77", generationKey(1001, 77))
	assert.NotEqual(t, generationKey(1001, 77), generationKey(1002, 77))
	assert.NotEqual(t, generationKey(1001, 77), generationKey(1001, 78))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(1, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))
}

func TestScriptValueParsing(t *testing.T) {
	assert.EqualValues(t, 1, toInt(int64(1)))
	assert.EqualValues(t, 3, toInt("3"))
	assert.InDelta(t, 2.5, toFloat("2.5"), 0.0001)
	assert.InDelta(t, 4, toFloat(int64(4)), 0.0001)
	assert.Zero(t, toFloat(nil))
}
