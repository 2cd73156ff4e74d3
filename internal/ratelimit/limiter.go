package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	keyLogin   = "schoolpay:rl:login:%s"
	keyPayPage = "schoolpay:rl:pay:%s"
)

const (
	EndpointLogin   = "login"
	EndpointPayPage = "pay_page"
)

// Limiter guards the unauthenticated surfaces (login and the parent pay page)
// and serializes invoice generation runs. A nil or disabled Limiter allows
// everything.
type Limiter struct {
	bucket  *TokenBucket
	locks   *GenerationLocks
	metrics *metrics.Metrics
	log     *zap.Logger

	loginPerMinute int64
	payPerMinute   int64
}

func NewLimiter(cfg config.Config, bucket *TokenBucket, locks *GenerationLocks, m *metrics.Metrics, log *zap.Logger) *Limiter {
	return &Limiter{
		bucket:         bucket,
		locks:          locks,
		metrics:        m,
		log:            log.Named("ratelimit"),
		loginPerMinute: cfg.LoginRatePerMinute,
		payPerMinute:   cfg.PayPageRatePerMin,
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowLogin throttles attempts per normalized email.
func (l *Limiter) AllowLogin(ctx context.Context, email string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyLogin, strings.ToLower(strings.TrimSpace(email)))
	return l.allow(ctx, EndpointLogin, key, l.loginPerMinute)
}

// AllowPayPage throttles token lookups per client address so payment tokens
// cannot be enumerated.
func (l *Limiter) AllowPayPage(ctx context.Context, clientIP string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyPayPage, strings.TrimSpace(clientIP))
	return l.allow(ctx, EndpointPayPage, key, l.payPerMinute)
}

func (l *Limiter) allow(ctx context.Context, endpoint, key string, perMinute int64) (Result, error) {
	if !l.Enabled() || perMinute <= 0 {
		return Result{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, key, float64(perMinute)/60, int(perMinute))
	if err != nil {
		// Fail open when redis is unreachable.
		l.log.Warn("rate limit check failed", zap.String("endpoint", endpoint), zap.Error(err))
		return Result{Allowed: true}, nil
	}
	if !res.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, endpoint)
	}
	return res, nil
}

// LockGeneration takes the per (school, term) generation lock. The returned
// release func is always safe to call. ok is false only when another run
// holds the lock.
func (l *Limiter) LockGeneration(ctx context.Context, schoolID, termID snowflake.ID) (release func(), ok bool) {
	noop := func() {}
	if l == nil || l.locks == nil {
		return noop, true
	}
	lease, err := l.locks.Acquire(ctx, schoolID, termID)
	switch {
	case errors.Is(err, ErrGenerationInProgress):
		return noop, false
	case err != nil:
		l.log.Warn("generation lock unavailable, continuing without it", zap.Error(err))
		return noop, true
	}
	return func() {
		if err := l.locks.Release(context.WithoutCancel(ctx), lease); err != nil {
			l.log.Warn("generation lock release failed", zap.String("key", lease.Key()), zap.Error(err))
		}
	}, true
}
