package idempotency_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/idempotency"
	"github.com/smallbiznis/schoolpay/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSeenIsInsertIfAbsent(t *testing.T) {
	f := testkit.NewFixture(t)
	c := clock.NewFakeClock(f.Now)
	store := idempotency.NewSQLStore(f.DB, c, time.Minute)
	ctx := context.Background()

	dup, err := store.MarkSeen(ctx, idempotency.KindWebhookDedup, "paystack:evt_1")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = store.MarkSeen(ctx, idempotency.KindWebhookDedup, "paystack:evt_1")
	require.NoError(t, err)
	assert.True(t, dup)

	// Kinds are separate namespaces.
	dup, err = store.MarkSeen(ctx, idempotency.KindInitReplay, "paystack:evt_1")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestMarkSeenConcurrentDeliveriesAdmitOne(t *testing.T) {
	f := testkit.NewFixture(t)
	store := idempotency.NewSQLStore(f.DB, clock.NewFakeClock(f.Now), time.Minute)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		fresh atomic.Int32
		errs  = make(chan error, 20)
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dup, err := store.MarkSeen(ctx, idempotency.KindWebhookDedup, "paystack:evt_race")
			if err != nil {
				errs <- err
				return
			}
			if !dup {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, fresh.Load())
	assert.EqualValues(t, 1, f.Count("idempotency_cache", "kind = ? AND cache_key = ?", string(idempotency.KindWebhookDedup), "paystack:evt_race"))
}

func TestMarkSeenExpiresAfterTTL(t *testing.T) {
	f := testkit.NewFixture(t)
	c := clock.NewFakeClock(f.Now)
	store := idempotency.NewSQLStore(f.DB, c, time.Minute)
	ctx := context.Background()

	_, err := store.MarkSeen(ctx, idempotency.KindWebhookDedup, "evt")
	require.NoError(t, err)

	c.Advance(61 * time.Second)
	dup, err := store.MarkSeen(ctx, idempotency.KindWebhookDedup, "evt")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRememberRecall(t *testing.T) {
	f := testkit.NewFixture(t)
	c := clock.NewFakeClock(f.Now)
	store := idempotency.NewSQLStore(f.DB, c, time.Minute)
	ctx := context.Background()

	_, found, err := store.Recall(ctx, idempotency.KindInitReplay, "tok")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Remember(ctx, idempotency.KindInitReplay, "tok", []byte(`{"reference":"SP-1"}`)))
	require.NoError(t, store.Remember(ctx, idempotency.KindInitReplay, "tok", []byte(`{"reference":"SP-2"}`)))

	payload, found, err := store.Recall(ctx, idempotency.KindInitReplay, "tok")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"reference":"SP-2"}`, string(payload))

	c.Advance(2 * time.Minute)
	_, found, err = store.Recall(ctx, idempotency.KindInitReplay, "tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPurgeOnlyTouchesSameKind(t *testing.T) {
	f := testkit.NewFixture(t)
	c := clock.NewFakeClock(f.Now)
	store := idempotency.NewSQLStore(f.DB, c, time.Minute)
	ctx := context.Background()

	_, err := store.MarkSeen(ctx, idempotency.KindWebhookDedup, "old-event")
	require.NoError(t, err)
	require.NoError(t, store.Remember(ctx, idempotency.KindInitReplay, "old-token", []byte(`{}`)))

	c.Advance(5 * time.Minute)
	_, err = store.MarkSeen(ctx, idempotency.KindWebhookDedup, "new-event")
	require.NoError(t, err)

	assert.EqualValues(t, 0, f.Count("idempotency_cache", "cache_key = ?", "old-event"))
	assert.EqualValues(t, 1, f.Count("idempotency_cache", "cache_key = ?", "old-token"))
}

func TestValidation(t *testing.T) {
	f := testkit.NewFixture(t)
	store := idempotency.NewSQLStore(f.DB, clock.NewFakeClock(f.Now), 0)

	_, err := store.MarkSeen(context.Background(), idempotency.Kind("other"), "k")
	assert.ErrorIs(t, err, idempotency.ErrInvalidKind)

	_, err = store.MarkSeen(context.Background(), idempotency.KindWebhookDedup, "  ")
	assert.ErrorIs(t, err, idempotency.ErrInvalidKey)
}

func TestForgetAllowsReplay(t *testing.T) {
	f := testkit.NewFixture(t)
	store := idempotency.NewSQLStore(f.DB, clock.NewFakeClock(f.Now), time.Minute)
	ctx := context.Background()

	_, err := store.MarkSeen(ctx, idempotency.KindWebhookDedup, "evt")
	require.NoError(t, err)
	require.NoError(t, store.Forget(ctx, idempotency.KindWebhookDedup, "evt"))

	dup, err := store.MarkSeen(ctx, idempotency.KindWebhookDedup, "evt")
	require.NoError(t, err)
	assert.False(t, dup)
}
