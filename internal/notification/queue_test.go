package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []Task
	err   error
	block chan struct{}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, task Task) error {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

type failures struct {
	mu   sync.Mutex
	errs []error
}

func (f *failures) handle(_ context.Context, _ Task, err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

func (f *failures) all() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.errs...)
}

func TestAsyncQueueDeliversAfterCallerContextEnds(t *testing.T) {
	d := &recordingDispatcher{}
	q := NewAsyncQueue(QueueConfig{Workers: 2, Buffer: 8}, d, nil, nil, zap.NewNop())
	q.Start()

	ctx, cancel := context.WithCancel(context.Background())
	q.Enqueue(ctx, NewFeeReminder(1, 2, "pay up"))
	cancel()

	require.NoError(t, q.Stop(context.Background()))
	assert.Equal(t, 1, d.count())
}

func TestAsyncQueueDropsWhenFull(t *testing.T) {
	d := &recordingDispatcher{block: make(chan struct{})}
	f := &failures{}
	q := NewAsyncQueue(QueueConfig{Workers: 1, Buffer: 1}, d, f.handle, nil, zap.NewNop())
	q.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			q.Enqueue(context.Background(), NewFeeReminder(1, 2, "x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked")
	}

	close(d.block)
	require.NoError(t, q.Stop(context.Background()))

	errs := f.all()
	require.NotEmpty(t, errs)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrQueueFull)
	}
	assert.Equal(t, 5, d.count()+len(errs))
}

func TestAsyncQueueReportsDispatchErrors(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("boom")}
	f := &failures{}
	q := NewAsyncQueue(QueueConfig{Workers: 1, Buffer: 4}, d, f.handle, nil, zap.NewNop())
	q.Start()

	q.Enqueue(context.Background(), NewPaymentSuccess(1, PaymentSuccess{PaymentID: "p"}))
	require.NoError(t, q.Stop(context.Background()))

	errs := f.all()
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "boom")
}

func TestAsyncQueueRejectsAfterStop(t *testing.T) {
	d := &recordingDispatcher{}
	f := &failures{}
	q := NewAsyncQueue(QueueConfig{}, d, f.handle, nil, zap.NewNop())
	q.Start()
	require.NoError(t, q.Stop(context.Background()))

	q.Enqueue(context.Background(), NewFeeReminder(1, 2, "late"))
	errs := f.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrQueueClosed)
}
