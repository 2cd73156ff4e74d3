package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/schoolpay/internal/observability/logger"
	"github.com/smallbiznis/schoolpay/internal/observability/metrics"
	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("notification_queue_full")
	ErrQueueClosed = errors.New("notification_queue_closed")
)

// Queue accepts tasks without blocking and never reports failure to the caller.
type Queue interface {
	Enqueue(ctx context.Context, task Task)
}

// Dispatcher performs the outbound call for one task.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// FailureHandler observes tasks that were dropped or failed to dispatch.
type FailureHandler func(ctx context.Context, task Task, err error)

// LogFailures is the default FailureHandler.
func LogFailures(log *zap.Logger) FailureHandler {
	return func(ctx context.Context, task Task, err error) {
		l := logger.WithContext(ctx, log).With(
			zap.String("kind", string(task.Kind)),
			zap.String("school_id", task.SchoolID.String()),
			zap.Error(err),
		)
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
			l.Error("notification dropped")
			return
		}
		l.Warn("notification dispatch failed")
	}
}

type QueueConfig struct {
	Workers int
	Buffer  int
	// DispatchTimeout bounds one task including its HTTP call.
	DispatchTimeout time.Duration
}

type envelope struct {
	ctx  context.Context
	task Task
}

// AsyncQueue is a buffered channel drained by a fixed worker pool.
type AsyncQueue struct {
	cfg        QueueConfig
	dispatcher Dispatcher
	onFailure  FailureHandler
	metrics    *metrics.Metrics
	log        *zap.Logger

	mu      sync.RWMutex
	closed  bool
	tasks   chan envelope
	wg      sync.WaitGroup
	started bool
}

func NewAsyncQueue(cfg QueueConfig, dispatcher Dispatcher, onFailure FailureHandler, m *metrics.Metrics, log *zap.Logger) *AsyncQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if onFailure == nil {
		onFailure = LogFailures(log)
	}
	return &AsyncQueue{
		cfg:        cfg,
		dispatcher: dispatcher,
		onFailure:  onFailure,
		metrics:    m,
		log:        log.Named("notification.queue"),
		tasks:      make(chan envelope, cfg.Buffer),
	}
}

// Enqueue detaches the task from the caller's cancellation and drops it if
// the buffer is full.
func (q *AsyncQueue) Enqueue(ctx context.Context, task Task) {
	detached := context.WithoutCancel(ctx)

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.fail(detached, task, ErrQueueClosed)
		return
	}
	select {
	case q.tasks <- envelope{ctx: detached, task: task}:
		q.metrics.RecordNotification(detached, string(task.Kind), "queued")
	default:
		q.fail(detached, task, ErrQueueFull)
	}
}

func (q *AsyncQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Stop refuses new tasks and waits for queued ones to drain or ctx to end.
func (q *AsyncQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *AsyncQueue) work() {
	defer q.wg.Done()
	for env := range q.tasks {
		q.dispatch(env)
	}
}

func (q *AsyncQueue) dispatch(env envelope) {
	ctx, cancel := context.WithTimeout(env.ctx, q.cfg.DispatchTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("notification dispatcher panicked", zap.Any("panic", r), zap.String("kind", string(env.task.Kind)))
		}
	}()

	if err := q.dispatcher.Dispatch(ctx, env.task); err != nil {
		q.fail(ctx, env.task, err)
		return
	}
	q.metrics.RecordNotification(ctx, string(env.task.Kind), "sent")
}

func (q *AsyncQueue) fail(ctx context.Context, task Task, err error) {
	outcome := "failed"
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
		outcome = "dropped"
	}
	q.metrics.RecordNotification(ctx, string(task.Kind), outcome)
	q.onFailure(ctx, task, err)
}
