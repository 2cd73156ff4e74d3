package platformmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/schoolpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("platform.metrics",
	fx.Provide(NewPusher),
	fx.Provide(provideRecorder),
	fx.Invoke(startWorker),
)

func provideRecorder(pusher Pusher) *Recorder {
	if pusher == nil {
		return nil
	}
	return NewRecorder(prometheus.NewRegistry())
}

func startWorker(lc fx.Lifecycle, cfg config.Config, rec *Recorder, pusher Pusher, db *gorm.DB, log *zap.Logger) {
	if rec == nil || pusher == nil {
		return
	}
	w := NewWorker(rec, pusher, db, cfg.Metrics.Interval, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start()
			return nil
		},
		OnStop: w.Stop,
	})
}

// Worker refreshes the platform-wide gauges and pushes on an interval.
type Worker struct {
	rec      *Recorder
	pusher   Pusher
	db       *gorm.DB
	interval time.Duration
	log      *zap.Logger

	stop chan struct{}
	done chan struct{}
}

func NewWorker(rec *Recorder, pusher Pusher, db *gorm.DB, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		rec:      rec,
		pusher:   pusher,
		db:       db,
		interval: interval,
		log:      log.Named("platformmetrics"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.PushOnce(context.Background())
			case <-w.stop:
				return
			}
		}
	}()
}

func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushOnce refreshes the school count and sends one snapshot. Failures are
// logged and never retried before the next tick.
func (w *Worker) PushOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	if w.db != nil {
		var count int64
		if err := w.db.WithContext(ctx).Table("schools").Count(&count).Error; err != nil {
			w.log.Warn("school count failed", zap.Error(err))
		} else {
			w.rec.SetSchoolsTotal(count)
		}
	}
	if err := w.pusher.Push(ctx, w.rec.Registry()); err != nil {
		w.log.Warn("platform metrics push failed", zap.Error(err))
	}
}
