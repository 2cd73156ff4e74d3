package notification

import (
	"context"

	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(
		func(cfg config.Config, log *zap.Logger) *WorkflowDispatcher {
			return NewWorkflowDispatcher(cfg.Workflow, log)
		},
		provideQueue,
	),
)

func provideQueue(lc fx.Lifecycle, cfg config.Config, dispatcher *WorkflowDispatcher, m *metrics.Metrics, log *zap.Logger) (Queue, *AsyncQueue) {
	q := NewAsyncQueue(QueueConfig{
		Workers:         cfg.Workflow.Workers,
		Buffer:          cfg.Workflow.Buffer,
		DispatchTimeout: cfg.Workflow.Timeout * 2,
	}, dispatcher, LogFailures(log.Named("notification")), m, log)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			q.Start()
			return nil
		},
		OnStop: q.Stop,
	})
	return q, q
}
