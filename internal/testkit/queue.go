package testkit

import (
	"context"
	"sync"

	"github.com/smallbiznis/schoolpay/internal/notification"
)

// Queue records enqueued notification tasks instead of dispatching them.
type Queue struct {
	mu    sync.Mutex
	tasks []notification.Task
}

func (q *Queue) Enqueue(_ context.Context, task notification.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

func (q *Queue) Tasks() []notification.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]notification.Task(nil), q.tasks...)
}

func (q *Queue) Kinds() []notification.Kind {
	tasks := q.Tasks()
	out := make([]notification.Kind, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Kind)
	}
	return out
}
