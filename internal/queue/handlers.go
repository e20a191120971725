package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// HandlersRegistry routes task types to their handlers. Every task is
// logged with its outcome and duration.
type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	mux := asynq.NewServeMux()
	mux.Use(logTasks)
	return &HandlersRegistry{mux: mux}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) RegisterFunc(taskType string, fn func(context.Context, *asynq.Task) error) {
	r.mux.HandleFunc(taskType, fn)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

func logTasks(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		taskID, _ := asynq.GetTaskID(ctx)
		retried, _ := asynq.GetRetryCount(ctx)

		err := next.ProcessTask(ctx, t)

		attrs := []any{
			"type", t.Type(),
			"task_id", taskID,
			"retry", retried,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			slog.Warn("task failed", append(attrs, "error", err)...)
			return err
		}
		slog.Info("task processed", attrs...)
		return nil
	})
}
