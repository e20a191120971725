package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/queue"
	"github.com/nikhilbhutani/promptforge/internal/run"
)

// Executor is the part of run.Executor the worker needs.
type Executor interface {
	Execute(ctx context.Context, req run.Request) (*models.Run, error)
}

type RunWorker struct {
	executor Executor
}

func NewRunWorker(executor Executor) *RunWorker {
	return &RunWorker{executor: executor}
}

func (w *RunWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.RunExecutePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	req, err := requestFrom(payload)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	slog.Info("executing queued run", "prompt_id", req.PromptID, "version", req.Version)

	r, err := w.executor.Execute(ctx, req)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindValidation, apperr.KindProviderNotReady:
			slog.Warn("queued run rejected", "prompt_id", req.PromptID, "error", err)
			return fmt.Errorf("execute run: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("execute run: %w", err)
	}

	if rw := t.ResultWriter(); rw != nil {
		data, err := json.Marshal(queue.RunExecuteResult{RunID: r.ID.String()})
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		if _, err := rw.Write(data); err != nil {
			slog.Warn("failed to write run result", "run_id", r.ID, "error", err)
		}
	}

	slog.Info("queued run completed", "run_id", r.ID, "prompt_id", req.PromptID)
	return nil
}

func requestFrom(p queue.RunExecutePayload) (run.Request, error) {
	promptID, err := uuid.Parse(p.PromptID)
	if err != nil {
		return run.Request{}, fmt.Errorf("parse prompt ID: %w", err)
	}
	req := run.Request{
		PromptID:         promptID,
		InputVariables:   p.InputVariables,
		Model:            p.Model,
		StructuredOutput: p.StructuredOutput,
		Version:          p.Version,
	}
	if p.ProjectID != "" {
		if req.ProjectID, err = uuid.Parse(p.ProjectID); err != nil {
			return run.Request{}, fmt.Errorf("parse project ID: %w", err)
		}
	}
	return req, nil
}
