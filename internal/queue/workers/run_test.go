package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/queue"
	"github.com/nikhilbhutani/promptforge/internal/run"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	got run.Request
	err error
}

func (s *stubExecutor) Execute(_ context.Context, req run.Request) (*models.Run, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Run{ID: uuid.New(), PromptID: req.PromptID}, nil
}

func task(t *testing.T, payload any) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeRunExecute, data)
}

func TestRunWorkerExecutesPayload(t *testing.T) {
	exec := &stubExecutor{}
	w := NewRunWorker(exec)
	promptID := uuid.New()

	err := w.ProcessTask(context.Background(), task(t, queue.RunExecutePayload{
		PromptID:       promptID.String(),
		InputVariables: map[string]string{"name": "Ada"},
		Version:        2,
	}))
	require.NoError(t, err)

	assert.Equal(t, promptID, exec.got.PromptID)
	assert.Equal(t, 2, exec.got.Version)
	assert.Equal(t, "Ada", exec.got.InputVariables["name"])
}

func TestRunWorkerSkipsRetryForBadInput(t *testing.T) {
	cases := []struct {
		name    string
		payload any
		err     error
	}{
		{name: "malformed prompt id", payload: queue.RunExecutePayload{PromptID: "nope"}},
		{name: "validation failure", payload: queue.RunExecutePayload{PromptID: uuid.NewString()},
			err: apperr.Validation(apperr.ReasonMissingRequiredVariable, "missing")},
		{name: "unknown prompt", payload: queue.RunExecutePayload{PromptID: uuid.NewString()},
			err: apperr.NotFound("gone")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewRunWorker(&stubExecutor{err: tc.err})
			err := w.ProcessTask(context.Background(), task(t, tc.payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestRunWorkerRetriesExecutionFailures(t *testing.T) {
	w := NewRunWorker(&stubExecutor{err: apperr.Execution(errors.New("upstream 500"), "model invocation failed")})

	err := w.ProcessTask(context.Background(), task(t, queue.RunExecutePayload{PromptID: uuid.NewString()}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}
