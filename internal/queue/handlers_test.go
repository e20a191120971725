package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestHandlersRegistryRoutesByType(t *testing.T) {
	reg := NewHandlersRegistry()

	var got []string
	reg.RegisterFunc(TypeRunExecute, func(_ context.Context, task *asynq.Task) error {
		got = append(got, string(task.Payload()))
		return nil
	})
	failure := errors.New("boom")
	reg.Register("run:other", asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return failure
	}))

	ctx := context.Background()
	assert.NoError(t, reg.Mux().ProcessTask(ctx, asynq.NewTask(TypeRunExecute, []byte(`{"prompt_id":"x"}`))))
	assert.ErrorIs(t, reg.Mux().ProcessTask(ctx, asynq.NewTask("run:other", nil)), failure)
	assert.Error(t, reg.Mux().ProcessTask(ctx, asynq.NewTask("unknown", nil)))

	assert.Equal(t, []string{`{"prompt_id":"x"}`}, got)
}
