package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/promptforge/internal/config"
)

const runRetention = 24 * time.Hour

const defaultQueue = "default"

// ErrTaskNotFound is returned when a task is unknown or its retention expired.
var ErrTaskNotFound = errors.New("task not found")

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client:    asynq.NewClient(RedisOpt(cfg)),
		inspector: asynq.NewInspector(RedisOpt(cfg)),
	}
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	if err := c.inspector.Close(); err != nil {
		return err
	}
	return c.client.Close()
}

// TaskStatus reports the state of an enqueued run.
type TaskStatus struct {
	ID      string `json:"task_id"`
	State   string `json:"state"`
	RunID   string `json:"run_id,omitempty"`
	LastErr string `json:"last_error,omitempty"`
}

func (c *Client) RunStatus(id string) (*TaskStatus, error) {
	info, err := c.inspector.GetTaskInfo(defaultQueue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task info: %w", err)
	}
	st := &TaskStatus{ID: info.ID, State: info.State.String(), LastErr: info.LastErr}
	if len(info.Result) > 0 {
		var res RunExecuteResult
		if err := json.Unmarshal(info.Result, &res); err != nil {
			return nil, fmt.Errorf("decode task result: %w", err)
		}
		st.RunID = res.RunID
	}
	return st, nil
}

// EnqueueRunExecute schedules a run and returns the task ID.
func (c *Client) EnqueueRunExecute(ctx context.Context, payload RunExecutePayload) (string, error) {
	return c.enqueue(ctx, TypeRunExecute, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(runRetention),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return info.ID, nil
}
