package models

import (
	"time"

	"github.com/google/uuid"
)

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	EmbeddingTokens  int `json:"embedding_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

type RunMetadata struct {
	StructuredOutput bool      `json:"structured_output"`
	HasImages        bool      `json:"has_images"`
	Timestamp        time.Time `json:"timestamp"`
	Provider         string    `json:"provider,omitempty"`
	CostUSD          float64   `json:"cost_usd"`
}

// Run is written once per successful execution and never updated.
type Run struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	PromptID       uuid.UUID         `json:"prompt_id" db:"prompt_id"`
	ProjectID      uuid.UUID         `json:"project_id" db:"project_id"`
	Version        int               `json:"version" db:"version"`
	InputVariables map[string]string `json:"input_variables" db:"input_variables"`
	Output         string            `json:"output" db:"output"`
	Model          string            `json:"model" db:"model"`
	Tokens         TokenUsage        `json:"tokens" db:"tokens"`
	LatencyMs      int64             `json:"latency_ms" db:"latency_ms"`
	Metadata       RunMetadata       `json:"run_metadata" db:"run_metadata"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}
