package llm

import (
	"context"
	"encoding/json"
)

// Provider abstracts an LLM provider (OpenAI, Anthropic, Ollama, etc.)
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Image is a decoded attachment sent alongside the prompt text.
type Image struct {
	MimeType string
	Data     []byte
}

// Request is one completion call.
type Request struct {
	Model       string
	Prompt      string
	Images      []Image
	Temperature float64
	MaxTokens   int
	// Schema, when set, asks the backend to constrain output to this JSON schema.
	Schema json.RawMessage
}

type Response struct {
	ID           string  `json:"id"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Content      string  `json:"content"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Usage is what a TokenCounter accumulates.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	EmbeddingTokens  int `json:"embedding_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}
