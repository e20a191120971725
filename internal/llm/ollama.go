package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewOllamaProvider(baseURL string) *OllamaProvider {
	return &OllamaProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *OllamaProvider) Name() string { return KindOllama }

type ollamaChatReq struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResp struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	msg := ollamaMessage{Role: "user", Content: req.Prompt}
	for _, img := range req.Images {
		msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(img.Data))
	}

	oReq := ollamaChatReq{
		Model:    req.Model,
		Messages: []ollamaMessage{msg},
		Stream:   false,
		Format:   req.Schema,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}

	body, err := json.Marshal(oReq)
	if err != nil {
		return nil, fmt.Errorf("ollama encode: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama chat: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var oResp ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, fmt.Errorf("ollama decode: %w", err)
	}
	if oResp.Error != "" {
		return nil, fmt.Errorf("ollama chat: %s", oResp.Error)
	}

	return &Response{
		Provider:     KindOllama,
		Model:        req.Model,
		Content:      oResp.Message.Content,
		InputTokens:  oResp.PromptEvalCount,
		OutputTokens: oResp.EvalCount,
		TotalTokens:  oResp.PromptEvalCount + oResp.EvalCount,
		CostUSD:      0, // local models are free
	}, nil
}
