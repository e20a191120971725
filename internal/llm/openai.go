package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider talks to OpenAI, or to any compatible endpoint when baseURL is set.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAIProvider) Name() string { return KindOpenAI }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Images) == 0 {
		msg.Content = req.Prompt
	} else {
		msg.MultiContent = []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
		for _, img := range req.Images {
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
					Detail: openai.ImageURLDetailHigh,
				},
			})
		}
	}

	oReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: []openai.ChatCompletionMessage{msg},
		// A zero temperature would be dropped by omitempty.
		Temperature: float32(math.Max(req.Temperature, math.SmallestNonzeroFloat32)),
	}
	if req.MaxTokens > 0 {
		oReq.MaxTokens = req.MaxTokens
	}
	if len(req.Schema) > 0 {
		oReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "output",
				Schema: req.Schema,
			},
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, oReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &Response{
		ID:           resp.ID,
		Provider:     KindOpenAI,
		Model:        resp.Model,
		Content:      content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
		CostUSD:      CalculateCost(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}
