package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
	}
}

func (p *AnthropicProvider) Name() string { return KindAnthropic }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	// Images go before the text they are referred to by.
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Temperature: anthropic.Float(req.Temperature),
	}
	if len(req.Schema) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: "Respond with a single JSON document and nothing else."},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	inputTokens := int(resp.Usage.InputTokens)
	outputTokens := int(resp.Usage.OutputTokens)

	return &Response{
		ID:           string(resp.ID),
		Provider:     KindAnthropic,
		Model:        string(resp.Model),
		Content:      content.String(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      CalculateCost(req.Model, inputTokens, outputTokens),
	}, nil
}
