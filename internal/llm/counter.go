package llm

import (
	"context"
	"sync"

	"github.com/nikhilbhutani/promptforge/pkg/tokenizer"
)

// TokenCounter accumulates usage reported by completion calls. Allocate one
// per run; Drain reads and resets it atomically.
type TokenCounter struct {
	mu    sync.Mutex
	usage Usage
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (c *TokenCounter) Add(u Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.PromptTokens += u.PromptTokens
	c.usage.CompletionTokens += u.CompletionTokens
	c.usage.EmbeddingTokens += u.EmbeddingTokens
	c.usage.TotalTokens += u.TotalTokens
}

func (c *TokenCounter) Drain() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.usage
	c.usage = Usage{}
	return u
}

type counting struct {
	Provider
	counter *TokenCounter
}

// Counting wraps p so that every successful call adds its usage to counter.
// Backends that report no usage are estimated from the text.
func Counting(p Provider, counter *TokenCounter) Provider {
	return &counting{Provider: p, counter: counter}
}

func (c *counting) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.Provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	u := Usage{PromptTokens: resp.InputTokens, CompletionTokens: resp.OutputTokens, TotalTokens: resp.TotalTokens}
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		u.PromptTokens = tokenizer.CountTokensForModel(req.Prompt, req.Model)
		u.CompletionTokens = tokenizer.CountTokensForModel(resp.Content, req.Model)
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	c.counter.Add(u)
	return resp, nil
}
