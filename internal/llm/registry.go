package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindOllama    = "ollama"
)

// Factory builds a client for one backend kind and credential.
type Factory func(kind, apiKey, baseURL string) (Provider, error)

// Registry owns the long-lived inference clients, built lazily and cached
// per backend and credential. It is safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	clients    map[string]Provider
	factory    Factory
	maxRetries int
}

func NewRegistry(maxRetries int) *Registry {
	return NewRegistryWithFactory(defaultFactory, maxRetries)
}

func NewRegistryWithFactory(f Factory, maxRetries int) *Registry {
	return &Registry{
		clients:    make(map[string]Provider),
		factory:    f,
		maxRetries: maxRetries,
	}
}

func defaultFactory(kind, apiKey, baseURL string) (Provider, error) {
	switch kind {
	case KindOpenAI:
		return NewOpenAIProvider(apiKey, baseURL), nil
	case KindAnthropic:
		return NewAnthropicProvider(apiKey, baseURL), nil
	case KindOllama:
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return NewOllamaProvider(baseURL), nil
	}
	return nil, fmt.Errorf("unsupported provider kind %q", kind)
}

// Client returns the cached client for the given backend, creating it on first use.
func (r *Registry) Client(kind, apiKey, baseURL string) (Provider, error) {
	sum := sha256.Sum256([]byte(apiKey))
	key := kind + "|" + baseURL + "|" + hex.EncodeToString(sum[:8])

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.clients[key]; ok {
		return p, nil
	}
	p, err := r.factory(kind, apiKey, baseURL)
	if err != nil {
		return nil, err
	}
	p = &retrying{Provider: p, maxRetries: r.maxRetries}
	r.clients[key] = p
	return p, nil
}

type retrying struct {
	Provider
	maxRetries int
}

func (p *retrying) Complete(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w (last error: %v)", p.Name(), ctx.Err(), lastErr)
			case <-time.After(backoff):
			}
			slog.Debug("retrying LLM call", "provider", p.Name(), "attempt", attempt)
		}

		resp, err := p.Provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", p.Name(), lastErr)
}
