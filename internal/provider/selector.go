package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/llm"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

// SelectModel picks the model for p. An explicit model is returned as is.
// Otherwise the default provider's multimodal model is used for prompts
// with an image variable and its default model for everything else.
func SelectModel(p *models.Prompt, explicit string, def *models.Provider) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p.HasImage() {
		if def == nil {
			return "", apperr.Validation(apperr.ReasonNoMultimodalModel, "no default multimodal model is configured")
		}
		if def.DefaultMultimodalModel == "" {
			return "", apperr.Validation(apperr.ReasonNoMultimodalModel,
				"provider %s has no default multimodal model", def.Name)
		}
		return def.DefaultMultimodalModel, nil
	}
	if def == nil {
		return "", apperr.Validation(apperr.ReasonNoDefaultProvider, "no default provider is configured")
	}
	return def.DefaultModel, nil
}

// Selection is a model together with the provider that will serve it.
type Selection struct {
	Model    string
	Provider *models.Provider
}

// Resolve runs SelectModel against the registry. An explicit model is
// served by the provider that lists it, falling back to the default.
func (s *Service) Resolve(ctx context.Context, p *models.Prompt, explicit string) (*Selection, error) {
	def, err := s.store.GetDefaultProvider(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get default provider: %w", err)
	}

	model, err := SelectModel(p, explicit, def)
	if err != nil {
		return nil, err
	}

	serving := def
	if explicit != "" && (def == nil || !def.HasModel(explicit)) {
		providers, err := s.store.ListProviders(ctx)
		if err != nil {
			return nil, fmt.Errorf("list providers: %w", err)
		}
		for i := range providers {
			if providers[i].HasModel(explicit) {
				serving = &providers[i]
				break
			}
		}
	}
	if serving == nil {
		return nil, apperr.Validation(apperr.ReasonNoDefaultProvider,
			"no provider serves model %q and no default provider is configured", explicit)
	}
	return &Selection{Model: model, Provider: serving}, nil
}

// Kind maps a provider name to the client implementation that speaks its API
// by its leading word, so "groq-llama" stays OpenAI compatible. Unknown names
// are treated as OpenAI compatible.
func Kind(p *models.Provider) string {
	name := strings.ToLower(p.Name)
	switch {
	case strings.HasPrefix(name, "anthropic") || strings.HasPrefix(name, "claude"):
		return llm.KindAnthropic
	case strings.HasPrefix(name, "ollama") || strings.HasPrefix(name, "llama"):
		return llm.KindOllama
	default:
		return llm.KindOpenAI
	}
}
