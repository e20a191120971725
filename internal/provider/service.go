// Package provider manages the registry of inference backends and picks the
// model a run should use.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

type CreateRequest struct {
	Name                   string   `json:"name"`
	APIKeySetting          string   `json:"api_key_setting"`
	BaseURL                string   `json:"base_url,omitempty"`
	DefaultModel           string   `json:"default_model"`
	DefaultMultimodalModel string   `json:"default_multimodal_model,omitempty"`
	AvailableModels        []string `json:"available_models"`
	IsDefault              bool     `json:"is_default"`
}

type UpdateRequest struct {
	Name                   *string  `json:"name,omitempty"`
	APIKeySetting          *string  `json:"api_key_setting,omitempty"`
	BaseURL                *string  `json:"base_url,omitempty"`
	DefaultModel           *string  `json:"default_model,omitempty"`
	DefaultMultimodalModel *string  `json:"default_multimodal_model,omitempty"`
	AvailableModels        []string `json:"available_models,omitempty"`
}

func validate(p *models.Provider) error {
	invalid := func(format string, args ...any) error {
		return apperr.Validation(apperr.ReasonInvalidRequest, format, args...)
	}
	if !namePattern.MatchString(p.Name) || len(p.Name) > 100 {
		return invalid("invalid provider name %q", p.Name)
	}
	if len(p.AvailableModels) == 0 {
		return invalid("available_models must not be empty")
	}
	if p.DefaultModel == "" {
		return invalid("default_model is required")
	}
	if !p.HasModel(p.DefaultModel) {
		return invalid("default_model %q is not in available_models", p.DefaultModel)
	}
	if p.DefaultMultimodalModel != "" && !p.HasModel(p.DefaultMultimodalModel) {
		return invalid("default_multimodal_model %q is not in available_models", p.DefaultMultimodalModel)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Provider, error) {
	p := &models.Provider{
		Name:                   strings.TrimSpace(req.Name),
		APIKeySetting:          req.APIKeySetting,
		BaseURL:                req.BaseURL,
		DefaultModel:           req.DefaultModel,
		DefaultMultimodalModel: req.DefaultMultimodalModel,
		AvailableModels:        dedupe(req.AvailableModels),
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	err := s.withRetry(ctx, func(tx store.Tx) error {
		if err := tx.CreateProvider(ctx, p); err != nil {
			return storeErr(err, p.Name)
		}
		if req.IsDefault {
			return makeDefault(ctx, tx, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.IsDefault = req.IsDefault

	slog.Info("provider registered", "provider", p.Name, "default", p.IsDefault)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*models.Provider, error) {
	var out *models.Provider
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProvider(ctx, id)
		if err != nil {
			return storeErr(err, id)
		}
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.APIKeySetting != nil {
			p.APIKeySetting = *req.APIKeySetting
		}
		if req.BaseURL != nil {
			p.BaseURL = *req.BaseURL
		}
		if req.DefaultModel != nil {
			p.DefaultModel = *req.DefaultModel
		}
		if req.DefaultMultimodalModel != nil {
			p.DefaultMultimodalModel = *req.DefaultMultimodalModel
		}
		if req.AvailableModels != nil {
			p.AvailableModels = dedupe(req.AvailableModels)
		}
		if err := validate(p); err != nil {
			return err
		}
		if err := tx.UpdateProvider(ctx, p); err != nil {
			return storeErr(err, p.Name)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return nil, storeErr(err, id)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]models.Provider, error) {
	providers, err := s.store.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}

// GetDefault returns the default provider or a NoDefaultProviderConfigured failure.
func (s *Service) GetDefault(ctx context.Context) (*models.Provider, error) {
	p, err := s.store.GetDefaultProvider(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Validation(apperr.ReasonNoDefaultProvider, "no default provider is configured")
	}
	if err != nil {
		return nil, fmt.Errorf("get default provider: %w", err)
	}
	return p, nil
}

// SetDefault makes id the only default provider. The previous default is
// untouched if anything fails.
func (s *Service) SetDefault(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var out *models.Provider
	err := s.withRetry(ctx, func(tx store.Tx) error {
		p, err := tx.GetProvider(ctx, id)
		if err != nil {
			return storeErr(err, id)
		}
		if err := makeDefault(ctx, tx, id); err != nil {
			return err
		}
		p.IsDefault = true
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("default provider changed", "provider", out.Name)
	return out, nil
}

type ModelInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Default    bool   `json:"default"`
	Multimodal bool   `json:"multimodal"`
}

// AvailableModels lists every registered model across providers.
func (s *Service) AvailableModels(ctx context.Context) ([]ModelInfo, error) {
	providers, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []ModelInfo
	for _, p := range providers {
		for _, m := range p.AvailableModels {
			out = append(out, ModelInfo{
				Provider:   p.Name,
				Model:      m,
				Default:    p.IsDefault && m == p.DefaultModel,
				Multimodal: m == p.DefaultMultimodalModel,
			})
		}
	}
	return out, nil
}

func makeDefault(ctx context.Context, tx store.Tx, id uuid.UUID) error {
	if err := tx.ClearDefaultProviders(ctx); err != nil {
		return err
	}
	if err := tx.MarkDefaultProvider(ctx, id); err != nil {
		return storeErr(err, id)
	}
	return nil
}

// withRetry runs fn in a transaction and retries it once if a concurrent
// writer claimed the default flag first.
func (s *Service) withRetry(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.store.WithTx(ctx, fn)
	if errors.Is(err, store.ErrConflict) {
		slog.Warn("concurrent provider write, retrying once", "error", err)
		err = s.store.WithTx(ctx, fn)
	}
	if errors.Is(err, store.ErrConflict) {
		return apperr.Conflict(err, "provider registry was modified concurrently, try again")
	}
	return err
}

func storeErr(err error, key any) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("provider %v not found", key)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.ValidationCause(apperr.ReasonInvalidRequest, err, "provider %v already exists", key)
	}
	return err
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
