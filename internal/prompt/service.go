package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/cache"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

// definitionCache is the subset of *cache.Cache the service uses.
type definitionCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

type Service struct {
	store store.Store
	cache definitionCache
}

// NewService builds the prompt service. c may be nil.
func NewService(st store.Store, c *cache.Cache) *Service {
	return &Service{store: st, cache: c}
}

// Fields are the editable parts of a prompt. Nil fields are left unchanged.
// An OutputSchema of JSON null removes the schema.
type Fields struct {
	Name         *string              `json:"name,omitempty"`
	Description  *string              `json:"description,omitempty"`
	Content      *string              `json:"content,omitempty"`
	Variables    []models.Variable    `json:"variables,omitempty"`
	OutputSchema json.RawMessage      `json:"output_schema,omitempty"`
	MaxTokens    *int                 `json:"max_tokens,omitempty"`
	Temperature  *float64             `json:"temperature,omitempty"`
	Status       *models.PromptStatus `json:"status,omitempty"`
}

func (f Fields) apply(p *models.Prompt) {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Description != nil {
		p.Description = *f.Description
	}
	if f.Content != nil {
		p.Content = *f.Content
	}
	if f.Variables != nil {
		p.Variables = append([]models.Variable{}, f.Variables...)
		for i := range p.Variables {
			if p.Variables[i].Type == "" {
				p.Variables[i].Type = models.VariableString
			}
		}
	}
	if f.OutputSchema != nil {
		if raw := bytes.TrimSpace(f.OutputSchema); bytes.Equal(raw, []byte("null")) {
			p.OutputSchema = nil
		} else {
			p.OutputSchema = append(json.RawMessage(nil), raw...)
		}
	}
	if f.MaxTokens != nil {
		p.MaxTokens = *f.MaxTokens
	}
	if f.Temperature != nil {
		p.Temperature = *f.Temperature
	}
	if f.Status != nil {
		p.Status = *f.Status
	}
}

type CreateRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
	Fields
}

// CreateOrVersion creates a prompt when id is nil and re-versions the
// existing prompt otherwise. ProjectID is ignored when re-versioning.
func (s *Service) CreateOrVersion(ctx context.Context, id *uuid.UUID, req CreateRequest) (*models.Prompt, error) {
	if id == nil {
		return s.Create(ctx, req)
	}
	return s.Version(ctx, *id, req.Fields)
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Prompt, error) {
	p := &models.Prompt{
		ProjectID:      req.ProjectID,
		Variables:      []models.Variable{},
		Temperature:    DefaultTemperature,
		Status:         models.StatusDraft,
		CurrentVersion: 1,
		VersionCount:   1,
	}
	req.Fields.apply(p)

	if p.Status != models.StatusDraft && !CanTransition(models.StatusDraft, p.Status) {
		return nil, invalidTransition(models.StatusDraft, p.Status)
	}
	if err := validatePrompt(p); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProject(ctx, p.ProjectID); err != nil {
			return storeErr(err, "project", p.ProjectID)
		}
		if err := tx.CreatePrompt(ctx, p); err != nil {
			return storeErr(err, "prompt", p.Name)
		}
		return tx.AdjustPromptCount(ctx, p.ProjectID, 1)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("prompt created", "prompt_id", p.ID, "project_id", p.ProjectID, "name", p.Name)
	return p, nil
}

// Version snapshots the live prompt at its current version, advances the
// version counter and applies f. The snapshot, the counter and the new
// fields commit together or not at all.
func (s *Service) Version(ctx context.Context, id uuid.UUID, f Fields) (*models.Prompt, error) {
	var out *models.Prompt
	err := s.retryOnConflict(ctx, func() error {
		return s.store.WithTx(ctx, func(tx store.Tx) error {
			cur, err := tx.LockPrompt(ctx, id)
			if err != nil {
				return storeErr(err, "prompt", id)
			}

			if err := tx.InsertVersion(ctx, snapshotOf(cur)); err != nil {
				return fmt.Errorf("snapshot version %d: %w", cur.CurrentVersion, err)
			}

			next := cur.Clone()
			next.VersionCount++
			next.CurrentVersion = next.VersionCount
			f.apply(next)

			if next.Status != cur.Status && !CanTransition(cur.Status, next.Status) {
				return invalidTransition(cur.Status, next.Status)
			}
			if err := validatePrompt(next); err != nil {
				return err
			}

			if err := tx.UpdatePrompt(ctx, next); err != nil {
				return storeErr(err, "prompt", next.Name)
			}
			out = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	slog.Info("prompt versioned", "prompt_id", id, "version", out.CurrentVersion)
	return out, nil
}

// PatchRequest changes fields that are not part of a version snapshot.
type PatchRequest struct {
	Name   *string              `json:"name,omitempty"`
	Status *models.PromptStatus `json:"status,omitempty"`
}

// Update changes the name or status in place without creating a version.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req PatchRequest) (*models.Prompt, error) {
	var out *models.Prompt
	err := s.retryOnConflict(ctx, func() error {
		return s.store.WithTx(ctx, func(tx store.Tx) error {
			cur, err := tx.LockPrompt(ctx, id)
			if err != nil {
				return storeErr(err, "prompt", id)
			}

			next := cur.Clone()
			Fields{Name: req.Name, Status: req.Status}.apply(next)

			if next.Status != cur.Status && !CanTransition(cur.Status, next.Status) {
				return invalidTransition(cur.Status, next.Status)
			}
			if err := validatePrompt(next); err != nil {
				return err
			}
			if err := tx.UpdatePrompt(ctx, next); err != nil {
				return storeErr(err, "prompt", next.Name)
			}
			out = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	slog.Info("prompt updated", "prompt_id", id, "status", out.Status)
	return out, nil
}

func (s *Service) Publish(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	status := models.StatusPublished
	return s.Update(ctx, id, PatchRequest{Status: &status})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	var cached models.Prompt
	if ok, err := s.cache.Get(ctx, cacheKey(id), &cached); err != nil {
		slog.Debug("prompt cache read failed", "prompt_id", id, "error", err)
	} else if ok {
		return &cached, nil
	}

	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, storeErr(err, "prompt", id)
	}
	if err := s.cache.Set(ctx, cacheKey(id), p); err != nil {
		slog.Debug("prompt cache write failed", "prompt_id", id, "error", err)
	}
	return p, nil
}

type ListRequest struct {
	ProjectID *uuid.UUID
	Skip      int
	Limit     int
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]models.Prompt, error) {
	prompts, err := s.store.ListPrompts(ctx, store.PromptFilter{
		ProjectID: req.ProjectID,
		Page:      store.Page{Skip: req.Skip, Limit: req.Limit},
	})
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return prompts, nil
}

// Delete removes the prompt together with its snapshots and runs.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockPrompt(ctx, id)
		if err != nil {
			return storeErr(err, "prompt", id)
		}
		if err := tx.DeletePrompt(ctx, id); err != nil {
			return storeErr(err, "prompt", id)
		}
		return tx.AdjustPromptCount(ctx, p.ProjectID, -1)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	slog.Info("prompt deleted", "prompt_id", id)
	return nil
}

// ListVersions returns every snapshot plus the live version, newest first.
func (s *Service) ListVersions(ctx context.Context, id uuid.UUID) ([]models.VersionView, error) {
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, storeErr(err, "prompt", id)
	}
	snaps, err := s.store.ListVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	views := make([]models.VersionView, 0, len(snaps)+1)
	views = append(views, liveView(p))
	for _, snap := range snaps {
		// A re-version committed after p was read; p is the reference point.
		if snap.Version >= p.CurrentVersion {
			continue
		}
		views = append(views, snapshotView(p, snap))
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].Version > views[j].Version })
	return views, nil
}

func (s *Service) GetVersion(ctx context.Context, id uuid.UUID, version int) (*models.VersionView, error) {
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, storeErr(err, "prompt", id)
	}
	if version == p.CurrentVersion {
		v := liveView(p)
		return &v, nil
	}
	snap, err := s.store.GetVersion(ctx, id, version)
	if err != nil {
		return nil, storeErr(err, "version", version)
	}
	v := snapshotView(p, *snap)
	return &v, nil
}

// AtVersion returns the prompt as it was at version. Zero means the live
// version. For older versions the result is a read-only projection whose
// CurrentVersion reports the version it represents. It reads the store
// directly since a cached definition may lag behind the live version.
func (s *Service) AtVersion(ctx context.Context, id uuid.UUID, version int) (*models.Prompt, error) {
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, storeErr(err, "prompt", id)
	}
	if version == 0 || version == p.CurrentVersion {
		return p, nil
	}
	snap, err := s.store.GetVersion(ctx, id, version)
	if err != nil {
		return nil, storeErr(err, "version", version)
	}

	out := p.Clone()
	out.Content = snap.Content
	out.Description = snap.Description
	out.Variables = append([]models.Variable{}, snap.Variables...)
	out.OutputSchema = snap.OutputSchema
	out.MaxTokens = snap.MaxTokens
	out.Temperature = snap.Temperature
	out.CurrentVersion = snap.Version
	return out, nil
}

type RenderRequest struct {
	Version   int               `json:"version,omitempty"` // 0 = current
	Variables map[string]string `json:"variables"`
}

type RenderResponse struct {
	Version int    `json:"version"`
	Content string `json:"content"`
}

func (s *Service) RenderPrompt(ctx context.Context, id uuid.UUID, req RenderRequest) (*RenderResponse, error) {
	p, err := s.AtVersion(ctx, id, req.Version)
	if err != nil {
		return nil, err
	}
	content, err := RenderFor(p, req.Variables)
	if err != nil {
		return nil, err
	}
	return &RenderResponse{Version: p.CurrentVersion, Content: content}, nil
}

// RenderFor substitutes input into p's content. Declared optional variables
// that are absent render as empty strings.
func RenderFor(p *models.Prompt, input map[string]string) (string, error) {
	bindings := make(map[string]string, len(input)+len(p.Variables))
	for k, v := range input {
		bindings[k] = v
	}
	for _, v := range p.Variables {
		if _, ok := bindings[v.Name]; !ok && !v.Required {
			bindings[v.Name] = ""
		}
	}

	out, err := Render(p.Content, bindings)
	var missing *MissingVariableError
	if errors.As(err, &missing) {
		return "", apperr.Validation(apperr.ReasonMissingRequiredVariable, "missing value for variable %q", missing.Name)
	}
	return out, err
}

func (s *Service) retryOnConflict(ctx context.Context, op func() error) error {
	err := op()
	if errors.Is(err, store.ErrConflict) && ctx.Err() == nil {
		slog.Warn("concurrent prompt write, retrying once", "error", err)
		err = op()
	}
	if errors.Is(err, store.ErrConflict) {
		return apperr.Conflict(err, "prompt was modified concurrently, try again")
	}
	return err
}

func (s *Service) invalidate(ctx context.Context, ids ...uuid.UUID) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("prompt cache invalidation failed", "error", err)
	}
}

// Invalidate drops cached definitions, for callers that delete prompts indirectly.
func (s *Service) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	s.invalidate(ctx, ids...)
}

func cacheKey(id uuid.UUID) string { return "prompt:" + id.String() }

func snapshotOf(p *models.Prompt) *models.PromptVersion {
	return &models.PromptVersion{
		PromptID:     p.ID,
		Version:      p.CurrentVersion,
		Content:      p.Content,
		Description:  p.Description,
		Variables:    append([]models.Variable{}, p.Variables...),
		OutputSchema: p.OutputSchema,
		MaxTokens:    p.MaxTokens,
		Temperature:  p.Temperature,
	}
}

func liveView(p *models.Prompt) models.VersionView {
	created := p.CreatedAt
	if p.UpdatedAt != nil {
		created = *p.UpdatedAt
	}
	snap := snapshotOf(p)
	snap.CreatedAt = created
	return models.VersionView{
		PromptVersion:     *snap,
		PromptName:        p.Name,
		PromptDescription: p.Description,
		ProjectID:         p.ProjectID,
		Status:            p.Status,
		Live:              true,
	}
}

func snapshotView(p *models.Prompt, snap models.PromptVersion) models.VersionView {
	return models.VersionView{
		PromptVersion:     snap,
		PromptName:        p.Name,
		PromptDescription: p.Description,
		ProjectID:         p.ProjectID,
	}
}

func invalidTransition(from, to models.PromptStatus) error {
	return apperr.Validation(apperr.ReasonInvalidStatusTransition, "cannot move prompt from %s to %s", from, to)
}

func storeErr(err error, what string, key any) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("%s %v not found", what, key)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.ValidationCause(apperr.ReasonInvalidRequest, err, "%s %v already exists", what, key)
	}
	return err
}
