// Package project manages projects, the owners of prompts and runs.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

const (
	minNameLen = 3
	maxNameLen = 50
	maxTags    = 5
	minTagLen  = 2
	maxTagLen  = 20
)

// PromptInvalidator drops cached prompt definitions.
type PromptInvalidator interface {
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

type Service struct {
	store   store.Store
	prompts PromptInvalidator
}

// NewService builds the project service. prompts may be nil.
func NewService(st store.Store, prompts PromptInvalidator) *Service {
	return &Service{store: st, prompts: prompts}
}

type CreateRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Status      models.ProjectStatus `json:"status,omitempty"`
	Tags        []string             `json:"tags,omitempty"`
}

type UpdateRequest struct {
	Name        *string               `json:"name,omitempty"`
	Description *string               `json:"description,omitempty"`
	Status      *models.ProjectStatus `json:"status,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
}

func validate(p *models.Project) error {
	invalid := func(format string, args ...any) error {
		return apperr.Validation(apperr.ReasonInvalidRequest, format, args...)
	}
	if n := utf8.RuneCountInString(p.Name); n < minNameLen || n > maxNameLen {
		return invalid("project name must be %d to %d characters", minNameLen, maxNameLen)
	}
	switch p.Status {
	case models.ProjectActive, models.ProjectArchived, models.ProjectDraft:
	default:
		return invalid("unknown project status %q", p.Status)
	}
	if len(p.Tags) > maxTags {
		return invalid("at most %d tags are allowed", maxTags)
	}
	for _, t := range p.Tags {
		if n := utf8.RuneCountInString(t); n < minTagLen || n > maxTagLen {
			return invalid("tag %q must be %d to %d characters", t, minTagLen, maxTagLen)
		}
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Project, error) {
	p := &models.Project{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Status:      req.Status,
		Tags:        normalizeTags(req.Tags),
	}
	if p.Status == "" {
		p.Status = models.ProjectActive
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, storeErr(err, p.Name)
	}

	slog.Info("project created", "project_id", p.ID, "name", p.Name)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, storeErr(err, id)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, skip, limit int) ([]models.Project, error) {
	projects, err := s.store.ListProjects(ctx, store.Page{Skip: skip, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*models.Project, error) {
	var out *models.Project
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProject(ctx, id)
		if err != nil {
			return storeErr(err, id)
		}
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Status != nil {
			p.Status = *req.Status
		}
		if req.Tags != nil {
			p.Tags = normalizeTags(req.Tags)
		}
		if err := validate(p); err != nil {
			return err
		}
		if err := tx.UpdateProject(ctx, p); err != nil {
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

// Delete removes the project with all of its prompts, snapshots and runs.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var promptIDs []uuid.UUID
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		prompts, err := tx.ListPrompts(ctx, store.PromptFilter{ProjectID: &id})
		if err != nil {
			return fmt.Errorf("list project prompts: %w", err)
		}
		for _, p := range prompts {
			promptIDs = append(promptIDs, p.ID)
		}
		if err := tx.DeleteProject(ctx, id); err != nil {
			return storeErr(err, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.prompts != nil && len(promptIDs) > 0 {
		s.prompts.Invalidate(ctx, promptIDs...)
	}
	slog.Info("project deleted", "project_id", id, "prompts", len(promptIDs))
	return nil
}

func storeErr(err error, key any) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("project %v not found", key)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.ValidationCause(apperr.ReasonInvalidRequest, err, "project %v already exists", key)
	}
	return err
}
