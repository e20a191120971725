// Package store declares the persistence boundary used by the services.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/models"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate reports a unique-name violation.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrConflict reports a concurrent mutation that may succeed if retried.
	ErrConflict = errors.New("store: concurrent modification")
)

type Page struct {
	Skip  int
	Limit int
}

type PromptFilter struct {
	ProjectID *uuid.UUID
	Page
}

type RunFilter struct {
	Page
	LatestFirst bool
}

// Tx is the full set of operations. Store implements it outside a
// transaction and hands one to WithTx callbacks.
type Tx interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, page Page) ([]models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id uuid.UUID) error
	AdjustPromptCount(ctx context.Context, projectID uuid.UUID, delta int) error

	CreatePrompt(ctx context.Context, p *models.Prompt) error
	GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	// LockPrompt reads a prompt and holds it against concurrent writers until the transaction ends.
	LockPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	ListPrompts(ctx context.Context, f PromptFilter) ([]models.Prompt, error)
	UpdatePrompt(ctx context.Context, p *models.Prompt) error
	DeletePrompt(ctx context.Context, id uuid.UUID) error

	InsertVersion(ctx context.Context, v *models.PromptVersion) error
	GetVersion(ctx context.Context, promptID uuid.UUID, version int) (*models.PromptVersion, error)
	ListVersions(ctx context.Context, promptID uuid.UUID) ([]models.PromptVersion, error)

	InsertRun(ctx context.Context, r *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, promptID uuid.UUID, f RunFilter) ([]models.Run, error)

	CreateProvider(ctx context.Context, p *models.Provider) error
	GetProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	ListProviders(ctx context.Context) ([]models.Provider, error)
	UpdateProvider(ctx context.Context, p *models.Provider) error
	GetDefaultProvider(ctx context.Context) (*models.Provider, error)
	ClearDefaultProviders(ctx context.Context) error
	MarkDefaultProvider(ctx context.Context, id uuid.UUID) error

	CreateSetting(ctx context.Context, s *models.Setting) error
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	ListSettings(ctx context.Context) ([]models.Setting, error)
	UpdateSetting(ctx context.Context, s *models.Setting) error
	DeleteSetting(ctx context.Context, key string) error
}

type Store interface {
	Tx
	// WithTx runs fn in one transaction. Any error from fn rolls back every write made through tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
