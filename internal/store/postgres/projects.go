package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

const projectColumns = `id, name, description, status, tags, prompt_count, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.Tags, &p.PromptCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}

func (q *queries) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx,
		`INSERT INTO projects (id, name, description, status, tags, prompt_count)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		p.ID, p.Name, p.Description, p.Status, p.Tags, p.PromptCount,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return scanProject(q.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

func (q *queries) ListProjects(ctx context.Context, page store.Page) ([]models.Project, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limitOrAll(page.Limit), page.Skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (q *queries) UpdateProject(ctx context.Context, p *models.Project) error {
	err := q.db.QueryRow(ctx,
		`UPDATE projects SET name = $2, description = $3, status = $4, tags = $5, updated_at = now()
		 WHERE id = $1 RETURNING updated_at`,
		p.ID, p.Name, p.Description, p.Status, p.Tags,
	).Scan(&p.UpdatedAt)
	return mapErr(err)
}

// DeleteProject relies on ON DELETE CASCADE for prompts, versions and runs.
func (q *queries) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return expectOne(q.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id))
}

func (q *queries) AdjustPromptCount(ctx context.Context, projectID uuid.UUID, delta int) error {
	return expectOne(q.db.Exec(ctx,
		`UPDATE projects SET prompt_count = GREATEST(prompt_count + $2, 0) WHERE id = $1`,
		projectID, delta,
	))
}
