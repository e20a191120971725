package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

const promptColumns = `id, project_id, name, description, content, variables, output_schema,
	max_tokens, temperature, status, current_version, version_count, created_at, updated_at`

func scanPrompt(row interface{ Scan(...any) error }) (*models.Prompt, error) {
	var (
		p        models.Prompt
		varsJSON []byte
		schema   []byte
	)
	err := row.Scan(&p.ID, &p.ProjectID, &p.Name, &p.Description, &p.Content, &varsJSON, &schema,
		&p.MaxTokens, &p.Temperature, &p.Status, &p.CurrentVersion, &p.VersionCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := json.Unmarshal(varsJSON, &p.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	if len(schema) > 0 {
		p.OutputSchema = json.RawMessage(schema)
	}
	return &p, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func (q *queries) CreatePrompt(ctx context.Context, p *models.Prompt) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	varsJSON, err := json.Marshal(p.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	err = q.db.QueryRow(ctx,
		`INSERT INTO prompts (id, project_id, name, description, content, variables, output_schema,
			max_tokens, temperature, status, current_version, version_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at`,
		p.ID, p.ProjectID, p.Name, p.Description, p.Content, varsJSON, nullableJSON(p.OutputSchema),
		p.MaxTokens, p.Temperature, p.Status, p.CurrentVersion, p.VersionCount,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	return scanPrompt(q.db.QueryRow(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = $1`, id))
}

func (q *queries) LockPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	return scanPrompt(q.db.QueryRow(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = $1 FOR UPDATE`, id))
}

func (q *queries) ListPrompts(ctx context.Context, f store.PromptFilter) ([]models.Prompt, error) {
	var (
		where []string
		args  []any
	)
	if f.ProjectID != nil {
		args = append(args, *f.ProjectID)
		where = append(where, fmt.Sprintf("project_id = $%d", len(args)))
	}
	sql := `SELECT ` + promptColumns + ` FROM prompts`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limitOrAll(f.Limit), f.Skip)
	sql += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	prompts := []models.Prompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

func (q *queries) UpdatePrompt(ctx context.Context, p *models.Prompt) error {
	varsJSON, err := json.Marshal(p.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	err = q.db.QueryRow(ctx,
		`UPDATE prompts SET name = $2, description = $3, content = $4, variables = $5, output_schema = $6,
			max_tokens = $7, temperature = $8, status = $9, current_version = $10, version_count = $11,
			updated_at = now()
		 WHERE id = $1 RETURNING updated_at`,
		p.ID, p.Name, p.Description, p.Content, varsJSON, nullableJSON(p.OutputSchema),
		p.MaxTokens, p.Temperature, p.Status, p.CurrentVersion, p.VersionCount,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update prompt: %w", mapErr(err))
	}
	return nil
}

func (q *queries) DeletePrompt(ctx context.Context, id uuid.UUID) error {
	return expectOne(q.db.Exec(ctx, `DELETE FROM prompts WHERE id = $1`, id))
}

const versionColumns = `id, prompt_id, version, content, description, variables, output_schema,
	max_tokens, temperature, created_at`

func scanVersion(row interface{ Scan(...any) error }) (*models.PromptVersion, error) {
	var (
		v        models.PromptVersion
		varsJSON []byte
		schema   []byte
	)
	err := row.Scan(&v.ID, &v.PromptID, &v.Version, &v.Content, &v.Description, &varsJSON, &schema,
		&v.MaxTokens, &v.Temperature, &v.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := json.Unmarshal(varsJSON, &v.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	if len(schema) > 0 {
		v.OutputSchema = json.RawMessage(schema)
	}
	return &v, nil
}

func (q *queries) InsertVersion(ctx context.Context, v *models.PromptVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	varsJSON, err := json.Marshal(v.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	err = q.db.QueryRow(ctx,
		`INSERT INTO prompt_versions (id, prompt_id, version, content, description, variables, output_schema,
			max_tokens, temperature)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		v.ID, v.PromptID, v.Version, v.Content, v.Description, varsJSON, nullableJSON(v.OutputSchema),
		v.MaxTokens, v.Temperature,
	).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert version: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetVersion(ctx context.Context, promptID uuid.UUID, version int) (*models.PromptVersion, error) {
	return scanVersion(q.db.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM prompt_versions WHERE prompt_id = $1 AND version = $2`,
		promptID, version,
	))
}

func (q *queries) ListVersions(ctx context.Context, promptID uuid.UUID) ([]models.PromptVersion, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+versionColumns+` FROM prompt_versions WHERE prompt_id = $1 ORDER BY version DESC`,
		promptID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := []models.PromptVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}
