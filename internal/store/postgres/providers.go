package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/models"
)

const providerColumns = `id, name, api_key_setting, base_url, default_model, default_multimodal_model,
	available_models, is_default, created_at, updated_at`

func scanProvider(row interface{ Scan(...any) error }) (*models.Provider, error) {
	var p models.Provider
	err := row.Scan(&p.ID, &p.Name, &p.APIKeySetting, &p.BaseURL, &p.DefaultModel, &p.DefaultMultimodalModel,
		&p.AvailableModels, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (q *queries) CreateProvider(ctx context.Context, p *models.Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx,
		`INSERT INTO llm_providers (id, name, api_key_setting, base_url, default_model,
			default_multimodal_model, available_models, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		p.ID, p.Name, p.APIKeySetting, p.BaseURL, p.DefaultModel, p.DefaultMultimodalModel,
		p.AvailableModels, p.IsDefault,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert provider: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	return scanProvider(q.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM llm_providers WHERE id = $1`, id))
}

func (q *queries) ListProviders(ctx context.Context) ([]models.Provider, error) {
	rows, err := q.db.Query(ctx, `SELECT `+providerColumns+` FROM llm_providers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	providers := []models.Provider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

func (q *queries) UpdateProvider(ctx context.Context, p *models.Provider) error {
	err := q.db.QueryRow(ctx,
		`UPDATE llm_providers SET name = $2, api_key_setting = $3, base_url = $4, default_model = $5,
			default_multimodal_model = $6, available_models = $7, updated_at = now()
		 WHERE id = $1 RETURNING updated_at`,
		p.ID, p.Name, p.APIKeySetting, p.BaseURL, p.DefaultModel, p.DefaultMultimodalModel, p.AvailableModels,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update provider: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetDefaultProvider(ctx context.Context) (*models.Provider, error) {
	return scanProvider(q.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM llm_providers WHERE is_default`))
}

func (q *queries) ClearDefaultProviders(ctx context.Context) error {
	_, err := q.db.Exec(ctx, `UPDATE llm_providers SET is_default = false WHERE is_default`)
	if err != nil {
		return fmt.Errorf("clear default providers: %w", mapErr(err))
	}
	return nil
}

func (q *queries) MarkDefaultProvider(ctx context.Context, id uuid.UUID) error {
	return expectOne(q.db.Exec(ctx, `UPDATE llm_providers SET is_default = true, updated_at = now() WHERE id = $1`, id))
}
