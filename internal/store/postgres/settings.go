package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/models"
)

const settingColumns = `id, key, value, type, description, created_at, updated_at`

func scanSetting(row interface{ Scan(...any) error }) (*models.Setting, error) {
	var s models.Setting
	err := row.Scan(&s.ID, &s.Key, &s.Value, &s.Type, &s.Description, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (q *queries) CreateSetting(ctx context.Context, s *models.Setting) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx,
		`INSERT INTO settings (id, key, value, type, description)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		s.ID, s.Key, s.Value, s.Type, s.Description,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert setting: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	return scanSetting(q.db.QueryRow(ctx, `SELECT `+settingColumns+` FROM settings WHERE key = $1`, key))
}

func (q *queries) ListSettings(ctx context.Context) ([]models.Setting, error) {
	rows, err := q.db.Query(ctx, `SELECT `+settingColumns+` FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := []models.Setting{}
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, *s)
	}
	return settings, rows.Err()
}

func (q *queries) UpdateSetting(ctx context.Context, s *models.Setting) error {
	err := q.db.QueryRow(ctx,
		`UPDATE settings SET value = $2, type = $3, description = $4, updated_at = now()
		 WHERE key = $1 RETURNING updated_at`,
		s.Key, s.Value, s.Type, s.Description,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update setting: %w", mapErr(err))
	}
	return nil
}

func (q *queries) DeleteSetting(ctx context.Context, key string) error {
	return expectOne(q.db.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key))
}
