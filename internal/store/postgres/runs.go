package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

const runColumns = `id, prompt_id, project_id, version, input_variables, output, model,
	prompt_tokens, completion_tokens, embedding_tokens, total_tokens, latency_ms, run_metadata, created_at`

func scanRun(row interface{ Scan(...any) error }) (*models.Run, error) {
	var (
		r         models.Run
		inputJSON []byte
		metaJSON  []byte
	)
	err := row.Scan(&r.ID, &r.PromptID, &r.ProjectID, &r.Version, &inputJSON, &r.Output, &r.Model,
		&r.Tokens.PromptTokens, &r.Tokens.CompletionTokens, &r.Tokens.EmbeddingTokens, &r.Tokens.TotalTokens,
		&r.LatencyMs, &metaJSON, &r.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := json.Unmarshal(inputJSON, &r.InputVariables); err != nil {
		return nil, fmt.Errorf("decode input variables: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &r.Metadata); err != nil {
		return nil, fmt.Errorf("decode run metadata: %w", err)
	}
	return &r, nil
}

func (q *queries) InsertRun(ctx context.Context, r *models.Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	inputJSON, err := json.Marshal(r.InputVariables)
	if err != nil {
		return fmt.Errorf("encode input variables: %w", err)
	}
	metaJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}
	err = q.db.QueryRow(ctx,
		`INSERT INTO runs (id, prompt_id, project_id, version, input_variables, output, model,
			prompt_tokens, completion_tokens, embedding_tokens, total_tokens, latency_ms, run_metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`,
		r.ID, r.PromptID, r.ProjectID, r.Version, inputJSON, r.Output, r.Model,
		r.Tokens.PromptTokens, r.Tokens.CompletionTokens, r.Tokens.EmbeddingTokens, r.Tokens.TotalTokens,
		r.LatencyMs, metaJSON,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", mapErr(err))
	}
	return nil
}

func (q *queries) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	return scanRun(q.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
}

func (q *queries) ListRuns(ctx context.Context, promptID uuid.UUID, f store.RunFilter) ([]models.Run, error) {
	order := "ASC"
	if f.LatestFirst {
		order = "DESC"
	}
	rows, err := q.db.Query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE prompt_id = $1
		 ORDER BY created_at `+order+` LIMIT $2 OFFSET $3`,
		promptID, limitOrAll(f.Limit), f.Skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
