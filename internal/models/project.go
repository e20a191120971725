package models

import (
	"time"

	"github.com/google/uuid"
)

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
	ProjectDraft    ProjectStatus = "draft"
)

type Project struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description,omitempty" db:"description"`
	Status      ProjectStatus `json:"status" db:"status"`
	Tags        []string      `json:"tags" db:"tags"`
	PromptCount int           `json:"prompt_count" db:"prompt_count"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty" db:"updated_at"`
}
