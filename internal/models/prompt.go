package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PromptStatus string

const (
	StatusDraft      PromptStatus = "DRAFT"
	StatusTesting    PromptStatus = "TESTING"
	StatusPublished  PromptStatus = "PUBLISHED"
	StatusDeprecated PromptStatus = "DEPRECATED"
	StatusArchived   PromptStatus = "ARCHIVED"
)

type VariableType string

const (
	VariableString VariableType = "STRING"
	VariableImage  VariableType = "IMAGE"
)

type Variable struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required"`
	Type        VariableType `json:"type"`
}

// Prompt is the live definition. CurrentVersion always equals VersionCount.
type Prompt struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	ProjectID      uuid.UUID       `json:"project_id" db:"project_id"`
	Name           string          `json:"name" db:"name"`
	Description    string          `json:"description,omitempty" db:"description"`
	Content        string          `json:"content" db:"content"`
	Variables      []Variable      `json:"variables" db:"variables"`
	OutputSchema   json.RawMessage `json:"output_schema,omitempty" db:"output_schema"`
	MaxTokens      int             `json:"max_tokens" db:"max_tokens"`
	Temperature    float64         `json:"temperature" db:"temperature"`
	Status         PromptStatus    `json:"status" db:"status"`
	CurrentVersion int             `json:"current_version" db:"current_version"`
	VersionCount   int             `json:"version_count" db:"version_count"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty" db:"updated_at"`
}

func (p *Prompt) HasImage() bool {
	for _, v := range p.Variables {
		if v.Type == VariableImage {
			return true
		}
	}
	return false
}

func (p *Prompt) ImageVariables() []Variable {
	var out []Variable
	for _, v := range p.Variables {
		if v.Type == VariableImage {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns a copy that shares no slices with p.
func (p *Prompt) Clone() *Prompt {
	c := *p
	c.Variables = append([]Variable(nil), p.Variables...)
	if p.OutputSchema != nil {
		c.OutputSchema = append(json.RawMessage(nil), p.OutputSchema...)
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

// PromptVersion is an immutable snapshot of a prompt as it was while live at Version.
type PromptVersion struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	PromptID     uuid.UUID       `json:"prompt_id" db:"prompt_id"`
	Version      int             `json:"version" db:"version"`
	Content      string          `json:"content" db:"content"`
	Description  string          `json:"description,omitempty" db:"description"`
	Variables    []Variable      `json:"variables" db:"variables"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty" db:"output_schema"`
	MaxTokens    int             `json:"max_tokens" db:"max_tokens"`
	Temperature  float64         `json:"temperature" db:"temperature"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// VersionView is a version listing entry joined with its prompt.
type VersionView struct {
	PromptVersion
	PromptName        string       `json:"prompt_name"`
	PromptDescription string       `json:"prompt_description,omitempty"`
	ProjectID         uuid.UUID    `json:"project_id"`
	Status            PromptStatus `json:"status,omitempty"`
	Live              bool         `json:"live"`
}
