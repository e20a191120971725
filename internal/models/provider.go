package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider is a registered inference backend. At most one has IsDefault set.
type Provider struct {
	ID                     uuid.UUID  `json:"id" db:"id"`
	Name                   string     `json:"name" db:"name"`
	APIKeySetting          string     `json:"api_key_setting,omitempty" db:"api_key_setting"`
	BaseURL                string     `json:"base_url,omitempty" db:"base_url"`
	DefaultModel           string     `json:"default_model" db:"default_model"`
	DefaultMultimodalModel string     `json:"default_multimodal_model,omitempty" db:"default_multimodal_model"`
	AvailableModels        []string   `json:"available_models" db:"available_models"`
	IsDefault              bool       `json:"is_default" db:"is_default"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt              *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

func (p *Provider) HasModel(model string) bool {
	for _, m := range p.AvailableModels {
		if m == model {
			return true
		}
	}
	return false
}
