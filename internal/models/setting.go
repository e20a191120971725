package models

import (
	"time"

	"github.com/google/uuid"
)

type SettingType string

const (
	SettingAPIKey SettingType = "api_key"
	SettingConfig SettingType = "config"
)

// Setting holds an encrypted value. Value is ciphertext and is never serialized.
type Setting struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Key         string      `json:"key" db:"key"`
	Value       string      `json:"-" db:"value"`
	Type        SettingType `json:"type" db:"type"`
	Description string      `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty" db:"updated_at"`
}
