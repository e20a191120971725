// Package settings stores encrypted configuration values such as provider API keys.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

const maxKeyLen = 100

type Service struct {
	store store.Store
	box   *Box
}

func NewService(st store.Store, box *Box) *Service {
	return &Service{store: st, box: box}
}

type CreateRequest struct {
	Key         string             `json:"key"`
	Value       string             `json:"value"`
	Type        models.SettingType `json:"type"`
	Description string             `json:"description,omitempty"`
}

type UpdateRequest struct {
	Value       *string `json:"value,omitempty"`
	Description *string `json:"description,omitempty"`
}

// View is a setting as shown to API clients. API keys are masked.
type View struct {
	ID          uuid.UUID          `json:"id"`
	Key         string             `json:"key"`
	Value       string             `json:"value"`
	Type        models.SettingType `json:"type"`
	Description string             `json:"description,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   *time.Time         `json:"updated_at,omitempty"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*View, error) {
	if len(req.Key) > maxKeyLen || !keyPattern.MatchString(req.Key) {
		return nil, apperr.Validation(apperr.ReasonInvalidRequest, "invalid setting key %q", req.Key)
	}
	if req.Type == "" {
		req.Type = models.SettingConfig
	}
	if req.Type != models.SettingAPIKey && req.Type != models.SettingConfig {
		return nil, apperr.Validation(apperr.ReasonInvalidRequest, "unknown setting type %q", req.Type)
	}
	if req.Value == "" {
		return nil, apperr.Validation(apperr.ReasonInvalidRequest, "value is required")
	}

	enc, err := s.box.Encrypt(req.Value)
	if err != nil {
		return nil, err
	}
	st := &models.Setting{Key: req.Key, Value: enc, Type: req.Type, Description: req.Description}
	if err := s.store.CreateSetting(ctx, st); err != nil {
		return nil, storeErr(err, req.Key)
	}

	slog.Info("setting created", "key", st.Key, "type", st.Type)
	return viewOf(st, req.Value), nil
}

func (s *Service) Update(ctx context.Context, key string, req UpdateRequest) (*View, error) {
	st, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return nil, storeErr(err, key)
	}
	plain, err := s.box.Decrypt(st.Value)
	if err != nil {
		return nil, err
	}
	if req.Value != nil {
		if *req.Value == "" {
			return nil, apperr.Validation(apperr.ReasonInvalidRequest, "value must not be empty")
		}
		plain = *req.Value
		if st.Value, err = s.box.Encrypt(plain); err != nil {
			return nil, err
		}
	}
	if req.Description != nil {
		st.Description = *req.Description
	}
	if err := s.store.UpdateSetting(ctx, st); err != nil {
		return nil, storeErr(err, key)
	}
	return viewOf(st, plain), nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.store.DeleteSetting(ctx, key); err != nil {
		return storeErr(err, key)
	}
	slog.Info("setting deleted", "key", key)
	return nil
}

func (s *Service) Get(ctx context.Context, key string) (*View, error) {
	st, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return nil, storeErr(err, key)
	}
	plain, err := s.box.Decrypt(st.Value)
	if err != nil {
		return nil, err
	}
	return viewOf(st, plain), nil
}

func (s *Service) List(ctx context.Context) ([]View, error) {
	all, err := s.store.ListSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	views := make([]View, 0, len(all))
	for i := range all {
		plain, err := s.box.Decrypt(all[i].Value)
		if err != nil {
			slog.Warn("setting cannot be decrypted", "key", all[i].Key, "error", err)
			plain = ""
		}
		views = append(views, *viewOf(&all[i], plain))
	}
	return views, nil
}

// GetDecrypted returns the plaintext value of key for internal callers.
func (s *Service) GetDecrypted(ctx context.Context, key string) (string, error) {
	st, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return "", storeErr(err, key)
	}
	return s.box.Decrypt(st.Value)
}

// Mask hides all but the first and last four characters of a secret.
func Mask(value string) string {
	if len(value) < 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "..." + value[len(value)-4:]
}

func viewOf(st *models.Setting, plain string) *View {
	v := &View{
		ID:          st.ID,
		Key:         st.Key,
		Value:       plain,
		Type:        st.Type,
		Description: st.Description,
		CreatedAt:   st.CreatedAt,
		UpdatedAt:   st.UpdatedAt,
	}
	if st.Type == models.SettingAPIKey {
		v.Value = Mask(plain)
	}
	return v
}

func storeErr(err error, key string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("setting %s not found", key)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.ValidationCause(apperr.ReasonInvalidRequest, err, "setting %s already exists", key)
	}
	return err
}
