package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	box, err := NewBox("unit-test-secret")
	require.NoError(t, err)
	st := memory.New()
	return NewService(st, box), st
}

func TestBoxRoundTrip(t *testing.T) {
	box, err := NewBox("k1")
	require.NoError(t, err)

	a, err := box.Encrypt("sk-live-123")
	require.NoError(t, err)
	b, err := box.Encrypt("sk-live-123")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonces must differ")

	plain, err := box.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", plain)

	other, err := NewBox("k2")
	require.NoError(t, err)
	_, err = other.Decrypt(a)
	assert.Error(t, err)

	_, err = box.Decrypt("c2hvcnQ=")
	assert.Error(t, err)

	_, err = NewBox("")
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "sk-a...wxyz", Mask("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "1234...5678", Mask("12345678"))
	assert.Equal(t, "*******", Mask("1234567"))
	assert.Equal(t, "", Mask(""))
}

func TestCreateStoresCiphertext(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateRequest{Key: "OPENAI_API_KEY", Value: "sk-abcdefghijkl", Type: models.SettingAPIKey})
	require.NoError(t, err)
	assert.Equal(t, "sk-a...ijkl", view.Value)

	raw, err := st.GetSetting(ctx, "OPENAI_API_KEY")
	require.NoError(t, err)
	assert.NotContains(t, raw.Value, "sk-abcdefghijkl")

	plain, err := svc.GetDecrypted(ctx, "OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-abcdefghijkl", plain)
}

func TestConfigSettingsAreNotMasked(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateRequest{Key: "region", Value: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, models.SettingConfig, view.Type)
	assert.Equal(t, "eu-west-1", view.Value)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []CreateRequest{
		{Key: "1bad", Value: "x"},
		{Key: "ok", Value: ""},
		{Key: "ok", Value: "x", Type: "secret"},
	}
	for _, req := range cases {
		_, err := svc.Create(ctx, req)
		assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidRequest), "%+v: %v", req, err)
	}

	_, err := svc.Create(ctx, CreateRequest{Key: "dup", Value: "x"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{Key: "dup", Value: "y"})
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidRequest), "got %v", err)
}

func TestUpdateListDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Key: "ANTHROPIC_API_KEY", Value: "old-key-value", Type: models.SettingAPIKey})
	require.NoError(t, err)

	next := "new-key-value"
	_, err = svc.Update(ctx, "ANTHROPIC_API_KEY", UpdateRequest{Value: &next})
	require.NoError(t, err)
	plain, err := svc.GetDecrypted(ctx, "ANTHROPIC_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, next, plain)

	views, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "new-...alue", views[0].Value)

	require.NoError(t, svc.Delete(ctx, "ANTHROPIC_API_KEY"))
	_, err = svc.GetDecrypted(ctx, "ANTHROPIC_API_KEY")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)

	err = svc.Delete(ctx, "ANTHROPIC_API_KEY")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
