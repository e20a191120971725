package provider

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store/memory"
)

func openAIRequest(def bool) CreateRequest {
	return CreateRequest{
		Name:                   "openai",
		APIKeySetting:          "OPENAI_API_KEY",
		DefaultModel:           "gpt-4o-mini",
		DefaultMultimodalModel: "gpt-4o",
		AvailableModels:        []string{"gpt-4o-mini", "gpt-4o", "gpt-4o"},
		IsDefault:              def,
	}
}

func anthropicRequest(def bool) CreateRequest {
	return CreateRequest{
		Name:            "anthropic",
		APIKeySetting:   "ANTHROPIC_API_KEY",
		DefaultModel:    "claude-3-5-haiku-20241022",
		AvailableModels: []string{"claude-3-5-haiku-20241022", "claude-3-5-sonnet-20241022"},
		IsDefault:       def,
	}
}

func defaults(t *testing.T, svc *Service) []string {
	t.Helper()
	all, err := svc.List(context.Background())
	require.NoError(t, err)
	var names []string
	for _, p := range all {
		if p.IsDefault {
			names = append(names, p.Name)
		}
	}
	return names
}

func TestCreateValidates(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	p, err := svc.Create(ctx, openAIRequest(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o"}, p.AvailableModels)

	bad := anthropicRequest(false)
	bad.DefaultModel = "claude-opus"
	_, err = svc.Create(ctx, bad)
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidRequest), "got %v", err)

	_, err = svc.Create(ctx, openAIRequest(false))
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidRequest), "duplicate name: %v", err)
}

func TestGetDefault(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	_, err := svc.GetDefault(ctx)
	assert.True(t, apperr.HasReason(err, apperr.ReasonNoDefaultProvider), "got %v", err)

	created, err := svc.Create(ctx, openAIRequest(true))
	require.NoError(t, err)

	def, err := svc.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID, def.ID)
}

func TestSetDefaultIsExclusive(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	oa, err := svc.Create(ctx, openAIRequest(true))
	require.NoError(t, err)
	an, err := svc.Create(ctx, anthropicRequest(false))
	require.NoError(t, err)

	_, err = svc.SetDefault(ctx, an.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic"}, defaults(t, svc))

	_, err = svc.SetDefault(ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, []string{"anthropic"}, defaults(t, svc), "failed switch keeps previous default")

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		id := oa.ID
		if i%2 == 0 {
			id = an.ID
		}
		g.Go(func() error {
			_, err := svc.SetDefault(ctx, id)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, defaults(t, svc), 1)
}

func TestResolve(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()
	text := &models.Prompt{}

	_, err := svc.Resolve(ctx, text, "")
	assert.True(t, apperr.HasReason(err, apperr.ReasonNoDefaultProvider))

	_, err = svc.Create(ctx, openAIRequest(true))
	require.NoError(t, err)
	_, err = svc.Create(ctx, anthropicRequest(false))
	require.NoError(t, err)

	sel, err := svc.Resolve(ctx, text, "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", sel.Model)
	assert.Equal(t, "openai", sel.Provider.Name)

	sel, err = svc.Resolve(ctx, text, "claude-3-5-sonnet-20241022")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", sel.Provider.Name)

	sel, err = svc.Resolve(ctx, text, "unlisted-model")
	require.NoError(t, err)
	assert.Equal(t, "unlisted-model", sel.Model)
	assert.Equal(t, "openai", sel.Provider.Name, "unknown explicit models go to the default provider")
}

func TestAvailableModels(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()
	_, err := svc.Create(ctx, openAIRequest(true))
	require.NoError(t, err)

	models, err := svc.AvailableModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, ModelInfo{Provider: "openai", Model: "gpt-4o-mini", Default: true}, models[0])
	assert.Equal(t, ModelInfo{Provider: "openai", Model: "gpt-4o", Multimodal: true}, models[1])
}

func TestUpdate(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()
	p, err := svc.Create(ctx, openAIRequest(false))
	require.NoError(t, err)

	model := "gpt-4o"
	updated, err := svc.Update(ctx, p.ID, UpdateRequest{DefaultModel: &model})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", updated.DefaultModel)

	missing := "o1"
	_, err = svc.Update(ctx, p.ID, UpdateRequest{DefaultModel: &missing})
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidRequest))
}
