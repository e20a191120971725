package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
	"github.com/nikhilbhutani/promptforge/internal/store/memory"
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	ctx     context.Context
	store   *memory.Store
	svc     *Service
	project uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	proj := &models.Project{Name: "support", Status: models.ProjectActive}
	require.NoError(t, st.CreateProject(ctx, proj))
	return &fixture{ctx: ctx, store: st, svc: NewService(st, nil), project: proj.ID}
}

func (f *fixture) create(t *testing.T, fields Fields) *models.Prompt {
	t.Helper()
	p, err := f.svc.Create(f.ctx, CreateRequest{ProjectID: f.project, Fields: fields})
	require.NoError(t, err)
	return p
}

func greetingFields() Fields {
	return Fields{
		Name:      ptr("greeting"),
		Content:   ptr("Hello {name}"),
		Variables: []models.Variable{{Name: "name", Type: models.VariableString, Required: true}},
	}
}

func TestCreateGreeting(t *testing.T) {
	f := newFixture(t)

	p := f.create(t, greetingFields())

	assert.Equal(t, 1, p.CurrentVersion)
	assert.Equal(t, 1, p.VersionCount)
	assert.Equal(t, models.StatusDraft, p.Status)
	assert.Equal(t, DefaultTemperature, p.Temperature)

	proj, err := f.store.GetProject(f.ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, 1, proj.PromptCount)
}

func TestCreateRejectsMixedImageAndString(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx, CreateRequest{ProjectID: f.project, Fields: Fields{
		Name:    ptr("vision"),
		Content: ptr("Describe the picture"),
		Variables: []models.Variable{
			{Name: "img", Type: models.VariableImage},
			{Name: "q", Type: models.VariableString},
		},
	}})

	assert.True(t, apperr.HasReason(err, apperr.ReasonMixedVariableTypes), "got %v", err)
	prompts, err := f.store.ListPrompts(f.ctx, store.PromptFilter{})
	require.NoError(t, err)
	assert.Empty(t, prompts)
}

func TestCreateDefaultsVariableType(t *testing.T) {
	f := newFixture(t)

	p := f.create(t, Fields{
		Name:      ptr("untyped"),
		Content:   ptr("Summarise {text}"),
		Variables: []models.Variable{{Name: "text", Required: true}},
	})
	assert.Equal(t, models.VariableString, p.Variables[0].Type)
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t)
	f.create(t, greetingFields())

	t.Run("unknown project", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, CreateRequest{ProjectID: uuid.New(), Fields: greetingFields()})
		assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
	})

	t.Run("duplicate name in project", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, CreateRequest{ProjectID: f.project, Fields: greetingFields()})
		assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidRequest), "got %v", err)
	})

	t.Run("cannot start deprecated", func(t *testing.T) {
		fields := greetingFields()
		fields.Name = ptr("other")
		fields.Status = ptr(models.StatusDeprecated)
		_, err := f.svc.Create(f.ctx, CreateRequest{ProjectID: f.project, Fields: fields})
		assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidStatusTransition), "got %v", err)
	})
}

func TestPublishRequiresDescription(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, Fields{Name: ptr("faq"), Content: ptr("Answer the question briefly.")})

	_, err := f.svc.Publish(f.ctx, p.ID)
	require.True(t, apperr.HasReason(err, apperr.ReasonPublishRequirementsNotMet), "got %v", err)

	got, err := f.svc.Get(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, got.Status)

	_, err = f.svc.Version(f.ctx, p.ID, Fields{Description: ptr("Short FAQ answers")})
	require.NoError(t, err)

	published, err := f.svc.Publish(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, published.Status)
}

func TestVersionKeepsHistory(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, Fields{Name: ptr("story"), Content: ptr("Content A is here")})

	next, err := f.svc.Version(f.ctx, p.ID, Fields{Content: ptr("Content B is here")})
	require.NoError(t, err)
	assert.Equal(t, 2, next.CurrentVersion)
	assert.Equal(t, next.VersionCount, next.CurrentVersion)

	versions, err := f.svc.ListVersions(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, "Content B is here", versions[0].Content)
	assert.True(t, versions[0].Live)

	assert.Equal(t, 1, versions[1].Version)
	assert.Equal(t, "Content A is here", versions[1].Content)
	assert.False(t, versions[1].Live)
}

func TestVersionFailureLeavesPromptUntouched(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, greetingFields())

	_, err := f.svc.Version(f.ctx, p.ID, Fields{Content: ptr("Hello {name} from {city}")})
	require.True(t, apperr.HasReason(err, apperr.ReasonUndefinedVariable), "got %v", err)

	got, err := f.store.GetPrompt(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentVersion)
	assert.Equal(t, "Hello {name}", got.Content)

	snaps, err := f.store.ListVersions(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestVersionRejectsIllegalTransition(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, Fields{Name: ptr("legal"), Content: ptr("Some fixed content"), Description: ptr("desc")})

	_, err := f.svc.Publish(f.ctx, p.ID)
	require.NoError(t, err)

	_, err = f.svc.Version(f.ctx, p.ID, Fields{Status: ptr(models.StatusDraft)})
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidStatusTransition), "got %v", err)
}

func TestVersionNumbersIncreaseMonotonically(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, greetingFields())

	for i := 2; i <= 5; i++ {
		next, err := f.svc.Version(f.ctx, p.ID, Fields{Content: ptr(fmt.Sprintf("Hello {name} #%d", i))})
		require.NoError(t, err)
		assert.Equal(t, i, next.CurrentVersion)
	}

	versions, err := f.svc.ListVersions(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 5)
	for i, v := range versions {
		assert.Equal(t, 5-i, v.Version)
	}
}

func TestConcurrentVersionsAreSerialised(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, greetingFields())

	const writers = 8
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		i := i // per-iteration copy for pre-Go 1.22 loop semantics
		g.Go(func() error {
			_, err := f.svc.Version(f.ctx, p.ID, Fields{Content: ptr(fmt.Sprintf("Hello {name} from writer %d", i))})
			return err
		})
	}
	require.NoError(t, g.Wait())

	versions, err := f.svc.ListVersions(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, writers+1)
	seen := map[int]bool{}
	for _, v := range versions {
		assert.False(t, seen[v.Version], "version %d listed twice", v.Version)
		seen[v.Version] = true
	}
}

func TestListVersionsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, greetingFields())
	_, err := f.svc.Version(f.ctx, p.ID, Fields{Content: ptr("Hi there {name}")})
	require.NoError(t, err)

	first, err := f.svc.ListVersions(f.ctx, p.ID)
	require.NoError(t, err)
	second, err := f.svc.ListVersions(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// conflictingStore fails the first n transactions with store.ErrConflict.
type conflictingStore struct {
	store.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *conflictingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	c.mu.Lock()
	c.calls++
	fail := c.failures > 0
	if fail {
		c.failures--
	}
	c.mu.Unlock()
	if fail {
		return store.ErrConflict
	}
	return c.Store.WithTx(ctx, fn)
}

func TestVersionRetriesOnceOnConflict(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, greetingFields())

	t.Run("second attempt succeeds", func(t *testing.T) {
		cs := &conflictingStore{Store: f.store, failures: 1}
		svc := NewService(cs, nil)

		next, err := svc.Version(f.ctx, p.ID, Fields{Content: ptr("Hello again {name}")})
		require.NoError(t, err)
		assert.Equal(t, 2, next.CurrentVersion)
		assert.Equal(t, 2, cs.calls)
	})

	t.Run("persistent conflict surfaces", func(t *testing.T) {
		cs := &conflictingStore{Store: f.store, failures: 2}
		svc := NewService(cs, nil)

		_, err := svc.Version(f.ctx, p.ID, Fields{Content: ptr("Hello once more {name}")})
		assert.True(t, apperr.Is(err, apperr.KindTransientConflict), "got %v", err)
		assert.Equal(t, 2, cs.calls)
	})
}

func TestCreateOrVersion(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateOrVersion(f.ctx, nil, CreateRequest{ProjectID: f.project, Fields: greetingFields()})
	require.NoError(t, err)

	versioned, err := f.svc.CreateOrVersion(f.ctx, &created.ID, CreateRequest{Fields: Fields{Content: ptr("Howdy {name}!")}})
	require.NoError(t, err)
	assert.Equal(t, created.ID, versioned.ID)
	assert.Equal(t, 2, versioned.CurrentVersion)
	assert.Equal(t, created.ProjectID, versioned.ProjectID)

	_, err = f.svc.CreateOrVersion(f.ctx, ptr(uuid.New()), CreateRequest{Fields: greetingFields()})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
}

func TestUpdateDoesNotCreateVersion(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, greetingFields())

	updated, err := f.svc.Update(f.ctx, p.ID, PatchRequest{Name: ptr("greeting-v2"), Status: ptr(models.StatusTesting)})
	require.NoError(t, err)
	assert.Equal(t, "greeting-v2", updated.Name)
	assert.Equal(t, models.StatusTesting, updated.Status)
	assert.Equal(t, 1, updated.CurrentVersion)

	versions, err := f.svc.ListVersions(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestAtVersionAndRender(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, greetingFields())
	_, err := f.svc.Version(f.ctx, p.ID, Fields{Content: ptr("Good morning {name}")})
	require.NoError(t, err)

	old, err := f.svc.AtVersion(f.ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, old.CurrentVersion)
	assert.Equal(t, "Hello {name}", old.Content)

	resp, err := f.svc.RenderPrompt(f.ctx, p.ID, RenderRequest{Variables: map[string]string{"name": "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, &RenderResponse{Version: 2, Content: "Good morning Ada"}, resp)

	resp, err = f.svc.RenderPrompt(f.ctx, p.ID, RenderRequest{Version: 1, Variables: map[string]string{"name": "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", resp.Content)

	_, err = f.svc.AtVersion(f.ctx, p.ID, 7)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)

	_, err = f.svc.RenderPrompt(f.ctx, p.ID, RenderRequest{})
	assert.True(t, apperr.HasReason(err, apperr.ReasonMissingRequiredVariable), "got %v", err)
}

func TestRenderForOptionalVariables(t *testing.T) {
	p := &models.Prompt{
		Content: "Dear {name}{suffix}",
		Variables: []models.Variable{
			{Name: "name", Type: models.VariableString, Required: true},
			{Name: "suffix", Type: models.VariableString},
		},
	}

	out, err := RenderFor(p, map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Dear Ada", out)

	_, err = RenderFor(p, map[string]string{"suffix": "!"})
	assert.True(t, apperr.HasReason(err, apperr.ReasonMissingRequiredVariable), "got %v", err)
}

func TestGetVersion(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, Fields{
		Name:         ptr("typed"),
		Content:      ptr("Return a JSON answer"),
		OutputSchema: json.RawMessage(`{"type":"object"}`),
	})
	_, err := f.svc.Version(f.ctx, p.ID, Fields{OutputSchema: json.RawMessage(`null`)})
	require.NoError(t, err)

	v1, err := f.svc.GetVersion(f.ctx, p.ID, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object"}`, string(v1.OutputSchema))
	assert.False(t, v1.Live)

	v2, err := f.svc.GetVersion(f.ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, v2.OutputSchema)
	assert.True(t, v2.Live)
}

func TestListAndDelete(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, greetingFields())
	other := &models.Project{Name: "sales", Status: models.ProjectActive}
	require.NoError(t, f.store.CreateProject(f.ctx, other))
	_, err := f.svc.Create(f.ctx, CreateRequest{ProjectID: other.ID, Fields: greetingFields()})
	require.NoError(t, err)

	all, err := f.svc.List(f.ctx, ListRequest{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.List(f.ctx, ListRequest{ProjectID: &f.project, Limit: 10})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	require.NoError(t, f.svc.Delete(f.ctx, a.ID))
	_, err = f.svc.Get(f.ctx, a.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	proj, err := f.store.GetProject(f.ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, 0, proj.PromptCount)
}

// laggingCache keeps the first definition it was given, as if an older read
// landed after the invalidation that followed a newer version.
type laggingCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (c *laggingCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *laggingCache) Set(_ context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

func (c *laggingCache) Delete(context.Context, ...string) error { return nil }

func TestAtVersionIgnoresLaggingCache(t *testing.T) {
	f := newFixture(t)
	f.svc.cache = &laggingCache{entries: map[string][]byte{}}
	p := f.create(t, greetingFields())

	cached, err := f.svc.Get(f.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cached.CurrentVersion)

	_, err = f.svc.Version(f.ctx, p.ID, Fields{Content: ptr("Good evening {name}")})
	require.NoError(t, err)

	live, err := f.svc.AtVersion(f.ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, live.CurrentVersion)
	assert.Equal(t, "Good evening {name}", live.Content)

	resp, err := f.svc.RenderPrompt(f.ctx, p.ID, RenderRequest{Variables: map[string]string{"name": "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, &RenderResponse{Version: 2, Content: "Good evening Ada"}, resp)
}
