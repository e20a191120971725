// Package memory is an in-process store.Store used by tests and by the API
// server when no database is configured. A transaction works on a private
// copy of the state which replaces the live state on success.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

type state struct {
	projects  map[uuid.UUID]models.Project
	prompts   map[uuid.UUID]*models.Prompt
	versions  map[uuid.UUID][]models.PromptVersion
	runs      map[uuid.UUID]models.Run
	providers map[uuid.UUID]models.Provider
	settings  map[string]models.Setting
}

func newState() *state {
	return &state{
		projects:  make(map[uuid.UUID]models.Project),
		prompts:   make(map[uuid.UUID]*models.Prompt),
		versions:  make(map[uuid.UUID][]models.PromptVersion),
		runs:      make(map[uuid.UUID]models.Run),
		providers: make(map[uuid.UUID]models.Provider),
		settings:  make(map[string]models.Setting),
	}
}

// clone copies the maps. Stored values are replaced on write, never mutated,
// so sharing them between copies is safe.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.prompts {
		c.prompts[k] = v
	}
	for k, v := range s.versions {
		c.versions[k] = append([]models.PromptVersion(nil), v...)
	}
	for k, v := range s.runs {
		c.runs[k] = v
	}
	for k, v := range s.providers {
		c.providers[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	return c
}

var _ store.Store = (*Store)(nil)

type Store struct {
	view
	mu   sync.RWMutex
	live *state
}

func New() *Store {
	s := &Store{live: newState()}
	s.view = view{s: s}
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.live.clone()
	if err := fn(&view{s: s, tx: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.live = work
	return nil
}

// view implements store.Tx over either the live state (locking per call)
// or a transaction's private copy (already under the store lock).
type view struct {
	s  *Store
	tx *state
}

func (v *view) read() (*state, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.s.mu.RLock()
	return v.s.live, v.s.mu.RUnlock
}

func (v *view) write() (*state, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.s.mu.Lock()
	return v.s.live, v.s.mu.Unlock
}

func now() time.Time { return time.Now().UTC() }

func paginate[T any](items []T, page store.Page) []T {
	if page.Skip >= len(items) {
		return []T{}
	}
	items = items[page.Skip:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

// Projects

func (v *view) CreateProject(_ context.Context, p *models.Project) error {
	st, done := v.write()
	defer done()
	for _, existing := range st.projects {
		if existing.Name == p.Name {
			return store.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	stored := *p
	stored.Tags = append([]string(nil), p.Tags...)
	st.projects[p.ID] = stored
	return nil
}

func (v *view) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	st, done := v.read()
	defer done()
	p, ok := st.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Tags = append([]string(nil), p.Tags...)
	return &p, nil
}

func (v *view) ListProjects(_ context.Context, page store.Page) ([]models.Project, error) {
	st, done := v.read()
	defer done()
	out := make([]models.Project, 0, len(st.projects))
	for _, p := range st.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, page), nil
}

func (v *view) UpdateProject(_ context.Context, p *models.Project) error {
	st, done := v.write()
	defer done()
	if _, ok := st.projects[p.ID]; !ok {
		return store.ErrNotFound
	}
	for id, existing := range st.projects {
		if id != p.ID && existing.Name == p.Name {
			return store.ErrDuplicate
		}
	}
	t := now()
	p.UpdatedAt = &t
	stored := *p
	stored.Tags = append([]string(nil), p.Tags...)
	st.projects[p.ID] = stored
	return nil
}

func (v *view) DeleteProject(_ context.Context, id uuid.UUID) error {
	st, done := v.write()
	defer done()
	if _, ok := st.projects[id]; !ok {
		return store.ErrNotFound
	}
	for pid, p := range st.prompts {
		if p.ProjectID == id {
			deletePromptLocked(st, pid)
		}
	}
	for rid, r := range st.runs {
		if r.ProjectID == id {
			delete(st.runs, rid)
		}
	}
	delete(st.projects, id)
	return nil
}

func (v *view) AdjustPromptCount(_ context.Context, projectID uuid.UUID, delta int) error {
	st, done := v.write()
	defer done()
	p, ok := st.projects[projectID]
	if !ok {
		return store.ErrNotFound
	}
	p.PromptCount = max(p.PromptCount+delta, 0)
	st.projects[projectID] = p
	return nil
}

// Prompts

func (v *view) CreatePrompt(_ context.Context, p *models.Prompt) error {
	st, done := v.write()
	defer done()
	for _, existing := range st.prompts {
		if existing.ProjectID == p.ProjectID && existing.Name == p.Name {
			return store.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	st.prompts[p.ID] = p.Clone()
	return nil
}

func (v *view) GetPrompt(_ context.Context, id uuid.UUID) (*models.Prompt, error) {
	st, done := v.read()
	defer done()
	p, ok := st.prompts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

// LockPrompt is GetPrompt: transactions already hold the store lock exclusively.
func (v *view) LockPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	return v.GetPrompt(ctx, id)
}

func (v *view) ListPrompts(_ context.Context, f store.PromptFilter) ([]models.Prompt, error) {
	st, done := v.read()
	defer done()
	out := make([]models.Prompt, 0, len(st.prompts))
	for _, p := range st.prompts {
		if f.ProjectID != nil && p.ProjectID != *f.ProjectID {
			continue
		}
		out = append(out, *p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Page), nil
}

func (v *view) UpdatePrompt(_ context.Context, p *models.Prompt) error {
	st, done := v.write()
	defer done()
	if _, ok := st.prompts[p.ID]; !ok {
		return store.ErrNotFound
	}
	for id, existing := range st.prompts {
		if id != p.ID && existing.ProjectID == p.ProjectID && existing.Name == p.Name {
			return store.ErrDuplicate
		}
	}
	t := now()
	p.UpdatedAt = &t
	st.prompts[p.ID] = p.Clone()
	return nil
}

func (v *view) DeletePrompt(_ context.Context, id uuid.UUID) error {
	st, done := v.write()
	defer done()
	if _, ok := st.prompts[id]; !ok {
		return store.ErrNotFound
	}
	deletePromptLocked(st, id)
	return nil
}

func deletePromptLocked(st *state, id uuid.UUID) {
	delete(st.prompts, id)
	delete(st.versions, id)
	for rid, r := range st.runs {
		if r.PromptID == id {
			delete(st.runs, rid)
		}
	}
}

// Versions

func (v *view) InsertVersion(_ context.Context, pv *models.PromptVersion) error {
	st, done := v.write()
	defer done()
	if _, ok := st.prompts[pv.PromptID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range st.versions[pv.PromptID] {
		if existing.Version == pv.Version {
			return store.ErrConflict
		}
	}
	if pv.ID == uuid.Nil {
		pv.ID = uuid.New()
	}
	if pv.CreatedAt.IsZero() {
		pv.CreatedAt = now()
	}
	stored := *pv
	stored.Variables = append([]models.Variable(nil), pv.Variables...)
	st.versions[pv.PromptID] = append(st.versions[pv.PromptID], stored)
	return nil
}

func (v *view) GetVersion(_ context.Context, promptID uuid.UUID, version int) (*models.PromptVersion, error) {
	st, done := v.read()
	defer done()
	for _, pv := range st.versions[promptID] {
		if pv.Version == version {
			pv.Variables = append([]models.Variable(nil), pv.Variables...)
			return &pv, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) ListVersions(_ context.Context, promptID uuid.UUID) ([]models.PromptVersion, error) {
	st, done := v.read()
	defer done()
	out := make([]models.PromptVersion, 0, len(st.versions[promptID]))
	for _, pv := range st.versions[promptID] {
		pv.Variables = append([]models.Variable(nil), pv.Variables...)
		out = append(out, pv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// Runs

func (v *view) InsertRun(_ context.Context, r *models.Run) error {
	st, done := v.write()
	defer done()
	if _, ok := st.prompts[r.PromptID]; !ok {
		return store.ErrNotFound
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
	stored := *r
	stored.InputVariables = make(map[string]string, len(r.InputVariables))
	for k, val := range r.InputVariables {
		stored.InputVariables[k] = val
	}
	st.runs[r.ID] = stored
	return nil
}

func (v *view) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	st, done := v.read()
	defer done()
	r, ok := st.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (v *view) ListRuns(_ context.Context, promptID uuid.UUID, f store.RunFilter) ([]models.Run, error) {
	st, done := v.read()
	defer done()
	var out []models.Run
	for _, r := range st.runs {
		if r.PromptID == promptID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.LatestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, f.Page), nil
}

// Providers

func (v *view) CreateProvider(_ context.Context, p *models.Provider) error {
	st, done := v.write()
	defer done()
	for _, existing := range st.providers {
		if existing.Name == p.Name {
			return store.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	stored := *p
	stored.AvailableModels = append([]string(nil), p.AvailableModels...)
	st.providers[p.ID] = stored
	return nil
}

func (v *view) GetProvider(_ context.Context, id uuid.UUID) (*models.Provider, error) {
	st, done := v.read()
	defer done()
	p, ok := st.providers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.AvailableModels = append([]string(nil), p.AvailableModels...)
	return &p, nil
}

func (v *view) ListProviders(_ context.Context) ([]models.Provider, error) {
	st, done := v.read()
	defer done()
	out := make([]models.Provider, 0, len(st.providers))
	for _, p := range st.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *view) UpdateProvider(_ context.Context, p *models.Provider) error {
	st, done := v.write()
	defer done()
	if _, ok := st.providers[p.ID]; !ok {
		return store.ErrNotFound
	}
	for id, existing := range st.providers {
		if id != p.ID && existing.Name == p.Name {
			return store.ErrDuplicate
		}
	}
	t := now()
	p.UpdatedAt = &t
	stored := *p
	stored.AvailableModels = append([]string(nil), p.AvailableModels...)
	st.providers[p.ID] = stored
	return nil
}

func (v *view) GetDefaultProvider(_ context.Context) (*models.Provider, error) {
	st, done := v.read()
	defer done()
	for _, p := range st.providers {
		if p.IsDefault {
			p.AvailableModels = append([]string(nil), p.AvailableModels...)
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) ClearDefaultProviders(_ context.Context) error {
	st, done := v.write()
	defer done()
	for id, p := range st.providers {
		if p.IsDefault {
			p.IsDefault = false
			st.providers[id] = p
		}
	}
	return nil
}

func (v *view) MarkDefaultProvider(_ context.Context, id uuid.UUID) error {
	st, done := v.write()
	defer done()
	p, ok := st.providers[id]
	if !ok {
		return store.ErrNotFound
	}
	for oid, other := range st.providers {
		if oid != id && other.IsDefault {
			return store.ErrConflict
		}
	}
	p.IsDefault = true
	st.providers[id] = p
	return nil
}

// Settings

func (v *view) CreateSetting(_ context.Context, s *models.Setting) error {
	st, done := v.write()
	defer done()
	if _, ok := st.settings[s.Key]; ok {
		return store.ErrDuplicate
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now()
	}
	st.settings[s.Key] = *s
	return nil
}

func (v *view) GetSetting(_ context.Context, key string) (*models.Setting, error) {
	st, done := v.read()
	defer done()
	s, ok := st.settings[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (v *view) ListSettings(_ context.Context) ([]models.Setting, error) {
	st, done := v.read()
	defer done()
	out := make([]models.Setting, 0, len(st.settings))
	for _, s := range st.settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (v *view) UpdateSetting(_ context.Context, s *models.Setting) error {
	st, done := v.write()
	defer done()
	if _, ok := st.settings[s.Key]; !ok {
		return store.ErrNotFound
	}
	t := now()
	s.UpdatedAt = &t
	st.settings[s.Key] = *s
	return nil
}

func (v *view) DeleteSetting(_ context.Context, key string) error {
	st, done := v.write()
	defer done()
	if _, ok := st.settings[key]; !ok {
		return store.ErrNotFound
	}
	delete(st.settings, key)
	return nil
}
