// Package run executes prompts against inference backends and records the results.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/llm"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/nikhilbhutani/promptforge/internal/prompt"
	"github.com/nikhilbhutani/promptforge/internal/provider"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

const maxListLimit = 1000

// PromptSource loads a prompt as of a version; zero means the live version.
type PromptSource interface {
	AtVersion(ctx context.Context, id uuid.UUID, version int) (*models.Prompt, error)
}

type ModelResolver interface {
	Resolve(ctx context.Context, p *models.Prompt, explicit string) (*provider.Selection, error)
}

type SecretSource interface {
	GetDecrypted(ctx context.Context, key string) (string, error)
}

type ClientSource interface {
	Client(kind, apiKey, baseURL string) (llm.Provider, error)
}

type Config struct {
	TempDir        string
	MaxImageBytes  int
	RequestTimeout time.Duration
}

type Executor struct {
	prompts  PromptSource
	modelsel ModelResolver
	secrets  SecretSource
	clients  ClientSource
	store    store.Store
	cfg      Config
}

func NewExecutor(prompts PromptSource, selector ModelResolver, secrets SecretSource, clients ClientSource, st store.Store, cfg Config) *Executor {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Executor{prompts: prompts, modelsel: selector, secrets: secrets, clients: clients, store: st, cfg: cfg}
}

// Request asks for one execution of a prompt.
type Request struct {
	PromptID         uuid.UUID         `json:"prompt_id"`
	ProjectID        uuid.UUID         `json:"project_id"`
	InputVariables   map[string]string `json:"input_variables"`
	Model            string            `json:"model,omitempty"`
	StructuredOutput bool              `json:"structured_output"`
	Version          int               `json:"version,omitempty"`
}

// Execute runs the prompt and stores the result. Nothing is stored when any
// step fails, and temporary image files are removed on every path.
func (e *Executor) Execute(ctx context.Context, req Request) (*models.Run, error) {
	p, err := e.prompts.AtVersion(ctx, req.PromptID, req.Version)
	if err != nil {
		return nil, err
	}
	if req.ProjectID != uuid.Nil && req.ProjectID != p.ProjectID {
		return nil, apperr.Validation(apperr.ReasonInvalidRequest, "prompt %s does not belong to project %s", p.ID, req.ProjectID)
	}

	if req.StructuredOutput && len(p.OutputSchema) == 0 {
		return nil, apperr.Validation(apperr.ReasonInvalidRequest, "structured output requested but prompt %s has no output schema", p.ID)
	}
	imageVars := p.ImageVariables()
	for _, v := range imageVars {
		if req.InputVariables[v.Name] == "" {
			return nil, apperr.Validation(apperr.ReasonMissingRequiredVariable, "image variable %q is required", v.Name)
		}
	}
	hasImages := len(imageVars) > 0

	var atts Attachments
	defer atts.Release()
	for _, v := range imageVars {
		att, err := materialize(e.cfg.TempDir, v.Name, req.InputVariables[v.Name], e.cfg.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		atts.Add(att)
	}

	sel, err := e.modelsel.Resolve(ctx, p, req.Model)
	if err != nil {
		return nil, err
	}
	client, err := e.client(ctx, sel.Provider)
	if err != nil {
		return nil, err
	}

	text := p.Content
	if !hasImages {
		if text, err = prompt.RenderFor(p, req.InputVariables); err != nil {
			return nil, err
		}
	}
	llmReq := llm.Request{
		Model:       sel.Model,
		Prompt:      text,
		Images:      atts.Images(),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
	if req.StructuredOutput {
		llmReq.Prompt += schemaInstruction(p.OutputSchema)
		llmReq.Schema = p.OutputSchema
	}

	counter := llm.NewTokenCounter()
	resp, latency, err := e.invoke(ctx, llm.Counting(client, counter), llmReq)
	atts.Release()
	if err != nil {
		slog.Error("model invocation failed",
			"prompt_id", p.ID,
			"provider", sel.Provider.Name,
			"model", sel.Model,
			"error", fmt.Sprintf("%+v", err),
		)
		return nil, apperr.Execution(err, "model invocation failed")
	}

	output := resp.Content
	if req.StructuredOutput {
		if output, err = conform(resp.Content, p.OutputSchema); err != nil {
			slog.Warn("structured output rejected", "prompt_id", p.ID, "model", sel.Model, "error", err)
			return nil, err
		}
	}

	usage := counter.Drain()
	r := &models.Run{
		PromptID:       p.ID,
		ProjectID:      p.ProjectID,
		Version:        p.CurrentVersion,
		InputVariables: copyInputs(req.InputVariables),
		Output:         output,
		Model:          sel.Model,
		Tokens: models.TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			EmbeddingTokens:  usage.EmbeddingTokens,
			TotalTokens:      usage.TotalTokens,
		},
		LatencyMs: latency.Milliseconds(),
		Metadata: models.RunMetadata{
			StructuredOutput: req.StructuredOutput,
			HasImages:        hasImages,
			Timestamp:        time.Now().UTC(),
			Provider:         sel.Provider.Name,
			CostUSD:          llm.CalculateCost(sel.Model, usage.PromptTokens, usage.CompletionTokens),
		},
	}
	if err := e.store.InsertRun(ctx, r); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("prompt %s not found", p.ID)
		}
		return nil, apperr.Internal(err, "failed to record run")
	}

	slog.Info("run completed",
		"run_id", r.ID,
		"prompt_id", p.ID,
		"version", r.Version,
		"model", r.Model,
		"latency_ms", r.LatencyMs,
		"total_tokens", r.Tokens.TotalTokens,
	)
	return r, nil
}

// invoke times the model call alone.
func (e *Executor) invoke(ctx context.Context, client llm.Provider, req llm.Request) (*llm.Response, time.Duration, error) {
	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	return resp, time.Since(start), err
}

// client resolves the credential for p and returns a ready client.
func (e *Executor) client(ctx context.Context, p *models.Provider) (llm.Provider, error) {
	kind := provider.Kind(p)

	var apiKey string
	switch {
	case p.APIKeySetting != "":
		key, err := e.secrets.GetDecrypted(ctx, p.APIKeySetting)
		if err != nil {
			return nil, apperr.ProviderNotReady(err, "credential %q for provider %s is not available", p.APIKeySetting, p.Name)
		}
		if key == "" {
			return nil, apperr.ProviderNotReady(nil, "credential %q for provider %s is empty", p.APIKeySetting, p.Name)
		}
		apiKey = key
	case kind != llm.KindOllama:
		return nil, apperr.ProviderNotReady(nil, "provider %s has no credential configured", p.Name)
	}

	client, err := e.clients.Client(kind, apiKey, p.BaseURL)
	if err != nil {
		return nil, apperr.ProviderNotReady(err, "provider %s cannot be used", p.Name)
	}
	return client, nil
}

type ListRequest struct {
	Skip        int
	Limit       int
	LatestFirst bool
}

// List returns the runs of a prompt.
func (e *Executor) List(ctx context.Context, promptID uuid.UUID, req ListRequest) ([]models.Run, error) {
	if req.Skip < 0 {
		return nil, apperr.Validation(apperr.ReasonInvalidRequest, "skip must not be negative")
	}
	if req.Limit < 1 || req.Limit > maxListLimit {
		return nil, apperr.Validation(apperr.ReasonInvalidRequest, "limit must be between 1 and %d", maxListLimit)
	}
	if _, err := e.store.GetPrompt(ctx, promptID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("prompt %s not found", promptID)
		}
		return nil, fmt.Errorf("get prompt: %w", err)
	}

	runs, err := e.store.ListRuns(ctx, promptID, store.RunFilter{
		Page:        store.Page{Skip: req.Skip, Limit: req.Limit},
		LatestFirst: req.LatestFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (e *Executor) Get(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	r, err := e.store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func copyInputs(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
