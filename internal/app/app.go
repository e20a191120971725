// Package app builds the service graph shared by the API server and the worker.
package app

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/promptforge/internal/cache"
	"github.com/nikhilbhutani/promptforge/internal/config"
	"github.com/nikhilbhutani/promptforge/internal/llm"
	"github.com/nikhilbhutani/promptforge/internal/project"
	"github.com/nikhilbhutani/promptforge/internal/prompt"
	"github.com/nikhilbhutani/promptforge/internal/provider"
	"github.com/nikhilbhutani/promptforge/internal/run"
	"github.com/nikhilbhutani/promptforge/internal/settings"
	"github.com/nikhilbhutani/promptforge/internal/store"
)

const promptCachePrefix = "promptforge:"

type Services struct {
	Projects  *project.Service
	Prompts   *prompt.Service
	Providers *provider.Service
	Settings  *settings.Service
	Runs      *run.Executor
}

type options struct {
	redis   *redis.Client
	clients run.ClientSource
}

type Option func(*options)

// WithRedis enables the prompt read cache.
func WithRedis(rdb *redis.Client) Option {
	return func(o *options) { o.redis = rdb }
}

// WithClients replaces the model client registry.
func WithClients(c run.ClientSource) Option {
	return func(o *options) { o.clients = c }
}

func NewServices(cfg *config.Config, st store.Store, opts ...Option) (*Services, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clients == nil {
		o.clients = llm.NewRegistry(cfg.LLM.MaxRetries)
	}

	box, err := settings.NewBox(cfg.Secrets.Key)
	if err != nil {
		return nil, fmt.Errorf("create settings box: %w", err)
	}

	var promptCache *cache.Cache
	if o.redis != nil {
		promptCache = cache.NewCache(o.redis, promptCachePrefix, cfg.Redis.PromptCacheTTL)
	}

	prompts := prompt.NewService(st, promptCache)
	providers := provider.NewService(st)
	secrets := settings.NewService(st, box)

	return &Services{
		Projects:  project.NewService(st, prompts),
		Prompts:   prompts,
		Providers: providers,
		Settings:  secrets,
		Runs: run.NewExecutor(prompts, providers, secrets, o.clients, st, run.Config{
			TempDir:        cfg.LLM.TempDir,
			MaxImageBytes:  cfg.LLM.MaxImageBytes,
			RequestTimeout: cfg.LLM.RequestTimeout,
		}),
	}, nil
}
