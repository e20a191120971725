package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/promptforge/internal/app"
	"github.com/nikhilbhutani/promptforge/internal/config"
	"github.com/nikhilbhutani/promptforge/internal/database"
	"github.com/nikhilbhutani/promptforge/internal/queue"
	"github.com/nikhilbhutani/promptforge/internal/queue/workers"
	"github.com/nikhilbhutani/promptforge/internal/store/postgres"
	"github.com/nikhilbhutani/promptforge/migrations"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("worker requires DATABASE_URL")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := database.RunMigrations(ctx, db, migrations.FS); err != nil {
			slog.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	svc, err := app.NewServices(cfg, postgres.New(db), app.WithRedis(rdb))
	if err != nil {
		slog.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				slog.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	registry := queue.NewHandlersRegistry()

	runWorker := workers.NewRunWorker(svc.Runs)
	registry.RegisterFunc(queue.TypeRunExecute, runWorker.ProcessTask)

	slog.Info("starting worker", "concurrency", cfg.Worker.Concurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
