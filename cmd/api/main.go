package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/promptforge/internal/api"
	"github.com/nikhilbhutani/promptforge/internal/api/handlers"
	"github.com/nikhilbhutani/promptforge/internal/app"
	"github.com/nikhilbhutani/promptforge/internal/config"
	"github.com/nikhilbhutani/promptforge/internal/database"
	"github.com/nikhilbhutani/promptforge/internal/queue"
	"github.com/nikhilbhutani/promptforge/internal/store"
	"github.com/nikhilbhutani/promptforge/internal/store/memory"
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

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()
	checks := map[string]handlers.Check{}

	// Postgres when DATABASE_URL is set, otherwise an in-process store.
	var st store.Store
	storage := "memory"
	if cfg.Database.URL != "" {
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
		st = postgres.New(db)
		storage = "postgres"
		checks["database"] = func(ctx context.Context) error { return database.Ping(ctx, db) }
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		st = memory.New()
	}

	var opts []app.Option
	var runQueue handlers.RunQueue
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, prompt cache disabled until it recovers", "error", err)
		}
		opts = append(opts, app.WithRedis(rdb))
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		// The worker shares state through Postgres only.
		if storage == "postgres" {
			qc := queue.NewClient(cfg.Redis)
			defer qc.Close()
			runQueue = qc
		}
	}

	svc, err := app.NewServices(cfg, st, opts...)
	if err != nil {
		slog.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(cfg, svc, runQueue, handlers.NewHealthHandler(storage, checks))
	handler := router.Setup()
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLM.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "storage", storage, "auth", cfg.Auth.JWTSecret != "")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
