package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Secrets  SecretsConfig
	Worker   WorkerConfig
	LogLevel string
}

type ServerConfig struct {
	Host            string
	Port            int
	RateLimitRPS    float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Migrate  bool
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	Enabled        bool
	PromptCacheTTL time.Duration
}

type AuthConfig struct {
	JWTSecret string // empty disables authentication
}

type LLMConfig struct {
	MaxRetries     int
	RequestTimeout time.Duration
	TempDir        string
	MaxImageBytes  int
}

type SecretsConfig struct {
	Key string
}

type WorkerConfig struct {
	Concurrency int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	shutdown, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	migrate, err := getEnvBool("DB_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIGRATE: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	redisEnabled, err := getEnvBool("REDIS_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_ENABLED: %w", err)
	}

	cacheTTL, err := getEnvDuration("PROMPT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid PROMPT_CACHE_TTL: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	timeout, err := getEnvDuration("LLM_REQUEST_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_REQUEST_TIMEOUT: %w", err)
	}

	maxImage, err := getEnvInt("LLM_MAX_IMAGE_BYTES", 20<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_IMAGE_BYTES: %w", err)
	}

	concurrency, err := getEnvInt("WORKER_CONCURRENCY", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            port,
			RateLimitRPS:    rps,
			RateLimitBurst:  burst,
			ShutdownTimeout: shutdown,
			CORSOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
			Migrate:  migrate,
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             redisDB,
			Enabled:        redisEnabled,
			PromptCacheTTL: cacheTTL,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			MaxRetries:     maxRetries,
			RequestTimeout: timeout,
			TempDir:        getEnv("LLM_TEMP_DIR", os.TempDir()),
			MaxImageBytes:  maxImage,
		},
		Secrets: SecretsConfig{
			Key: getEnv("SECRETS_KEY", ""),
		},
		Worker: WorkerConfig{
			Concurrency: concurrency,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SlogLevel parses LOG_LEVEL, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (c *Config) Validate() error {
	var missing []string
	if c.Secrets.Key == "" {
		missing = append(missing, "SECRETS_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.LLM.MaxImageBytes <= 0 {
		return fmt.Errorf("LLM_MAX_IMAGE_BYTES must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
