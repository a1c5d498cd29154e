package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	SandboxPath string
	RedisURL    string
	NATSURL     string

	SandboxWorkers   int
	SandboxQueueSize int
	SandboxQueueWait time.Duration
	QueryTimeout     time.Duration
	MaxResultRows    int

	BurstLimit          int
	SustainedStudent    int
	SustainedInstructor int
	DailyStudent        int
	DailyInstructor     int

	DifficultyWindow int
	PromoteThreshold float64
	DemoteThreshold  float64

	ExpectedCacheTTL time.Duration
	EventBufferSize  int

	AIProvider   string
	OpenAIAPIKey string
	OpenAIModel  string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SQLQUEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "SQLQuest API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.url", "sqlite://sqlquest.db")
	v.SetDefault("sandbox.path", "inventory.db")
	v.SetDefault("sandbox.workers", 4)
	v.SetDefault("sandbox.queue_size", 16)
	v.SetDefault("sandbox.queue_wait", "2s")
	v.SetDefault("query.timeout", "3s")
	v.SetDefault("query.max_rows", 500)
	v.SetDefault("rate.burst", 3)
	v.SetDefault("rate.sustained_student", 10)
	v.SetDefault("rate.sustained_instructor", 20)
	v.SetDefault("rate.daily_student", 100)
	v.SetDefault("rate.daily_instructor", 200)
	v.SetDefault("difficulty.window", 5)
	v.SetDefault("difficulty.promote", 0.8)
	v.SetDefault("difficulty.demote", 0.3)
	v.SetDefault("cache.expected_ttl", "10m")
	v.SetDefault("events.buffer", 256)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("openai.model", "gpt-4o-mini")

	queueWait, err := parseDuration(v, "sandbox.queue_wait")
	if err != nil {
		return Config{}, err
	}

	queryTimeout, err := parseDuration(v, "query.timeout")
	if err != nil {
		return Config{}, err
	}

	cacheTTL, err := parseDuration(v, "cache.expected_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName: v.GetString("app.name"),
		AppEnv:  v.GetString("app.env"),
		AppPort: v.GetString("app.port"),

		DatabaseURL: v.GetString("database.url"),
		SandboxPath: v.GetString("sandbox.path"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),

		SandboxWorkers:   v.GetInt("sandbox.workers"),
		SandboxQueueSize: v.GetInt("sandbox.queue_size"),
		SandboxQueueWait: queueWait,
		QueryTimeout:     queryTimeout,
		MaxResultRows:    v.GetInt("query.max_rows"),

		BurstLimit:          v.GetInt("rate.burst"),
		SustainedStudent:    v.GetInt("rate.sustained_student"),
		SustainedInstructor: v.GetInt("rate.sustained_instructor"),
		DailyStudent:        v.GetInt("rate.daily_student"),
		DailyInstructor:     v.GetInt("rate.daily_instructor"),

		DifficultyWindow: v.GetInt("difficulty.window"),
		PromoteThreshold: v.GetFloat64("difficulty.promote"),
		DemoteThreshold:  v.GetFloat64("difficulty.demote"),

		ExpectedCacheTTL: cacheTTL,
		EventBufferSize:  v.GetInt("events.buffer"),

		AIProvider:   strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey: v.GetString("openai_api_key"),
		OpenAIModel:  v.GetString("openai.model"),
	}

	if cfg.SandboxPath == "" {
		return Config{}, fmt.Errorf("sandbox database path must be provided")
	}

	if cfg.SandboxWorkers <= 0 {
		cfg.SandboxWorkers = 4
	}

	if cfg.MaxResultRows <= 0 {
		cfg.MaxResultRows = 500
	}

	if cfg.DifficultyWindow <= 0 {
		cfg.DifficultyWindow = 5
	}

	if cfg.PromoteThreshold <= cfg.DemoteThreshold {
		return Config{}, fmt.Errorf("difficulty promote threshold must exceed demote threshold")
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return d, nil
}
