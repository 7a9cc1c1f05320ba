package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // Postgres; falls back to SQLite when empty
	SQLitePath  string
	RedisURL    string

	// Broadcast transport
	KafkaBrokers []string
	KafkaTopic   string

	// Generation backend
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	// Bootstrap
	GeneralChannel string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/teamchat.db"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "teamchat.events"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    os.Getenv("GEMINI_MODEL"),
		GeminiBaseURL:  os.Getenv("GEMINI_BASE_URL"),
		GeneralChannel: getEnv("GENERAL_CHANNEL", "general"),
	}

	// Parse brokers (comma-separated host:port)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, entry := range strings.Split(brokers, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, entry)
			}
		}
	}

	// In production, require the shared backing services
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.GeminiAPIKey == "" {
			panic("GEMINI_API_KEY is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
