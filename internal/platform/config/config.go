// Package config loads application configuration from environment variables.
// All variables use the SPORT_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Cache        CacheConfig
	Telegram     TelegramConfig
	Alfa         AlfaConfig
	Club         ClubConfig
	Log          LogConfig
	ResourcesDir string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port      int
	Host      string
	WebSocket bool // expose the /ws chat endpoint
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL
// disables event persistence.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings. An empty URL keeps quiz
// sessions in process memory.
type CacheConfig struct {
	URL string
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken     string
	StatusChatID string
}

// AlfaConfig holds AlfaCRM API settings.
type AlfaConfig struct {
	BaseURL string
	Email   string
	APIKey  string
}

// ClubConfig holds club-specific links shown to users.
type ClubConfig struct {
	CoordinatorUsername string
	SwimmingBaseURL     string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with SPORT_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:      envInt("SPORT_SERVER_PORT", 8080),
			Host:      envStr("SPORT_SERVER_HOST", "0.0.0.0"),
			WebSocket: envBool("SPORT_WEBSOCKET_ENABLED", true),
		},
		Database: DatabaseConfig{
			URL:      envStr("SPORT_DATABASE_URL", ""),
			MaxConns: envInt("SPORT_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("SPORT_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL: envStr("SPORT_CACHE_URL", ""),
		},
		Telegram: TelegramConfig{
			BotToken:     envStr("SPORT_TELEGRAM_BOT_TOKEN", ""),
			StatusChatID: envStr("SPORT_STATUS_CHAT_ID", ""),
		},
		Alfa: AlfaConfig{
			BaseURL: envStr("SPORT_ALFA_BASE_URL", ""),
			Email:   envStr("SPORT_ALFA_EMAIL", ""),
			APIKey:  envStr("SPORT_ALFA_API_KEY", ""),
		},
		Club: ClubConfig{
			CoordinatorUsername: envStr("SPORT_COORDINATOR_USERNAME", ""),
			SwimmingBaseURL:     envStr("SPORT_SWIMMING_BASE_URL", ""),
		},
		Log: LogConfig{
			Level:  envStr("SPORT_LOG_LEVEL", "info"),
			Format: envStr("SPORT_LOG_FORMAT", "json"),
		},
		ResourcesDir: envStr("SPORT_RESOURCES_DIR", "./resources"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("SPORT_TELEGRAM_BOT_TOKEN is required")
	}
	if c.Alfa.BaseURL == "" {
		return fmt.Errorf("SPORT_ALFA_BASE_URL is required")
	}
	if c.Alfa.Email == "" {
		return fmt.Errorf("SPORT_ALFA_EMAIL is required")
	}
	if c.Alfa.APIKey == "" {
		return fmt.Errorf("SPORT_ALFA_API_KEY is required")
	}
	if c.Club.CoordinatorUsername == "" {
		return fmt.Errorf("SPORT_COORDINATOR_USERNAME is required")
	}
	if c.Club.SwimmingBaseURL == "" {
		return fmt.Errorf("SPORT_SWIMMING_BASE_URL is required")
	}

	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
