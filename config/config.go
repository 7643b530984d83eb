// Package config reads the settings from the environment and an optional .env file
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

var (
	ErrNoUser     = errors.New("user id is not configured and cannot be read from the API token")
	ErrNoChatID   = errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	ErrBadTimeout = errors.New("GROUPS_API_TIMEOUT must be positive")
)

type Config struct {
	APIBaseURL        string        `env:"GROUPS_API_BASE_URL,required"`
	APIToken          string        `env:"GROUPS_API_TOKEN"`
	UserID            string        `env:"GROUPS_USER_ID"`
	APITimeout        time.Duration `env:"GROUPS_API_TIMEOUT" envDefault:"10s"`
	DatabasePath      string        `env:"DATABASE_PATH" envDefault:"data.sqlite"`
	CourseCatalogPath string        `env:"COURSE_CATALOG_PATH"`
	TelegramToken     string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID    int64         `env:"TELEGRAM_CHAT_ID"`
	WatchSchedule     string        `env:"WATCH_SCHEDULE" envDefault:"@every 5m"`
}

// Load reads .env files (if present) into the environment and parses it.
// Missing .env files are not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Warn("config: Failed to load .env file", "error", err)
	} else {
		slog.Debug("config: Environment variables loaded from .env file")
	}

	return FromEnv()
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.UserID == "" && cfg.APIToken != "" {
		userID, err := userFromToken(cfg.APIToken)
		if err != nil {
			slog.Warn("config: Cannot read user id from API token", "error", err)
		}
		cfg.UserID = userID
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	slog.Debug("config: Loaded", "base_url", cfg.APIBaseURL, "user_id", cfg.UserID,
		"database_path", cfg.DatabasePath, "telegram", cfg.TelegramEnabled())
	return cfg, nil
}

func (c Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

func (c Config) validate() error {
	if c.UserID == "" {
		return ErrNoUser
	}
	if c.APITimeout <= 0 {
		return ErrBadTimeout
	}
	if c.TelegramEnabled() && c.TelegramChatID == 0 {
		return ErrNoChatID
	}
	return nil
}

type tokenClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// userFromToken reads the user id claim of the bearer token. The signature is
// not verified: the token is only checked by the groups API.
func userFromToken(token string) (string, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.UserID != "" {
		return claims.UserID, nil
	}
	return claims.Subject, nil
}
