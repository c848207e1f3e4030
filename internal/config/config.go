package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the auth server
type Config struct {
	// Server Configuration
	Server ServerConfig

	// Database Configuration
	Database DatabaseConfig

	// Token Configuration
	Tokens TokenConfig

	// Google Configuration (federated sign-in)
	Google GoogleConfig

	// Logging Configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	ListenAddr  string   `env:"AUTH_LISTEN_ADDR, default=:8090" validate:"required"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=http://localhost:5173" validate:"dive,required"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL, default=careerpath-auth.sqlite" validate:"required"`
}

// TokenConfig holds signing and lifetime settings
type TokenConfig struct {
	// JWTSecret overrides the secret persisted in the database
	JWTSecret       string        `env:"JWT_SECRET" validate:"omitempty,min=32"`
	IDTokenTTL      time.Duration `env:"ID_TOKEN_TTL, default=1h" validate:"gte=1m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL, default=720h" validate:"gtefield=IDTokenTTL"`
}

// GoogleConfig holds the endpoint used to verify Google access tokens
type GoogleConfig struct {
	UserInfoURL string `env:"GOOGLE_USERINFO_URL, default=https://www.googleapis.com/oauth2/v2/userinfo" validate:"required,url"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL, default=info" validate:"oneof=trace debug info warn warning error fatal disabled off"`
	Format string `env:"LOG_FORMAT, default=json" validate:"oneof=json console"` // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	return load(envconfig.OsLookuper())
}

func load(lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
