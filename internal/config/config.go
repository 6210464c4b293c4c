// Package config loads application settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the service reads at startup.
type Config struct {
	AppPort  string
	LogMode  string
	Database DatabaseConfig

	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	UploadDir      string
	PublicBaseURL  string
	MaxUploadBytes int

	RabbitMQURL      string
	CORSAllowOrigins string
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "ecofinds.db")
	v.SetDefault("JWT_SECRET", "jwt-secret-key-here")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("MAX_UPLOAD_BYTES", 16*1024*1024)
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
}

// Load reads an optional .env file, then the process environment, on top of
// defaults.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppPort: v.GetString("APP_PORT"),
		LogMode: v.GetString("LOG_MODE"),
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:    v.GetString("DATABASE_DSN"),
		},
		JWTSecret:        v.GetString("JWT_SECRET"),
		JWTTTL:           v.GetDuration("JWT_TTL"),
		BcryptCost:       v.GetInt("BCRYPT_COST"),
		UploadDir:        v.GetString("UPLOAD_DIR"),
		PublicBaseURL:    strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		MaxUploadBytes:   v.GetInt("MAX_UPLOAD_BYTES"),
		RabbitMQURL:      v.GetString("RABBITMQ_URL"),
		CORSAllowOrigins: v.GetString("CORS_ALLOW_ORIGINS"),
	}

	if !strings.HasPrefix(cfg.AppPort, ":") && !strings.Contains(cfg.AppPort, ":") {
		cfg.AppPort = ":" + cfg.AppPort
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is empty")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}
