// Package config builds the process-wide configuration once at start-up.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendLocal      = "local"
	BackendCloudinary = "cloudinary"

	devSecret = "dev-insecure-secret-change"
)

// Config is constructed once and passed by pointer to the auth gate, the router and
// the storage layer.
type Config struct {
	Env     string
	Port    string
	GinMode string
	// LogLevel is one of dbg, inf, wrn, err or a longer alias (debug, info, warn, error).
	LogLevel string

	Database DatabaseConfig
	Auth     AuthConfig
	Images   ImageConfig

	CORSOrigins []string

	// AdminUsername/AdminPassword seed an initial account when both are set.
	AdminUsername string
	AdminPassword string
}

type DatabaseConfig struct {
	Driver       string
	DSN          string
	AutoMigrate  bool
	MaxOpenConns int
	MaxIdleConns int
}

type AuthConfig struct {
	JWTSecret  []byte
	Issuer     string
	TokenTTL   time.Duration
	BcryptCost int
}

type ImageConfig struct {
	Backend          string
	UploadDir        string
	PublicPath       string
	CloudinaryURL    string
	CloudinaryFolder string
	MaxUploadBytes   int64
	MaxDimension     int
}

// knownLogLevels are the names structlog.ParseLevel accepts.
var knownLogLevels = map[string]bool{
	"dbg": true, "debug": true, "trace": true,
	"inf": true, "info": true, "notice": true,
	"wrn": true, "warn": true, "warning": true,
	"err": true, "error": true, "fatal": true, "crit": true, "critical": true,
	"alert": true, "emerg": true, "emergency": true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("port", "8081")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("log_level", "inf")
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_dsn", "")
	v.SetDefault("db_auto_migrate", true)
	v.SetDefault("db_max_open_conns", 10)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "quotations")
	v.SetDefault("token_ttl", "60m")
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("cors_origins", "http://localhost:4200,http://127.0.0.1:4200")
	v.SetDefault("image_backend", BackendLocal)
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("upload_public_path", "/uploads")
	v.SetDefault("cloudinary_url", "")
	v.SetDefault("cloudinary_folder", "quotation/items")
	v.SetDefault("max_upload_bytes", 5*1024*1024)
	v.SetDefault("max_image_dimension", 1600)
	v.SetDefault("admin_username", "")
	v.SetDefault("admin_password", "")
}

// Load reads ./.env (never overriding variables already set), an optional
// config.yaml in the working directory, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper maps an already populated viper instance onto Config and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:      v.GetString("app_env"),
		Port:     v.GetString("port"),
		GinMode:  v.GetString("gin_mode"),
		LogLevel: strings.ToLower(v.GetString("log_level")),
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("db_driver")),
			DSN:          v.GetString("db_dsn"),
			AutoMigrate:  v.GetBool("db_auto_migrate"),
			MaxOpenConns: v.GetInt("db_max_open_conns"),
			MaxIdleConns: v.GetInt("db_max_idle_conns"),
		},
		Auth: AuthConfig{
			JWTSecret:  []byte(v.GetString("jwt_secret")),
			Issuer:     v.GetString("jwt_issuer"),
			TokenTTL:   v.GetDuration("token_ttl"),
			BcryptCost: v.GetInt("bcrypt_cost"),
		},
		Images: ImageConfig{
			Backend:          strings.ToLower(v.GetString("image_backend")),
			UploadDir:        v.GetString("upload_dir"),
			PublicPath:       v.GetString("upload_public_path"),
			CloudinaryURL:    v.GetString("cloudinary_url"),
			CloudinaryFolder: v.GetString("cloudinary_folder"),
			MaxUploadBytes:   v.GetInt64("max_upload_bytes"),
			MaxDimension:     v.GetInt("max_image_dimension"),
		},
		CORSOrigins:   splitList(v.GetString("cors_origins")),
		AdminUsername: v.GetString("admin_username"),
		AdminPassword: v.GetString("admin_password"),
	}
	if len(cfg.Auth.JWTSecret) == 0 && cfg.IsDevelopment() {
		cfg.Auth.JWTSecret = []byte(devSecret)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether insecure fallbacks are acceptable.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "test"
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case "postgres", "sqlite", "mysql":
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER %q is not one of postgres, sqlite, mysql", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "DB_DSN is not set")
	}
	if len(c.Auth.JWTSecret) < 16 {
		problems = append(problems, "JWT_SECRET must be at least 16 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, "TOKEN_TTL must be positive")
	}
	switch c.Images.Backend {
	case BackendLocal:
		if c.Images.UploadDir == "" {
			problems = append(problems, "UPLOAD_DIR is required for the local image backend")
		}
	case BackendCloudinary:
		if c.Images.CloudinaryURL == "" {
			problems = append(problems, "CLOUDINARY_URL is required for the cloudinary image backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("IMAGE_BACKEND %q is not one of local, cloudinary", c.Images.Backend))
	}
	if !knownLogLevels[c.LogLevel] {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not one of dbg, inf, wrn, err", c.LogLevel))
	}
	if c.Images.MaxUploadBytes <= 0 {
		problems = append(problems, "MAX_UPLOAD_BYTES must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
