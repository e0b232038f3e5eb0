package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Database DatabaseConfig `env:",prefix=DB_"`
	Auth     AuthConfig     `env:",prefix=AUTH_"`
	Storage  StorageConfig  `env:",prefix=STORAGE_"`
	App      AppConfig      `env:",prefix=APP_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `env:"HOST,default=0.0.0.0"`
	Port         string `env:"PORT,default=8000" validate:"required"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30" validate:"gte=1"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30" validate:"gte=1"` // seconds
	MaxUploadMB  int64  `env:"MAX_UPLOAD_MB,default=10" validate:"gte=1"`
}

// DatabaseConfig selects Postgres when URL is set, SQLite otherwise
type DatabaseConfig struct {
	URL      string `env:"URL"`
	Path     string `env:"PATH,default=volunteer_portal.db"`
	MaxConns int    `env:"MAX_CONNS,default=25" validate:"gte=1"`
	MinConns int    `env:"MIN_CONNS,default=5" validate:"gte=0"`
}

// AuthConfig holds token and seeding configuration
type AuthConfig struct {
	JWTSecret          string        `env:"JWT_SECRET"`
	TokenTTL           time.Duration `env:"TOKEN_TTL,default=24h" validate:"gt=0"`
	VerificationSecret string        `env:"VERIFICATION_SECRET"`
	AdminName          string        `env:"ADMIN_NAME,default=Administrator"`
	AdminUsername      string        `env:"ADMIN_USERNAME,default=admin"`
	AdminEmail         string        `env:"ADMIN_EMAIL,default=admin@volunteer.local" validate:"omitempty,email"`
	AdminPassword      string        `env:"ADMIN_PASSWORD,default=admin123"`
}

// StorageConfig selects where proof evidence and certificate artifacts live
type StorageConfig struct {
	Driver          string `env:"DRIVER,default=local" validate:"oneof=local s3"`
	Dir             string `env:"DIR,default=uploads"`
	Bucket          string `env:"BUCKET"`
	Prefix          string `env:"PREFIX"`
	Region          string `env:"REGION,default=auto"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment     string `env:"ENVIRONMENT,default=development"`
	LogLevel        string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	EnforceCapacity bool   `env:"ENFORCE_CAPACITY,default=true"`
	CertWorkers     int    `env:"CERT_WORKERS,default=2" validate:"gte=0"`
	BaseURL         string `env:"BASE_URL,default=http://localhost:8000"`
}

const devSecret = "dev-secret-change-in-production"

var validate = validator.New()

// Load reads .env (if present) and then the process environment
func Load(ctx context.Context) (*Config, error) {
	// Try root and parent directories for flexibility
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith processes configuration from the given lookuper
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if cfg.App.IsDevelopment() {
		if cfg.Auth.JWTSecret == "" {
			cfg.Auth.JWTSecret = devSecret
		}
		if cfg.Auth.VerificationSecret == "" {
			cfg.Auth.VerificationSecret = devSecret
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("config validation failed: AUTH_JWT_SECRET is required in %s", cfg.App.Environment)
	}
	if cfg.Auth.VerificationSecret == "" {
		return fmt.Errorf("config validation failed: AUTH_VERIFICATION_SECRET is required in %s", cfg.App.Environment)
	}
	if cfg.Storage.Driver == "s3" && cfg.Storage.Bucket == "" {
		return fmt.Errorf("config validation failed: STORAGE_BUCKET is required for the s3 driver")
	}
	return nil
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsPostgres reports whether a Postgres DSN was configured
func (c *DatabaseConfig) IsPostgres() bool {
	return c.URL != ""
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
