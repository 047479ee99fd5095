// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	AppEnv   string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreBackend     string `mapstructure:"STORE_BACKEND"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PGHost           string `mapstructure:"PG_HOST"`
	PGPort           string `mapstructure:"PG_PORT"`
	PGDatabase       string `mapstructure:"PG_DATABASE"`

	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisDB            int    `mapstructure:"REDIS_DB"`
	RedisChannelPrefix string `mapstructure:"REDIS_CHANNEL_PREFIX"`

	FirebaseProjectID            string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`

	SuperAdminEmail    string `mapstructure:"SUPER_ADMIN_EMAIL"`
	MaxParticipants    int    `mapstructure:"MAX_PARTICIPANTS"`
	MaxGuestsPerUser   int    `mapstructure:"MAX_GUESTS_PER_USER"`
	TokenExpireTime    string `mapstructure:"TOKEN_EXPIRE_TIME"`
	AuthPrivateKeyPath string `mapstructure:"AUTH_PRIVATE_KEY_PATH"`
	AuthPublicKeyPath  string `mapstructure:"AUTH_PUBLIC_KEY_PATH"`
	AllowedOrigins     string `mapstructure:"ALLOWED_ORIGINS"`
}

var defaults = map[string]interface{}{
	"PORT":                 "8080",
	"APP_ENV":              "dev",
	"LOG_LEVEL":            "info",
	"STORE_BACKEND":        BackendMemory,
	"PG_HOST":              "localhost",
	"PG_PORT":              "5432",
	"PG_DATABASE":          "pallavolo",
	"REDIS_DB":             0,
	"REDIS_CHANNEL_PREFIX": "pallavolo:match:",
	"MAX_PARTICIPANTS":     14,
	"MAX_GUESTS_PER_USER":  3,
	"TOKEN_EXPIRE_TIME":    "72h",
	"ALLOWED_ORIGINS":      "http://localhost:5173",
}

var unsetKeys = []string{
	"DATABASE_URL", "POSTGRES_USER", "POSTGRES_PASSWORD",
	"REDIS_ADDR", "FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS",
	"SUPER_ADMIN_EMAIL", "AUTH_PRIVATE_KEY_PATH", "AUTH_PUBLIC_KEY_PATH",
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, def := range defaults {
		v.SetDefault(key, def)
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	for _, key := range unsetKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres, BackendFirestore:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.MaxParticipants < 1 {
		return errors.New("MAX_PARTICIPANTS must be positive")
	}
	if c.MaxGuestsPerUser < 0 {
		return errors.New("MAX_GUESTS_PER_USER must not be negative")
	}
	if (c.AuthPrivateKeyPath == "") != (c.AuthPublicKeyPath == "") {
		return errors.New("AUTH_PRIVATE_KEY_PATH and AUTH_PUBLIC_KEY_PATH must be set together")
	}
	return nil
}

// PostgresURL prefers DATABASE_URL and otherwise assembles one from parts.
func (c *Config) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.PostgresUser, c.PostgresPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}
