package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const defaultSecret = "a-very-secret-key"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Session    SessionConfig    `yaml:"session"`
	Auth       AuthConfig       `yaml:"auth"`
	Google     GoogleConfig     `yaml:"google"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Moderation ModerationConfig `yaml:"moderation"`
	Storage    StorageConfig    `yaml:"storage"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	CORS       CORSConfig       `yaml:"cors"`

	location *time.Location
}

type ServerConfig struct {
	Port     string `yaml:"port"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig selects the store by URL scheme: postgres://, postgresql://
// or sqlite:<path>.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	GormLevel string `yaml:"gorm_level"`
}

type SessionConfig struct {
	Secret string `yaml:"secret"`
	MaxAge int    `yaml:"max_age"`
	Secure bool   `yaml:"secure"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

type PromptConfig struct {
	Count int      `yaml:"count"`
	Pool  []string `yaml:"pool"`
}

type ModerationConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	UploadDir            string `yaml:"upload_dir"`
	URLPrefix            string `yaml:"url_prefix"`
	MaxImageBytes        int64  `yaml:"max_image_bytes"`
	DriveFolderID        string `yaml:"drive_folder_id"`
	DriveCredentialsFile string `yaml:"drive_credentials_file"`
}

type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

type RateLimitConfig struct {
	LoginPerSecond float64 `yaml:"login_per_second"`
	LoginBurst     int     `yaml:"login_burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", Timezone: "UTC"},
		Database: DatabaseConfig{URL: "sqlite:app.db"},
		Log:      LogConfig{Level: "info", Format: "json", GormLevel: "warn"},
		Session:  SessionConfig{Secret: defaultSecret, MaxAge: 3600 * 8},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Prompt:   PromptConfig{Count: 3},
		Moderation: ModerationConfig{
			Endpoint: "https://api.openai.com/v1/moderations",
			Model:    "omni-moderation-latest",
			Timeout:  5 * time.Second,
		},
		Storage: StorageConfig{
			UploadDir:     "uploads",
			URLPrefix:     "/uploads/",
			MaxImageBytes: 2 << 20,
		},
		Scheduler: SchedulerConfig{Spec: "0 0 * * *"},
		RateLimit: RateLimitConfig{LoginPerSecond: 5, LoginBurst: 10},
		CORS:      CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// Load reads the YAML file at path on top of the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Port, "PORT")
	set(&c.Server.Timezone, "TZ_NAME")
	set(&c.Database.URL, "DATABASE_URL")
	set(&c.Session.Secret, "SECRET_KEY")
	set(&c.Auth.JWTSecret, "JWT_SECRET")
	set(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	set(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	set(&c.Google.RedirectURL, "GOOGLE_REDIRECT_URL")
	set(&c.Moderation.APIKey, "MODERATION_API_KEY")
	set(&c.Storage.DriveFolderID, "GOOGLE_DRIVE_FOLDER_ID")
	set(&c.Storage.DriveCredentialsFile, "DRIVE_JSON")

	// Keyword DSN from discrete variables, as older deployments set them.
	if getenv("DATABASE_URL") == "" && getenv("DB_HOST") != "" {
		c.Database.URL = fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			getenv("DB_HOST"),
			getenv("DB_USER"),
			getenv("DB_PASSWORD"),
			getenv("DB_NAME"))
	}
}

func (c *Config) Validate() error {
	var errs []error

	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", c.Server.Timezone, err))
	} else {
		c.location = loc
	}
	if c.Prompt.Count <= 0 {
		errs = append(errs, fmt.Errorf("prompt.count must be positive, got %d", c.Prompt.Count))
	}
	if len(c.Prompt.Pool) > 0 {
		c.Prompt.Pool = uniqueEmojis(c.Prompt.Pool)
		if len(c.Prompt.Pool) < c.Prompt.Count {
			errs = append(errs, fmt.Errorf("prompt.pool has %d distinct emoji, need at least %d", len(c.Prompt.Pool), c.Prompt.Count))
		}
	}
	if _, _, err := ParseDatabaseURL(c.Database.URL); err != nil {
		errs = append(errs, err)
	}
	if c.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret must not be empty"))
	}
	if c.Storage.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("storage.max_image_bytes must be positive"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	return errors.Join(errs...)
}

// uniqueEmojis trims pool entries and drops blanks and repeats, keeping order.
func uniqueEmojis(pool []string) []string {
	seen := make(map[string]bool, len(pool))
	out := make([]string, 0, len(pool))
	for _, e := range pool {
		e = strings.TrimSpace(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// Location is the zone that defines calendar days for prompts and streaks.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// UsesDefaultSecret reports whether the session secret was left at its
// development value.
func (c *Config) UsesDefaultSecret() bool {
	return c.Session.Secret == defaultSecret
}

// JWTKey falls back to the session secret when no dedicated key is set.
func (c *Config) JWTKey() []byte {
	if c.Auth.JWTSecret != "" {
		return []byte(c.Auth.JWTSecret)
	}
	return []byte(c.Session.Secret)
}
