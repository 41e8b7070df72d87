// Package config loads binary configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Source kinds accepted in SOURCE_KIND.
const (
	SourceEmbedded = "embedded"
	SourceHTTP     = "http"
	SourceFile     = "file"
	SourceMongo    = "mongo"
	SourcePostgres = "postgres"
)

type Log struct {
	Level      string `envconfig:"LEVEL" default:"info"`
	Format     string `envconfig:"FORMAT" default:"text"`
	Prefix     string `envconfig:"PREFIX" default:"pinbed"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
}

type Source struct {
	Kind        string        `envconfig:"KIND" default:"embedded"`
	URL         string        `envconfig:"URL"`
	Token       string        `envconfig:"TOKEN"`
	File        string        `envconfig:"FILE"`
	LoadTimeout time.Duration `envconfig:"LOAD_TIMEOUT" default:"30s"`
}

type Mongo struct {
	URI        string `envconfig:"URI" default:"mongodb://localhost:27017"`
	DBName     string `envconfig:"DB_NAME" default:"marketplace"`
	Collection string `envconfig:"COLLECTION" default:"pincodes"`
}

type Cache struct {
	Dir     string        `envconfig:"DIR" default:"./pinbed-cache"`
	TTL     time.Duration `envconfig:"TTL" default:"24h"`
	Cleanup time.Duration `envconfig:"CLEANUP" default:"48h"`
	Store   bool          `envconfig:"STORE" default:"true"`
}

type CORS struct {
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:8081"`
	MaxAge         int      `envconfig:"MAX_AGE" default:"86400"`
}

// App is the full binary configuration.
type App struct {
	Env         string `envconfig:"ENV" default:"development"`
	Port        int    `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	Log         Log    `envconfig:"LOG"`
	Source      Source `envconfig:"SOURCE"`
	Mongo       Mongo  `envconfig:"MONGO"`
	Cache       Cache  `envconfig:"CACHE"`
	CORS        CORS   `envconfig:"CORS"`
}

// Load reads the first .env file found among paths (or ./.env when none are
// given) and then processes the environment. A missing .env is not an error.
func Load(envFilePaths ...string) (*App, error) {
	logger := slog.Default()

	if len(envFilePaths) == 0 {
		envFilePaths = []string{".env"}
	}
	for _, path := range envFilePaths {
		found, err := FindEnvFile(path)
		if err != nil {
			logger.Debug("environment file not found", "path", path)
			continue
		}
		if err := godotenv.Load(found); err != nil {
			logger.Warn("failed to load environment file", "path", found, "error", err)
			continue
		}
		logger.Info("loaded environment file", "path", found)
		break
	}
	return loadFromEnv()
}

func loadFromEnv() (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	cfg.Source.Kind = strings.ToLower(strings.TrimSpace(cfg.Source.Kind))
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	slog.Default().Info("app config loaded",
		"env", cfg.Env,
		"port", cfg.Port,
		"source", cfg.Source.Kind,
		"source_url", cfg.Source.URL,
		"source_token", maskValue(cfg.Source.Token),
		"database_url", maskValue(cfg.DatabaseURL),
		"cache_dir", cfg.Cache.Dir,
		"cache_ttl", cfg.Cache.TTL,
	)
	return &cfg, nil
}

func (c *App) validate() error {
	switch c.Source.Kind {
	case SourceEmbedded:
	case SourceHTTP:
		if c.Source.URL == "" {
			return fmt.Errorf("SOURCE_URL is required for source %q", c.Source.Kind)
		}
	case SourceFile:
		if c.Source.File == "" {
			return fmt.Errorf("SOURCE_FILE is required for source %q", c.Source.Kind)
		}
	case SourceMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required for source %q", c.Source.Kind)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for source %q", c.Source.Kind)
		}
	default:
		return fmt.Errorf("unknown SOURCE_KIND %q", c.Source.Kind)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
}

// FindEnvFile looks for name in the working directory and its parents.
func FindEnvFile(name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", name)
		}
		dir = parent
	}
}

func maskValue(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 6 {
		return "****"
	}
	return v[:3] + "****" + v[len(v)-3:]
}
