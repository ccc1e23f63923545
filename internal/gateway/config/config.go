package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `validate:"required"`
	Env       string
	LogLevel  string
	LogFormat string `validate:"omitempty,oneof=text json"`

	// TerminologyDatabaseURL points at the primary terminology database.
	TerminologyDatabaseURL string
	// CodemapperDatabaseURL points at the application database holding the
	// non-native vocabularies and the descendants cache table.
	CodemapperDatabaseURL string

	Cache CacheConfig

	// DescendersFile is an optional YAML strategy table.
	DescendersFile string
}

type CacheConfig struct {
	Backend    string `validate:"oneof=postgres badger memory none"`
	BadgerPath string `validate:"required_if=Backend badger"`
	HotEntries int    `validate:"gte=0"`
}

var validate = validator.New()

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}
	cfg := defaults(env)

	if envPort := strings.TrimSpace(os.Getenv("PORT")); envPort != "" {
		cfg.Port = NormalizePort(envPort)
	}
	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), cfg.LogLevel)
	cfg.LogFormat = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_FORMAT")), cfg.LogFormat)
	cfg.TerminologyDatabaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("TERMINOLOGY_DATABASE_URL")), cfg.TerminologyDatabaseURL)
	cfg.CodemapperDatabaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("CODEMAPPER_DATABASE_URL")), cfg.CodemapperDatabaseURL)
	cfg.Cache.Backend = strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("DESCENDANTS_CACHE_BACKEND")), cfg.Cache.Backend))
	cfg.Cache.BadgerPath = firstNonEmpty(strings.TrimSpace(os.Getenv("DESCENDANTS_CACHE_BADGER_PATH")), cfg.Cache.BadgerPath)
	if raw := strings.TrimSpace(os.Getenv("DESCENDANTS_CACHE_HOT_ENTRIES")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("DESCENDANTS_CACHE_HOT_ENTRIES: %w", err)
		}
		cfg.Cache.HotEntries = n
	}
	cfg.DescendersFile = firstNonEmpty(strings.TrimSpace(os.Getenv("DESCENDERS_CONFIG")), cfg.DescendersFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults(env string) Config {
	if strings.EqualFold(env, "local") {
		return localConfig()
	}
	return Config{
		Port:      ":8081",
		Env:       env,
		LogLevel:  "info",
		LogFormat: "json",
		Cache: CacheConfig{
			Backend:    "postgres",
			HotEntries: 4096,
		},
	}
}

// Validate checks the configuration after flags and env are applied.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cache.Backend == "postgres" && strings.TrimSpace(c.CodemapperDatabaseURL) == "" {
		return fmt.Errorf("invalid config: postgres cache backend requires CODEMAPPER_DATABASE_URL")
	}
	return nil
}

func NormalizePort(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
