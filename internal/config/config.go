package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	BillplzAPIKey            string
	BillplzBaseURL           string
	BillplzDefaultCollection string
	// BillplzCollectionKeys maps each known collection id to its X-Signature
	// key. The webhook verifier receives this registry as-is; an unknown
	// collection fails verification closed.
	BillplzCollectionKeys map[string]string
	BillplzCallbackURL    string
	BillplzRedirectURL    string
	BillplzHTTPTimeout    time.Duration
	BillplzMaxAttempts    int

	WebhookReplayTTL time.Duration
	IdempotencyTTL   time.Duration
	BillCreateRate   string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		BillplzAPIKey:            k.String("BILLPLZ_API_KEY"),
		BillplzBaseURL:           valueOrDefault(k.String("BILLPLZ_BASE_URL"), "https://www.billplz-sandbox.com"),
		BillplzDefaultCollection: k.String("BILLPLZ_DEFAULT_COLLECTION"),
		BillplzCollectionKeys:    parseCollectionKeys(k.String("BILLPLZ_COLLECTION_KEYS")),
		BillplzCallbackURL:       k.String("BILLPLZ_CALLBACK_URL"),
		BillplzRedirectURL:       k.String("BILLPLZ_REDIRECT_URL"),
		BillplzHTTPTimeout:       parseDuration(k.String("BILLPLZ_HTTP_TIMEOUT"), "10s"),
		BillplzMaxAttempts:       intOrDefault(k.Int("BILLPLZ_MAX_ATTEMPTS"), 3),

		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BillCreateRate:   valueOrDefault(k.String("BILL_CREATE_RATE"), "30-M"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.BillplzAPIKey == "" {
		return nil, errors.New("BILLPLZ_API_KEY is required")
	}
	if len(cfg.BillplzCollectionKeys) == 0 {
		return nil, errors.New("BILLPLZ_COLLECTION_KEYS is required")
	}
	if cfg.BillplzDefaultCollection == "" {
		for collection := range cfg.BillplzCollectionKeys {
			cfg.BillplzDefaultCollection = collection
			break
		}
		if len(cfg.BillplzCollectionKeys) > 1 {
			return nil, errors.New("BILLPLZ_DEFAULT_COLLECTION is required when multiple collections are configured")
		}
	}
	if _, ok := cfg.BillplzCollectionKeys[cfg.BillplzDefaultCollection]; !ok {
		return nil, fmt.Errorf("BILLPLZ_DEFAULT_COLLECTION %q has no signing key configured", cfg.BillplzDefaultCollection)
	}
	if cfg.BillplzCallbackURL == "" {
		return nil, errors.New("BILLPLZ_CALLBACK_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// parseCollectionKeys decodes "collection:key" pairs separated by commas.
func parseCollectionKeys(value string) map[string]string {
	pairs := splitAndTrim(value)
	if len(pairs) == 0 {
		return nil
	}
	keys := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		collection, key, ok := strings.Cut(pair, ":")
		collection = strings.TrimSpace(collection)
		key = strings.TrimSpace(key)
		if !ok || collection == "" || key == "" {
			continue
		}
		keys[collection] = key
	}
	return keys
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// LoadDatabaseURL reads only the database DSN. Tools that just run SQL, like
// the migrator, use it so they do not need the full service environment.
func LoadDatabaseURL() (string, error) {
	_ = godotenv.Load()
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		return "", errors.New("DATABASE_URL is required")
	}
	return dsn, nil
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
