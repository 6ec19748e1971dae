package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
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
	ZibalMerchantID    string
	ZibalVerifyURL     string
	ZibalPaymentURL    string
	BackendBaseURL     string
	BackendWebhookPath string
	FrontendBaseURL    string
	WebhookSecret      string
	Debug              bool
	CORSAllowedOrigins []string
	VerifyTimeout      time.Duration
	ForwardTimeout     time.Duration
	CallbackRateMax    int
	CallbackRateWindow time.Duration
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
		ZibalMerchantID:    valueOrDefault(k.String("ZIBAL_MERCHANT_ID"), "zibal"),
		ZibalVerifyURL:     valueOrDefault(k.String("ZIBAL_VERIFY_URL"), "https://gateway.zibal.ir/v1/verify"),
		ZibalPaymentURL:    valueOrDefault(k.String("ZIBAL_PAYMENT_URL"), "https://gateway.zibal.ir/start/"),
		BackendBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("BACKEND_API_URL")), "/"),
		BackendWebhookPath: valueOrDefault(k.String("BACKEND_WEBHOOK_PATH"), "/api/v1/payments/zibal-webhook"),
		FrontendBaseURL:    strings.TrimRight(strings.TrimSpace(k.String("FRONTEND_BASE_URL")), "/"),
		WebhookSecret:      k.String("WEBHOOK_SECRET"),
		Debug:              parseBool(k.String("DEBUG")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		VerifyTimeout:      parseDuration(k.String("VERIFY_TIMEOUT"), "15s"),
		ForwardTimeout:     parseDuration(k.String("WEBHOOK_TIMEOUT"), "15s"),
		CallbackRateMax:    parseInt(k.String("CALLBACK_RATE_MAX"), 60),
		CallbackRateWindow: parseDuration(k.String("CALLBACK_RATE_WINDOW"), "1m"),
	}

	if cfg.BackendBaseURL == "" {
		return nil, errors.New("BACKEND_API_URL is required")
	}
	if cfg.FrontendBaseURL == "" {
		return nil, errors.New("FRONTEND_BASE_URL is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("WEBHOOK_SECRET is required")
	}
	for _, raw := range []string{cfg.ZibalVerifyURL, cfg.ZibalPaymentURL, cfg.BackendBaseURL, cfg.FrontendBaseURL} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", raw, err)
		}
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

// BackendWebhookURL returns the full backend endpoint verified results are posted to.
func (c *Config) BackendWebhookURL() string {
	path := strings.TrimSpace(c.BackendWebhookPath)
	if path == "" {
		path = "/api/v1/payments/zibal-webhook"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BackendBaseURL + path
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

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
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
