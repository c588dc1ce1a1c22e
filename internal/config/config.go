package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

const (
	DefaultPort              = "3000"
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultCompletionTimeout = 60 * time.Second
	DefaultMaxBodyBytes      = 4 << 20
	DefaultLogFile           = "logs/careerreport.log"
	DefaultTelemetryDir      = "logs"
)

// Config holds application configuration
type Config struct {
	Addr    string
	Backend string
	Debug   bool

	// WebhookSecret enables the shared-secret gate when non-empty
	WebhookSecret string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	CompletionTimeout time.Duration // Outbound HTTP client timeout
	MaxBodyBytes      int64

	AuditDBPath  string // Empty disables the audit log
	LogFile      string
	LogLevel     string
	TelemetryDir string // Empty disables OTel file export
}

// Load reads configuration from the environment. Call godotenv.Load beforehand
// if a .env file should be honoured.
func Load() (Config, error) {
	cfg := Config{
		Addr:          ":" + getenv("PORT", DefaultPort),
		Backend:       strings.ToLower(getenv("COMPLETION_BACKEND", BackendOpenAI)),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: strings.TrimRight(getenv("OPENAI_BASE_URL", DefaultOpenAIBaseURL), "/"),
		GeminiAPIKey:  getenv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		GeminiModel:   getenv("GEMINI_MODEL", DefaultGeminiModel),
		GeminiBaseURL: os.Getenv("GEMINI_BASE_URL"),
		AuditDBPath:   os.Getenv("AUDIT_DB_PATH"),
		LogFile:       getenv("LOG_FILE", DefaultLogFile),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		TelemetryDir:  DefaultTelemetryDir,
	}
	if dir, ok := os.LookupEnv("TELEMETRY_DIR"); ok {
		cfg.TelemetryDir = dir
	}

	cfg.CompletionTimeout = DefaultCompletionTimeout
	if v := os.Getenv("COMPLETION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid COMPLETION_TIMEOUT %q: %w", v, err)
		}
		cfg.CompletionTimeout = d
	}

	cfg.MaxBodyBytes = DefaultMaxBodyBytes
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_BODY_BYTES %q", v)
		}
		cfg.MaxBodyBytes = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be corrected at request time.
// A missing API key is deliberately not an error here: requests fail with 500 instead.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendOpenAI, BackendGemini:
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
