package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	DatabaseURL string `yaml:"database_url"`
	Environment string `yaml:"environment"`
	SentryDSN   string `yaml:"sentry_dsn"`

	// Operator alerts for failed sessions; empty disables them
	DiscordWebhookURL string `yaml:"discord_webhook_url"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json
	LogFile   string `yaml:"log_file"`   // empty = stderr

	// Live transcription session
	LiveAPIKey     string        `yaml:"live_api_key"` // falls back to GeminiAPIKey
	LiveURL        string        `yaml:"live_url"`
	LiveModel      string        `yaml:"live_model"`
	MaxSpeakers    int           `yaml:"max_speakers"`
	FramesPerBlock int           `yaml:"frames_per_block"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`       // 0 = no limit
	WriteTimeout   time.Duration `yaml:"live_write_timeout"` // per audio message; 0 = no limit

	// Summarization
	LLMProvider        string        `yaml:"llm_provider"` // gemini or openai
	GeminiAPIKey       string        `yaml:"gemini_api_key"`
	GeminiModel        string        `yaml:"gemini_model"`
	OpenAIAPIKey       string        `yaml:"openai_api_key"`
	OpenAIModel        string        `yaml:"openai_model"`
	SummaryTemperature float64       `yaml:"summary_temperature"`
	SummaryTimeout     time.Duration `yaml:"summary_timeout"` // 0 = no limit

	// Event log retention; 0 keeps events forever
	EventRetention time.Duration `yaml:"event_retention"`

	// JWT Authentication
	JWTSecret string        `yaml:"-"` // env only
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		Environment:        "development",
		LogLevel:           "info",
		LogFormat:          "text",
		LiveModel:          "models/gemini-2.0-flash-live-001",
		MaxSpeakers:        2,
		FramesPerBlock:     4096,
		OpenTimeout:        15 * time.Second,
		WriteTimeout:       5 * time.Second,
		LLMProvider:        "gemini",
		GeminiModel:        "gemini-2.0-flash",
		OpenAIModel:        "gpt-4o-mini",
		SummaryTemperature: 0.3,
		SummaryTimeout:     60 * time.Second,
		EventRetention:     30 * 24 * time.Hour,
		JWTExpiry:          24 * time.Hour,
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file
// named by CONFIG_FILE (if any), then environment variables.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg with any environment variables that are set. The
// current value of each field acts as the default.
func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Environment = getenv("ENVIRONMENT", cfg.Environment)
	cfg.SentryDSN = getenv("SENTRY_DSN", cfg.SentryDSN)
	cfg.DiscordWebhookURL = getenv("DISCORD_WEBHOOK_URL", cfg.DiscordWebhookURL)

	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(getenv("LOG_FORMAT", cfg.LogFormat))
	cfg.LogFile = getenv("LOG_FILE", cfg.LogFile)

	cfg.GeminiAPIKey = getenv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.LiveAPIKey = getenv("LIVE_API_KEY", cfg.LiveAPIKey)
	if cfg.LiveAPIKey == "" {
		cfg.LiveAPIKey = cfg.GeminiAPIKey
	}
	cfg.LiveURL = getenv("LIVE_URL", cfg.LiveURL)
	cfg.LiveModel = getenv("LIVE_MODEL", cfg.LiveModel)
	cfg.MaxSpeakers = getenvIntClamped("MAX_SPEAKERS", cfg.MaxSpeakers, 0, 10)
	cfg.FramesPerBlock = getenvIntClamped("FRAMES_PER_BLOCK", cfg.FramesPerBlock, 256, 16384)
	cfg.OpenTimeout = getenvDurationClamped("OPEN_TIMEOUT", cfg.OpenTimeout, 0, 2*time.Minute)
	cfg.WriteTimeout = getenvDurationClamped("LIVE_WRITE_TIMEOUT", cfg.WriteTimeout, 0, time.Minute)

	cfg.LLMProvider = strings.ToLower(getenv("LLM_PROVIDER", cfg.LLMProvider))
	cfg.GeminiModel = getenv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OpenAIAPIKey = getenv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIModel = getenv("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.SummaryTemperature = getenvFloatClamped("SUMMARY_TEMPERATURE", cfg.SummaryTemperature, 0, 2)
	cfg.SummaryTimeout = getenvDurationClamped("SUMMARY_TIMEOUT", cfg.SummaryTimeout, 0, 10*time.Minute)

	cfg.JWTSecret = os.Getenv("JWT_SECRET") // Required for serve - no fallback for security
	cfg.EventRetention = getenvDurationClamped("EVENT_RETENTION", cfg.EventRetention, 0, 365*24*time.Hour)
	cfg.JWTExpiry = getenvDurationClamped("JWT_EXPIRY", cfg.JWTExpiry, time.Minute, 30*24*time.Hour)
}

// Validate checks values that have no sensible clamp.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("llm_provider must be gemini or openai, got %q", c.LLMProvider)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// SummaryAPIKey returns the key for the configured generation provider.
func (c Config) SummaryAPIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func getenvFloatClamped(k string, def, min, max float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}

func getenvDurationClamped(k string, def, min, max time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
