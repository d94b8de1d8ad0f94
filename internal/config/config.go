package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/pkg/errors"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

type Config struct {
	LLM       LLMConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
	Places    PlacesConfig
	Pipeline  PipelineConfig
	Browser   BrowserConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Dashboard DashboardConfig
	Logging   LoggingConfig
}

type LLMConfig struct {
	Provider       string
	EnableFallback bool
	CacheTTL       time.Duration
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	Host  string
	Model string
}

type PlacesConfig struct {
	APIKey     string
	Location   string
	VenueTypes []string
}

type PipelineConfig struct {
	DataDir       string
	CataloguePDF  string
	ChunkSize     int
	RequestDelay  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

type BrowserConfig struct {
	Enabled    bool
	ChromePath string
	TextMode   string // "full" or "readable"
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type PostgresConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type DashboardConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LLM: LLMConfig{
			Provider:       strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
			EnableFallback: getEnvBool("LLM_ENABLE_FALLBACK", false),
			CacheTTL:       time.Duration(getEnvInt("LLM_CACHE_TTL_HOURS", int(constants.CacheTTL.Completion/time.Hour))) * time.Hour,
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
			Model:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Ollama: OllamaConfig{
			Host:  getEnv("OLLAMA_HOST", ""),
			Model: getEnv("OLLAMA_MODEL", "llama3.1"),
		},
		Places: PlacesConfig{
			APIKey:     getEnv("GOOGLE_PLACES_API_KEY", ""),
			Location:   getEnv("VENUE_LOCATION", "Sydney CBD, NSW 2000, Australia"),
			VenueTypes: parseCommaSeparated(getEnv("VENUE_TYPES", strings.Join(constants.DefaultVenueTypes, ","))),
		},
		Pipeline: PipelineConfig{
			DataDir:       getEnv("DATA_DIR", constants.PipelineConfig.DefaultDataDir),
			CataloguePDF:  getEnv("CATALOGUE_PDF", ""),
			ChunkSize:     getEnvInt("CHUNK_SIZE", constants.PipelineConfig.ChunkSize),
			RequestDelay:  getEnvDuration("REQUEST_DELAY_SECONDS", constants.PipelineConfig.RequestDelay),
			RetryAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", constants.RetryConfig.MaxAttempts),
			RetryDelay:    getEnvDuration("RETRY_DELAY_SECONDS", constants.RetryConfig.Delay),
		},
		Browser: BrowserConfig{
			Enabled:    getEnvBool("BROWSER_ENABLED", true),
			ChromePath: getEnv("CHROME_PATH", ""),
			TextMode:   strings.ToLower(getEnv("TEXT_MODE", "full")),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Enabled:  getEnvBool("POSTGRES_ENABLED", false),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "venue_match"),
		},
		Dashboard: DashboardConfig{
			Addr: getEnv("DASHBOARD_ADDR", ":8501"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings every stage needs. Stage-specific keys are checked by
// the Require* helpers.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.NewConfigError("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return errors.NewConfigError("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case ProviderOllama:
		if c.Ollama.Model == "" {
			return errors.NewConfigError("OLLAMA_MODEL is required when LLM_PROVIDER=ollama")
		}
	default:
		return errors.NewConfigError(fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}
	if c.Pipeline.ChunkSize <= 0 {
		return errors.NewConfigError("CHUNK_SIZE must be positive")
	}
	if c.Pipeline.RetryAttempts <= 0 {
		return errors.NewConfigError("RETRY_MAX_ATTEMPTS must be positive")
	}
	if c.Browser.TextMode != "full" && c.Browser.TextMode != "readable" {
		return errors.NewConfigError(fmt.Sprintf("unknown TEXT_MODE %q", c.Browser.TextMode))
	}
	if c.Pipeline.DataDir == "" {
		return errors.NewConfigError("DATA_DIR must not be empty")
	}
	return nil
}

func (c *Config) RequirePlaces() error {
	if c.Places.APIKey == "" {
		return errors.NewConfigError("GOOGLE_PLACES_API_KEY is required for venue discovery")
	}
	if len(c.Places.VenueTypes) == 0 {
		return errors.NewConfigError("VENUE_TYPES must name at least one venue type")
	}
	return nil
}

func (c *Config) RequirePostgres() error {
	if !c.Postgres.Enabled {
		return errors.NewConfigError("POSTGRES_ENABLED must be true for export")
	}
	return nil
}

// DataPath joins name onto the data directory.
func (c *Config) DataPath(name string) string {
	return filepath.Join(c.Pipeline.DataDir, name)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
