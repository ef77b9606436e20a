package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
)

type Config struct {
	GeminiAPIKey string
	GeminiModel  string

	StoreBackend string
	MongoURI     string
	MongoDB      string
	DatabaseURL  string

	HTTPPort string
	LogLevel string
	AppEnv   string

	SessionSecret string
	SessionTTL    time.Duration

	LLMTimeout              time.Duration
	RiskEscalationThreshold int

	// DotEnvLoaded reports whether a .env file was found, so main can log it.
	DotEnvLoaded bool
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	loaded := godotenv.Load() == nil
	return FromLookup(os.LookupEnv, loaded)
}

// FromLookup builds a Config from an arbitrary lookup function.
func FromLookup(lookup func(string) (string, bool), dotEnvLoaded bool) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		GeminiAPIKey:            get("GEMINI_API_KEY", ""),
		GeminiModel:             get("GEMINI_MODEL", "gemini-1.5-flash"),
		StoreBackend:            strings.ToLower(get("STORE_BACKEND", BackendMongo)),
		MongoURI:                get("MONGO_URI", ""),
		MongoDB:                 get("MONGO_DB", "mindmate"),
		DatabaseURL:             get("DATABASE_URL", "mindmate.db"),
		HTTPPort:                get("HTTP_PORT", "7860"),
		LogLevel:                strings.ToUpper(get("LOG_LEVEL", "INFO")),
		AppEnv:                  get("APP_ENV", "development"),
		SessionSecret:           get("SESSION_SECRET", ""),
		SessionTTL:              getDuration(get("SESSION_TTL", ""), 24*time.Hour),
		LLMTimeout:              getDuration(get("LLM_TIMEOUT", ""), 60*time.Second),
		RiskEscalationThreshold: getInt(get("RISK_ESCALATION_THRESHOLD", ""), 7),
		DotEnvLoaded:            dotEnvLoaded,
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET environment variable is required")
	}
	switch cfg.StoreBackend {
	case BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI environment variable is required for the mongo backend")
		}
	case BackendSQLite:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func getInt(valueStr string, defaultValue int) int {
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getDuration(valueStr string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
