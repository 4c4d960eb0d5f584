package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	AuthJWKSURL string // SUPABASE_URL + /auth/v1/.well-known/jwks.json unless AUTH_JWKS_URL is set
	CORSOrigins string
	TablePrefix string
	AutoMigrate bool
	DBMaxConns  int
	DBMinConns  int
	// LLM configuration
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	GoogleAPIKey     string
	AnthropicAPIKey  string
	DefaultModel     string
	// Web search
	TavilyAPIKey     string
	MaxSearchResults int
	// Guest mode
	GuestEnabled bool
	// Logging
	Debug       bool
	LogDir      string
	LogMaxFiles int
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	jwksURL := getEnv("AUTH_JWKS_URL", "")
	if jwksURL == "" {
		if supabaseURL := getEnv("SUPABASE_URL", ""); supabaseURL != "" {
			jwksURL = strings.TrimSuffix(supabaseURL, "/") + "/auth/v1/.well-known/jwks.json"
		}
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AuthJWKSURL: jwksURL,
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),
		AutoMigrate: getEnv("AUTO_MIGRATE", "false") == "true",
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:  getEnvInt("DB_MIN_CONNS", 1),

		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		GoogleAPIKey:     getEnv("GOOGLE_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:     getEnv("DEFAULT_MODEL", "google/gemini-1.5-flash-latest"),

		TavilyAPIKey:     getEnv("TAVILY_API_KEY", ""),
		MaxSearchResults: getEnvInt("MAX_SEARCH_RESULTS", DefaultMaxSearchResults),

		GuestEnabled: getEnv("GUEST_ENABLED", "true") == "true",

		// Default to debug logging outside prod
		Debug:       getEnv("DEBUG", getDefaultDebug(env)) == "true",
		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getEnvInt("LOG_MAX_FILES", 10),
	}
}

// CORSOriginList splits CORSOrigins on commas.
func (c *Config) CORSOriginList() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// TABLE_PREFIX overrides the environment default
	if prefix, ok := os.LookupEnv("TABLE_PREFIX"); ok {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}
