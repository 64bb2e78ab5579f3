// Package config loads carechat settings from the environment and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderNone      = "none"
)

// Store backends.
const (
	StoreMemory  = "memory"
	StoreSurreal = "surreal"
)

// Config holds all configuration values.
type Config struct {
	// Client
	ServerURL     string
	PollInterval  time.Duration
	ClientTimeout time.Duration

	// Server
	ServerPort int
	Store      string
	SeedFile   string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Assistant responder
	LLMProvider      string
	LLMModel         string
	OllamaHost       string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	AWSRegion        string
	ResponderWorkers int
	ResponderHistory int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ServerURL:     getEnv("CARECHAT_SERVER_URL", "http://localhost:8585/query"),
		PollInterval:  getEnvDuration("CARECHAT_POLL_INTERVAL", 2*time.Second),
		ClientTimeout: getEnvDuration("CARECHAT_CLIENT_TIMEOUT", 15*time.Second),

		ServerPort: getEnvInt("CARECHAT_SERVER_PORT", 8585),
		Store:      strings.ToLower(getEnv("CARECHAT_STORE", StoreMemory)),
		SeedFile:   getEnv("CARECHAT_SEED_FILE", ""),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "carechat"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:      strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama)),
		LLMModel:         getEnv("LLM_MODEL", "llama3.2"),
		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		ResponderWorkers: getEnvInt("RESPONDER_WORKERS", 2),
		ResponderHistory: getEnvInt("RESPONDER_HISTORY", 20),

		LogFile:  getEnv("CARECHAT_LOG_FILE", "/tmp/carechat.log"),
		LogLevel: parseLogLevel(getEnv("CARECHAT_LOG_LEVEL", "INFO")),
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSurreal:
	default:
		return fmt.Errorf("unsupported store %q (want %s or %s)", c.Store, StoreMemory, StoreSurreal)
	}
	switch c.LLMProvider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderBedrock, ProviderNone:
	default:
		return fmt.Errorf("unsupported LLM provider %q", c.LLMProvider)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerPort)
	}
	if c.ResponderWorkers < 1 {
		return fmt.Errorf("responder workers must be at least 1, got %d", c.ResponderWorkers)
	}
	return nil
}

// ListenAddr returns the server listen address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
