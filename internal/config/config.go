// Package config loads process configuration from environment variables
// only, following the getEnv/typed-getter pattern of an env-var-driven
// service config: every knob has a default, and Load() never fails.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every recognized configuration knob, grouped by the
// component that consumes it.
type Config struct {
	Server   ServerConfig
	Metadata MetadataConfig
	Vector   VectorConfig
	LLM      LLMConfig
	Chunk    ChunkConfig
	Search   SearchConfig
	RateLimit RateLimitConfig
	Queue    QueueConfig
	Query    QueryConfig
	Chat     ChatConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type MetadataConfig struct {
	DatabasePath string
}

type VectorConfig struct {
	BaseURL       string
	HybridWeightVec  float64
	HybridWeightBM25 float64
}

type LLMConfig struct {
	ProviderTag string
	Endpoint    string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

type ChunkConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type SearchConfig struct {
	DefaultLimit   int
	MaxLimit       int
	MinSearchScore float64
}

type RateLimitConfig struct {
	LLMCapacity    float64
	LLMRefill      float64
	ChatCapacity   float64
	ChatRefill     float64
}

type QueueConfig struct {
	LLMConcurrency int
	LLMMaxSize     int
}

type QueryConfig struct {
	ExpansionEnabled bool
	MaxQueries       int
}

type ChatConfig struct {
	DefaultTemperature    float64
	DefaultMaxTokens      int
	DefaultSearchLimit    int
	IncludeSourcesDefault bool
	SystemPromptTemplate  string
}

// Load reads every knob from the environment, applying the documented
// defaults for anything unset.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Metadata: MetadataConfig{
			DatabasePath: getEnv("METADATA_DB_PATH", "./data/metadata.db"),
		},
		Vector: VectorConfig{
			BaseURL:          getEnv("VECTOR_BACKEND_URL", "http://localhost:6333"),
			HybridWeightVec:  getFloatEnv("HYBRID_WEIGHT_VEC", 0.4),
			HybridWeightBM25: getFloatEnv("HYBRID_WEIGHT_BM25", 0.6),
		},
		LLM: LLMConfig{
			ProviderTag: getEnv("LLM_PROVIDER", "openai"),
			Endpoint:    getEnv("LLM_ENDPOINT", ""),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout:     getDurationEnv("LLM_TIMEOUT", 30*time.Second),
			MaxRetries:  getIntEnv("LLM_MAX_RETRIES", 3),
			RetryDelay:  getDurationEnv("LLM_RETRY_DELAY", 1*time.Second),
		},
		Chunk: ChunkConfig{
			ChunkSize:    getIntEnv("CHUNK_SIZE", 500),
			ChunkOverlap: getIntEnv("CHUNK_OVERLAP", 50),
		},
		Search: SearchConfig{
			DefaultLimit:   getIntEnv("DEFAULT_SEARCH_LIMIT", 5),
			MaxLimit:       getIntEnv("MAX_SEARCH_LIMIT", 20),
			MinSearchScore: getFloatEnv("MIN_SEARCH_SCORE", 0.30),
		},
		RateLimit: RateLimitConfig{
			LLMCapacity:  getFloatEnv("LLM_RATE_LIMIT_CAPACITY", 10),
			LLMRefill:    getFloatEnv("LLM_RATE_LIMIT_REFILL", 2),
			ChatCapacity: getFloatEnv("CHAT_RATE_LIMIT_CAPACITY", 20),
			ChatRefill:   getFloatEnv("CHAT_RATE_LIMIT_REFILL", 5),
		},
		Queue: QueueConfig{
			LLMConcurrency: getIntEnv("LLM_QUEUE_CONCURRENCY", 5),
			LLMMaxSize:     getIntEnv("LLM_QUEUE_MAX_SIZE", 50),
		},
		Query: QueryConfig{
			ExpansionEnabled: getBoolEnv("QUERY_EXPANSION_ENABLED", true),
			MaxQueries:       getIntEnv("QUERY_EXPANSION_MAX_QUERIES", 3),
		},
		Chat: ChatConfig{
			DefaultTemperature:    getFloatEnv("CHAT_DEFAULT_TEMPERATURE", 0.7),
			DefaultMaxTokens:      getIntEnv("CHAT_DEFAULT_MAX_TOKENS", 2048),
			DefaultSearchLimit:    getIntEnv("CHAT_DEFAULT_SEARCH_LIMIT", 5),
			IncludeSourcesDefault: getBoolEnv("CHAT_INCLUDE_SOURCES_DEFAULT", true),
			SystemPromptTemplate: getEnv("CHAT_SYSTEM_PROMPT_TEMPLATE",
				"You are a helpful assistant. Use the following context to answer the user's question.\n\n{context}"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
