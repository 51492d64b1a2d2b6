package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j (memory-graph backing store)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Embeddings
	EmbeddingsURL    string
	EmbeddingsModel  string
	EmbeddingsAPIKey string

	// Similarity weights
	SemanticWeight float64
	TokenWeight    float64
	EditWeight     float64

	// Classifier thresholds
	RefineTokenThreshold    float64
	EvolveSemanticThreshold float64

	// Backing-store retry policy
	StoreMaxRetries int
	StoreRetryDelay time.Duration

	// Behavior toggles
	AuditReads  bool // emit a decision record for read operations
	DedupByHash bool // reuse an existing node for identical content

	// Limits
	MaxContentBytes int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", "password"),

		EmbeddingsURL:    getEnv("EMBEDDINGS_URL", ""),
		EmbeddingsModel:  getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
		EmbeddingsAPIKey: getEnv("EMBEDDINGS_API_KEY", ""),

		SemanticWeight: getEnvFloat("SIMILARITY_W_SEMANTIC", 0.5),
		TokenWeight:    getEnvFloat("SIMILARITY_W_TOKEN", 0.3),
		EditWeight:     getEnvFloat("SIMILARITY_W_EDIT", 0.2),

		RefineTokenThreshold:    getEnvFloat("REFINE_TOKEN_THRESHOLD", 0.80),
		EvolveSemanticThreshold: getEnvFloat("EVOLVE_SEMANTIC_THRESHOLD", 0.50),

		StoreMaxRetries: getEnvInt("STORE_MAX_RETRIES", 3),
		StoreRetryDelay: time.Duration(getEnvInt("STORE_RETRY_DELAY_MS", 500)) * time.Millisecond,

		AuditReads:  getEnvBool("AUDIT_READS", false),
		DedupByHash: getEnvBool("DEDUP_BY_HASH", false),

		MaxContentBytes: getEnvInt("MAX_CONTENT_BYTES", 65536),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.SemanticWeight < 0 || c.TokenWeight < 0 || c.EditWeight < 0 {
		return fmt.Errorf("similarity weights must be non-negative")
	}
	if c.SemanticWeight+c.TokenWeight+c.EditWeight == 0 {
		return fmt.Errorf("at least one similarity weight must be positive")
	}
	if c.RefineTokenThreshold < 0 || c.RefineTokenThreshold > 1 {
		return fmt.Errorf("REFINE_TOKEN_THRESHOLD must be in [0,1]")
	}
	if c.EvolveSemanticThreshold < 0 || c.EvolveSemanticThreshold > 1 {
		return fmt.Errorf("EVOLVE_SEMANTIC_THRESHOLD must be in [0,1]")
	}
	if c.StoreMaxRetries < 1 {
		return fmt.Errorf("STORE_MAX_RETRIES must be at least 1")
	}
	if c.MaxContentBytes <= 0 {
		return fmt.Errorf("MAX_CONTENT_BYTES must be positive")
	}
	// Embeddings endpoint is optional; without it the semantic signal
	// degrades to the token-overlap fallback.
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}
