package main

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// ModelQueryTimeout is the per-model timeout for council queries
	ModelQueryTimeout = 120 * time.Second

	// TitleGenTimeout is the shorter timeout used for title generation
	TitleGenTimeout = 30 * time.Second

	// MaxRequestBodySize is the maximum allowed request body size (1MB)
	MaxRequestBodySize int64 = 1 << 20
)

// Config holds all service configuration, loaded from the environment.
type Config struct {
	OpenRouterAPIKey   string        `envconfig:"OPENROUTER_API_KEY" required:"true"`
	OpenRouterAPIURL   string        `envconfig:"OPENROUTER_API_URL" default:"https://openrouter.ai/api/v1/chat/completions"`
	Port               int           `envconfig:"PORT" default:"8001"`
	DataDir            string        `envconfig:"DATA_DIR" default:"data/conversations"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	ScoresCacheTTL     time.Duration `envconfig:"SCORES_CACHE_TTL" default:"5m"`

	CouncilModels []string `envconfig:"COUNCIL_MODELS" default:"openai/gpt-5.1,google/gemini-3-pro-preview,anthropic/claude-sonnet-4.5,x-ai/grok-4"`
	ChairmanModel string   `envconfig:"CHAIRMAN_MODEL" default:"google/gemini-3-pro-preview"`
	TitleModel    string   `envconfig:"TITLE_MODEL" default:"google/gemini-2.5-flash"`
}

// ModelConfig is the model identity configuration handed to the council at
// construction time. Nothing inside the council reads ambient global state;
// per-request overrides are layered on top via CouncilOptions.
type ModelConfig struct {
	CouncilModels []string
	ChairmanModel string
	TitleModel    string
	QueryTimeout  time.Duration
	TitleTimeout  time.Duration
}

// ModelConfig builds the injectable model configuration from the loaded config.
func (c *Config) ModelConfig() ModelConfig {
	return ModelConfig{
		CouncilModels: c.CouncilModels,
		ChairmanModel: c.ChairmanModel,
		TitleModel:    c.TitleModel,
		QueryTimeout:  ModelQueryTimeout,
		TitleTimeout:  TitleGenTimeout,
	}
}

// LoadConfig loads configuration from environment variables, consulting a
// .env file first if one can be found.
func LoadConfig() (*Config, error) {
	// Load .env file - try multiple locations
	envLocations := []string{
		".env",    // Current directory
		"../.env", // Parent directory
	}

	envLoaded := false
	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				log.Printf("Loaded .env from: %s", absPath)
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		log.Printf("Warning: .env file not found in any expected location")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	log.Println("Configuration loaded successfully")
	return &cfg, nil
}
