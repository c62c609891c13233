package scoring

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config configures the Gemini oracle.
type Config struct {
	APIKey  string        `envconfig:"API_KEY"`
	Model   string        `envconfig:"MODEL" default:"gemini-2.5-flash"`
	BaseURL string        `envconfig:"BASE_URL" default:"https://generativelanguage.googleapis.com"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

// LoadConfig reads PREP_SCORING_* variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("PREP_SCORING", &cfg); err != nil {
		return Config{}, fmt.Errorf("scoring: load config: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, nil
}
