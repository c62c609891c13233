package session

import (
	"os"
	"time"
)

// Config controls token issuance.
type Config struct {
	Issuer    string
	AccessTTL time.Duration
	ClockSkew time.Duration

	// SecretKeyHex is a hex Ed25519 secret. Empty means an ephemeral key per process.
	SecretKeyHex string
}

func DefaultConfig() Config {
	return Config{
		Issuer:    "interviewprep",
		AccessTTL: 24 * time.Hour,
		ClockSkew: 30 * time.Second,
	}
}

// LoadConfigFromEnv reads:
//   - PREP_AUTH_ISSUER
//   - PREP_AUTH_ACCESS_TTL
//   - PREP_AUTH_CLOCK_SKEW
//   - PREP_PASETO_V4_SECRET_KEY_HEX
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("PREP_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("PREP_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTTL = d
	}

	if v := os.Getenv("PREP_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.SecretKeyHex = os.Getenv("PREP_PASETO_V4_SECRET_KEY_HEX")
	return cfg, nil
}
