package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls request limits and login throttling.
type Config struct {
	TrustProxy    bool
	MaxBodyBytes  int64
	LoginIPMax    int
	LoginIPWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:  64 << 10,
		LoginIPMax:    20,
		LoginIPWindow: 5 * time.Minute,
	}
}

// LoadConfigFromEnv reads PREP_API_* variables over DefaultConfig.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		TrustProxy:    envBool("PREP_API_TRUST_PROXY", false),
		MaxBodyBytes:  envInt64("PREP_API_MAX_BODY_BYTES", def.MaxBodyBytes),
		LoginIPMax:    envInt("PREP_API_LOGIN_IP_MAX", def.LoginIPMax),
		LoginIPWindow: envDuration("PREP_API_LOGIN_IP_WINDOW", def.LoginIPWindow),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
