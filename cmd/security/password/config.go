package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost. MemoryKiB is in KiB.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted passwords.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig matches the login form: 6 to 20 characters.
func DefaultConfig() Config {
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 6,
			MaxLength: 20,
		},
	}
}

// FromEnv overlays PREP_PASSWORD_* and PREP_ARGON2_* variables on DefaultConfig.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max int
		dst      *int
	}{
		{"PREP_PASSWORD_MIN_LEN", 1, 256, &cfg.Policy.MinLength},
		{"PREP_PASSWORD_MAX_LEN", 1, 1024, &cfg.Policy.MaxLength},
	}
	for _, f := range ints {
		v, ok := os.LookupEnv(f.key)
		if !ok {
			continue
		}
		n, err := parseRange(v, uint64(f.min), uint64(f.max))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = int(n) // #nosec G115 -- bounded by parseRange.
	}

	u32s := []struct {
		key      string
		min, max uint32
		dst      *uint32
	}{
		{"PREP_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, &cfg.Params.MemoryKiB},
		{"PREP_ARGON2_ITERATIONS", 1, 20, &cfg.Params.Iterations},
		{"PREP_ARGON2_SALT_LEN", 8, 64, &cfg.Params.SaltLength},
		{"PREP_ARGON2_KEY_LEN", 16, 64, &cfg.Params.KeyLength},
	}
	for _, f := range u32s {
		v, ok := os.LookupEnv(f.key)
		if !ok {
			continue
		}
		n, err := parseRange(v, uint64(f.min), uint64(f.max))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = uint32(n) // #nosec G115 -- bounded by parseRange.
	}

	if v, ok := os.LookupEnv("PREP_ARGON2_PARALLELISM"); ok {
		n, err := parseRange(v, 1, math.MaxUint8)
		if err != nil {
			return Config{}, fmt.Errorf("PREP_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = uint8(n) // #nosec G115 -- bounded by parseRange.
	}

	if v, ok := os.LookupEnv("PREP_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("PREP_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func parseRange(s string, lo, hi uint64) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("out of range [%d..%d]", lo, hi)
	}
	return n, nil
}
