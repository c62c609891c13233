package app

import (
	"errors"

	"interviewprep/cmd/internal/auth/session"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// With PREP_REQUIRE_SIGNING_KEY=true the process refuses to start on an
// ephemeral token signing key, since every restart would log all users out.
func ValidateSecurityConfig(cfg Config, sess session.Config) error {
	if !cfg.RequireSigningKey {
		return nil
	}
	if sess.SecretKeyHex == "" {
		return errors.New("security policy: PREP_REQUIRE_SIGNING_KEY=true but PREP_PASETO_V4_SECRET_KEY_HEX is missing")
	}
	return nil
}
