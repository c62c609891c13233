package session

import "errors"

var (
	// ErrInvalidToken covers bad signatures, wrong issuer, expiry and missing claims.
	ErrInvalidToken = errors.New("invalid token")

	ErrConfig = errors.New("invalid session config")
)
