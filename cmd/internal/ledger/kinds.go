package ledger

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput            = errors.New("invalid_input")
	ErrNotFound                = errors.New("not_found")
	ErrDuplicateEmail          = errors.New("duplicate_email")
	ErrDuplicateReferral       = errors.New("duplicate_referral")
	ErrQuotaExhausted          = errors.New("quota_exhausted")
	ErrCodeGenerationExhausted = errors.New("code_generation_exhausted")
)
