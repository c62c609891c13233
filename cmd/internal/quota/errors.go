package quota

import (
	"errors"

	"interviewprep/cmd/internal/ledger"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrOutcomeDeferred means the answer was scored but could not be recorded;
	// it has been queued for replay.
	ErrOutcomeDeferred = errors.New("outcome_deferred")

	errInvalidReferralCode = errors.New("invalid_referral_code")
)

// Ledger kinds surfaced unchanged by this package.
var (
	ErrNotFound                = ledger.ErrNotFound
	ErrDuplicateEmail          = ledger.ErrDuplicateEmail
	ErrQuotaExhausted          = ledger.ErrQuotaExhausted
	ErrCodeGenerationExhausted = ledger.ErrCodeGenerationExhausted
)
