package ledger

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Kind is one of the sentinel kinds; Msg never carries secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

func opErr(op string, kind error, msg string) error {
	return OpError{Op: op, Kind: kind, Msg: msg}
}

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDuplicateEmail reports whether err represents ErrDuplicateEmail.
func IsDuplicateEmail(err error) bool { return errors.Is(err, ErrDuplicateEmail) }

// IsDuplicateReferral reports whether err represents ErrDuplicateReferral.
func IsDuplicateReferral(err error) bool { return errors.Is(err, ErrDuplicateReferral) }

// IsQuotaExhausted reports whether err represents ErrQuotaExhausted.
func IsQuotaExhausted(err error) bool { return errors.Is(err, ErrQuotaExhausted) }
