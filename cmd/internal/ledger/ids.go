package ledger

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// ReferralCodeLength is the fixed length of generated referral codes.
	ReferralCodeLength = 6

	// MaxCodeAttempts bounds referral code regeneration on collision.
	MaxCodeAttempts = 50

	referralAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeGenerator produces candidate referral codes.
type CodeGenerator func() (string, error)

// NewULID returns a new ULID string (26 chars).
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewReferralCode returns a random code of ReferralCodeLength characters from [A-Z0-9].
func NewReferralCode() (string, error) {
	limit := big.NewInt(int64(len(referralAlphabet)))
	b := make([]byte, ReferralCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = referralAlphabet[n.Int64()]
	}
	return string(b), nil
}
