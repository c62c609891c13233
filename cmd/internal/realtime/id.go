package realtime

import (
	"crypto/rand"
	"encoding/hex"
)

// newSessionID returns 20 random hex chars; it only needs to be unique per account.
func newSessionID() string {
	b := make([]byte, 10)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
