package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const generatedAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GeneratedLength is the length of passwords issued at registration.
const GeneratedLength = 10

// Generate returns a uniformly random password of n characters from [A-Za-z0-9].
func Generate(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}

	limit := big.NewInt(int64(len(generatedAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		out[i] = generatedAlphabet[idx.Int64()]
	}
	return string(out), nil
}
