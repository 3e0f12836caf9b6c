package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const tokenBytes = 32

func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomString draws n characters uniformly from alphabet.
func RandomString(alphabet string, n int) (string, error) {
	chars := []byte(alphabet)
	max := big.NewInt(int64(len(chars)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = chars[idx.Int64()]
	}
	return string(out), nil
}

// MaskCode hides all but the first two characters of a pairing code.
func MaskCode(code string) string {
	if len(code) <= 2 {
		return "****"
	}
	return code[:2] + "****"
}
