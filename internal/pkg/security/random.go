package security

import (
	"crypto/rand"
	"fmt"
)

const (
	AlphabetDigits = "0123456789"
	AlphabetBase62 = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateSecureString draws length characters uniformly from alphabet using
// crypto/rand.
func GenerateSecureString(alphabet string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid length: %d", length)
	}
	if len(alphabet) < 2 || len(alphabet) > 256 {
		return "", fmt.Errorf("invalid alphabet size: %d", len(alphabet))
	}

	// Rejection sampling to avoid modulo bias.
	maxRandomByte := 256 - (256 % len(alphabet))

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if int(b) >= maxRandomByte {
				continue
			}
			out[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}

// GenerateDigits returns a numeric code of the given length. Leading zeros are kept.
func GenerateDigits(length int) (string, error) {
	return GenerateSecureString(AlphabetDigits, length)
}
