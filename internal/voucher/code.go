package voucher

import (
	"crypto/rand"
	"errors"
	"io"
)

const digits = "0123456789"

// bytes at or above this value are redrawn so every digit is equally likely
const uniformLimit = 256 - 256%len(digits)

// GenerateCode returns prefix followed by n digits drawn uniformly from r.
// A nil r uses crypto/rand.
func GenerateCode(r io.Reader, prefix string, n int) (string, error) {
	if n <= 0 {
		return "", errors.New("length must be positive")
	}
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, 0, len(prefix)+n)
	b = append(b, prefix...)
	buf := make([]byte, n)
	for len(b) < len(prefix)+n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if int(c) >= uniformLimit {
				continue
			}
			b = append(b, digits[int(c)%len(digits)])
			if len(b) == len(prefix)+n {
				break
			}
		}
	}
	return string(b), nil
}
