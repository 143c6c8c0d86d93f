// Package joincode produces the short public tokens that identify a running
// session and key its broadcast room.
package joincode

import (
	"crypto/rand"
	"fmt"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// Length gives 62^8 possible codes, enough entropy to treat collisions
	// among concurrently live sessions as negligible.
	Length = 8
)

// Generator returns a fresh join code. Injected so tests can pin codes.
type Generator func() (string, error)

// New generates a random alphanumeric join code.
func New() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// Valid reports whether s has the shape of a generated join code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
