// Package security generates the opaque identifiers embedded in deep links.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

const (
	codeBytes  = 16
	tokenBytes = 18
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,128}$`)

func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewCode returns a link code, URL-safe with no padding.
func NewCode() (string, error) {
	return randomCode(codeBytes)
}

// NewToken returns a one-time premium token, longer than a link code so the
// two namespaces cannot collide.
func NewToken() (string, error) {
	return randomCode(tokenBytes)
}

// ValidCode reports whether s looks like a code or token we could have
// issued. Anything else is rejected before touching storage.
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}
