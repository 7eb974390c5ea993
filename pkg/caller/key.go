// Package caller defines the caller identity and the aggregate context that
// rolodex resolves for it.
package caller

import (
	"errors"
	"strings"
	"unicode"
)

// ErrUnidentifiable is returned by Parse when a raw identifier carries nothing
// that can be used as a lookup key.
var ErrUnidentifiable = errors.New("unidentifiable caller")

// Key is the canonical caller identifier. Every cache namespace and every
// source lookup is keyed by the same Key.
type Key string

// String returns the canonical form of the key.
func (k Key) String() string {
	return string(k)
}

// Normalize canonicalizes a raw identifier. It never fails: phone-like input
// reduces to its ASCII digits, and input without any digits degrades to a
// lower-cased form with whitespace and phone punctuation removed.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(raw string) Key {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() > 0 {
		return Key(digits.String())
	}

	var fallback strings.Builder
	for _, r := range strings.ToLower(raw) {
		if unicode.IsSpace(r) || strings.ContainsRune("+-().", r) {
			continue
		}
		fallback.WriteRune(r)
	}
	return Key(fallback.String())
}

// Parse normalizes raw and rejects identifiers that normalize to nothing.
func Parse(raw string) (Key, error) {
	key := Normalize(raw)
	if key == "" {
		return "", ErrUnidentifiable
	}
	return key, nil
}
