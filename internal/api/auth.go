package api

import "crypto/subtle"

// KeyAuth is the single authorization capability shared by the claim and
// report endpoints. Both compare against the same static key.
type KeyAuth struct {
	key string
}

// NewKeyAuth creates a KeyAuth for the configured static key.
func NewKeyAuth(key string) *KeyAuth {
	return &KeyAuth{key: key}
}

// Valid reports whether the candidate matches the configured key.
func (a *KeyAuth) Valid(candidate string) bool {
	if a.key == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.key), []byte(candidate)) == 1
}
