package signal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"side":"buy","size":0.5}`)

	assert.True(t, VerifySignature("secret", sign("secret", body), body))
	assert.True(t, VerifySignature("secret", "sha256="+sign("secret", body), body))

	assert.False(t, VerifySignature("secret", sign("other", body), body))
	assert.False(t, VerifySignature("secret", sign("secret", []byte(`tampered`)), body))
	assert.False(t, VerifySignature("secret", "", body))
	assert.False(t, VerifySignature("secret", "not-hex", body))
}
