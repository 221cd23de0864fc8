package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// NewOpaqueToken returns 32 random bytes encoded as unpadded base64url.
func NewOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken is the storage form of refresh and reset tokens. Raw values are
// only ever held by the client.
func HashToken(token, pepper string) string {
	m := hmac.New(sha256.New, []byte(pepper))
	_, _ = m.Write([]byte(token))
	return hex.EncodeToString(m.Sum(nil))
}
