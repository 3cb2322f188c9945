package oauth

import (
	"crypto/rand"
	"encoding/base64"
)

// NewState returns a fresh anti-forgery token binding one authorization
// redirect to its callback. The token is single-use: the session layer
// consumes it on the first callback that presents it, success or not.
func NewState() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(nonce), nil
}
