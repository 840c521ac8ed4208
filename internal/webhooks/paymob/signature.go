package paymobwebhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrSignatureMissing  = errors.New("webhook signature missing")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// Verifier checks the hex HMAC-SHA512 of the raw callback body.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

// Enabled is false when no shared secret is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

func (v *Verifier) Verify(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(got, v.sign(body)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the hex signature of body. Used by tests and local tooling.
func (v *Verifier) Sign(body []byte) string {
	return hex.EncodeToString(v.sign(body))
}

func (v *Verifier) sign(body []byte) []byte {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
