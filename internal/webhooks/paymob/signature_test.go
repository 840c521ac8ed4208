package paymobwebhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"
)

func TestVerifierAcceptsMatchingSignature(t *testing.T) {
	body := []byte(`{"order_id":"1","success":true}`)
	mac := hmac.New(sha512.New, []byte("secret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	v := NewVerifier("secret")
	if !v.Enabled() {
		t.Fatal("expected verifier enabled")
	}
	if err := v.Verify(body, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := v.Verify(body, strings.ToUpper(sig)); err != nil {
		t.Fatalf("verify upper hex: %v", err)
	}
	if v.Sign(body) != sig {
		t.Fatal("sign mismatch")
	}
}

func TestVerifierRejects(t *testing.T) {
	v := NewVerifier("secret")
	body := []byte(`{"order_id":"1"}`)

	if err := v.Verify(body, ""); err != ErrSignatureMissing {
		t.Fatalf("expected missing, got %v", err)
	}
	if err := v.Verify(body, "zz"); err != ErrSignatureMismatch {
		t.Fatalf("expected mismatch for bad hex, got %v", err)
	}
	if err := v.Verify(body, NewVerifier("other").Sign(body)); err != ErrSignatureMismatch {
		t.Fatalf("expected mismatch for wrong key, got %v", err)
	}
	if err := v.Verify([]byte(`{"order_id":"2"}`), v.Sign(body)); err != ErrSignatureMismatch {
		t.Fatalf("expected mismatch for tampered body, got %v", err)
	}
}

func TestVerifierDisabledWithoutSecret(t *testing.T) {
	if NewVerifier("  ").Enabled() {
		t.Fatal("expected verifier disabled")
	}
	var v *Verifier
	if v.Enabled() {
		t.Fatal("nil verifier must be disabled")
	}
}
