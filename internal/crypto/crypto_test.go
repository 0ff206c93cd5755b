package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSecretRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("api-secret-xyz", "correct horse")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}

	got, err := DecryptSecret(blob, "correct horse")
	if err != nil {
		t.Fatalf("DecryptSecret: %v", err)
	}
	if got != "api-secret-xyz" {
		t.Fatalf("round trip returned %q", got)
	}

	if _, err := DecryptSecret(blob, "wrong password"); err == nil {
		t.Fatal("wrong password should fail authentication")
	}
}

func TestLoadSecretFromFile(t *testing.T) {
	blob, err := EncryptSecret("signing-key-abc", "pw")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}
	path := filepath.Join(t.TempDir(), "secret.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadSecret(SecretSource{EncryptedPath: path, Password: "pw"})
	if err != nil {
		t.Fatalf("LoadSecret: %v", err)
	}
	if got != "signing-key-abc" {
		t.Fatalf("LoadSecret returned %q", got)
	}

	// Raw wins over the file.
	got, err = LoadSecret(SecretSource{Raw: "raw-secret", EncryptedPath: path, Password: "pw"})
	if err != nil || got != "raw-secret" {
		t.Fatalf("raw source: got %q, %v", got, err)
	}

	if _, err := LoadSecret(SecretSource{}); err == nil {
		t.Fatal("empty source should fail")
	}
}

func TestHMACHeadersDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "key-1", Secret: "secret-1"}

	h1 := auth.HeadersAt("POST", "/api/v1/orders", `{"a":1}`, 1700000000)
	h2 := auth.HeadersAt("POST", "/api/v1/orders", `{"a":1}`, 1700000000)
	if h1["X-MTK-SIGNATURE"] != h2["X-MTK-SIGNATURE"] {
		t.Fatal("same input should produce the same signature")
	}
	if h1["X-MTK-APIKEY"] != "key-1" || h1["X-MTK-TIMESTAMP"] != "1700000000" {
		t.Fatalf("unexpected headers: %v", h1)
	}

	if !auth.Verify("POST", "/api/v1/orders", `{"a":1}`, "1700000000", h1["X-MTK-SIGNATURE"]) {
		t.Fatal("Verify rejected its own signature")
	}
	if auth.Verify("GET", "/api/v1/orders", `{"a":1}`, "1700000000", h1["X-MTK-SIGNATURE"]) {
		t.Fatal("Verify accepted a signature for a different request")
	}
}

func TestHMACStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "key-123456", Secret: "secret-value"}
	s := auth.String()
	if strings.Contains(s, "123456") || strings.Contains(s, "secret-value") {
		t.Fatalf("String leaked credentials: %s", s)
	}
}

// A well-known test vector key; never use outside tests.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignRequestRecovers(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	body := []byte(`{"symbol":"BTC/USDT","side":"buy"}`)
	sig, err := s.SignRequest(1700000000, "POST", "/orders", body)
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}

	addr, err := RecoverRequestSigner(1700000000, "POST", "/orders", body, sig)
	if err != nil {
		t.Fatalf("RecoverRequestSigner: %v", err)
	}
	if addr != s.Address() {
		t.Fatalf("recovered %s, want %s", addr, s.Address())
	}

	// A tampered body must not recover to the same address.
	addr, err = RecoverRequestSigner(1700000000, "POST", "/orders", []byte(`{}`), sig)
	if err == nil && addr == s.Address() {
		t.Fatal("tampered request recovered the original signer")
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("not-hex"); err == nil {
		t.Fatal("invalid key should fail")
	}
}
