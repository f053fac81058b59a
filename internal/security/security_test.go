package security

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(hash), "$argon2id$v=19$") {
		t.Errorf("unexpected hash format: %s", hash)
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil || !ok {
		t.Fatalf("expected password to verify, ok=%v err=%v", ok, err)
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected wrong password to fail")
	}
}

func TestVerifyPassword_RejectsMalformedHash(t *testing.T) {
	if _, err := VerifyPassword("x", []byte("plaintext")); err == nil {
		t.Error("expected error for malformed hash")
	}
}

func TestChallengeToken_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	token, err := GenerateChallengeToken("secret", "admin-1", "ops@example.com", 5*time.Minute, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := ParseChallengeToken(token, "secret", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.AdminID != "admin-1" || claims.Email != "ops@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestChallengeToken_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	token, _ := GenerateChallengeToken("secret", "admin-1", "ops@example.com", 5*time.Minute, now)

	_, err := ParseChallengeToken(token, "secret", now.Add(6*time.Minute))
	if !errors.Is(err, ErrInvalidChallenge) {
		t.Errorf("expected ErrInvalidChallenge, got %v", err)
	}
}

func TestChallengeToken_WrongSecret(t *testing.T) {
	now := time.Now()
	token, _ := GenerateChallengeToken("secret", "admin-1", "ops@example.com", 5*time.Minute, now)

	if _, err := ParseChallengeToken(token, "other", now); !errors.Is(err, ErrInvalidChallenge) {
		t.Errorf("expected ErrInvalidChallenge, got %v", err)
	}
}

func TestGenerateSessionToken_HashMatches(t *testing.T) {
	token, hash, err := GenerateSessionToken(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) < 40 {
		t.Errorf("token too short: %d", len(token))
	}
	if !bytes.Equal(hash, HashSessionToken(token)) {
		t.Error("stored hash does not match token hash")
	}

	other, _, _ := GenerateSessionToken(32)
	if other == token {
		t.Error("expected distinct tokens")
	}
}

func TestValidateTOTP(t *testing.T) {
	key, err := GenerateTOTPSecret("Test", "ops@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(key.URL, "otpauth://totp/") {
		t.Errorf("unexpected provisioning url %q", key.URL)
	}

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	code, err := totp.GenerateCode(key.Secret, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !ValidateTOTP(code, key.Secret, now, 1) {
		t.Error("expected current code to validate")
	}
	if !ValidateTOTP(code, key.Secret, now.Add(30*time.Second), 1) {
		t.Error("expected code from previous step to validate within skew")
	}
	if ValidateTOTP(code, key.Secret, now.Add(5*time.Minute), 1) {
		t.Error("expected stale code to fail")
	}
	if ValidateTOTP("12345", key.Secret, now, 1) {
		t.Error("expected short code to fail")
	}
}

func TestSignRequest_Validates(t *testing.T) {
	body := []byte(`{"leadId":"abc"}`)
	req := httptest.NewRequest("POST", "/api/v1/relay/notify?x=1", bytes.NewReader(body))
	SignRequest(req, "relay-secret", "site", body, "2026-03-01T10:00:00Z", "nonce-1")

	ok := ValidateSignature("relay-secret", "site", req.Header.Get(HeaderSignature),
		"POST", "/api/v1/relay/notify", "x=1", body, "2026-03-01T10:00:00Z", "nonce-1")
	if !ok {
		t.Error("expected signature to validate")
	}

	tampered := ValidateSignature("relay-secret", "site", req.Header.Get(HeaderSignature),
		"POST", "/api/v1/relay/notify", "x=1", []byte(`{"leadId":"xyz"}`), "2026-03-01T10:00:00Z", "nonce-1")
	if tampered {
		t.Error("expected tampered body to fail")
	}
}
