package hmac

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newTestValidator(t *testing.T, cfg string) *Validator {
	t.Helper()
	v, err := NewValidatorFromJSON(json.RawMessage(cfg))
	if err != nil {
		t.Fatalf("NewValidatorFromJSON: %v", err)
	}
	return v.(*Validator)
}

func TestHMACValidator_ValidToken(t *testing.T) {
	v := newTestValidator(t, `{"secret":"unit-test-secret","issuer":"archops","audience":"governor"}`)

	token := signToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user@local",
		"iss":   "archops",
		"aud":   "governor",
		"scope": "governor:admin governor:submit",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	})

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", claims.Subject)
	}
	if !claims.HasScope("governor:admin") {
		t.Fatal("expected admin scope")
	}
	if claims.ExpiresAt.IsZero() {
		t.Fatal("expected ExpiresAt to be populated")
	}
}

func TestHMACValidator_WrongSecret(t *testing.T) {
	v := newTestValidator(t, `{"secret":"another-secret"}`)

	token := signToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	if _, err := v.Validate(token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestHMACValidator_ExpiredToken(t *testing.T) {
	v := newTestValidator(t, `{"secret":"unit-test-secret"}`)

	token := signToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()})
	if _, err := v.Validate(token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestHMACValidator_ClockSkewTolerated(t *testing.T) {
	v := newTestValidator(t, `{"secret":"unit-test-secret","clockSkewSeconds":120}`)

	token := signToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()})
	if _, err := v.Validate(token); err != nil {
		t.Fatalf("expected skew to be tolerated, got %v", err)
	}
}

func TestHMACValidator_WrongIssuerOrAudience(t *testing.T) {
	v := newTestValidator(t, `{"secret":"unit-test-secret","issuer":"archops","audience":"governor"}`)

	token := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "someone-else",
		"aud": "governor",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := v.Validate(token); err == nil {
		t.Fatal("expected issuer error")
	}

	token = signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "archops",
		"aud": "other-service",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := v.Validate(token); err == nil {
		t.Fatal("expected audience error")
	}
}

func TestHMACValidator_ConfigValidation(t *testing.T) {
	if _, err := NewValidatorFromJSON(json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing secret")
	}
	if _, err := NewValidatorFromJSON(json.RawMessage(`{nope`)); err == nil {
		t.Fatal("expected error for malformed config")
	}
}
