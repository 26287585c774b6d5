package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("whatever"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestIdentityFromToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"user_id":  int64(7),
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	id, err := IdentityFromToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.UserID != "7" || id.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestIdentityFromTokenVariants(t *testing.T) {
	// sub/name claims from the alternate token issuer.
	token := signToken(t, jwt.MapClaims{"sub": "42", "name": "bob"})
	id, err := IdentityFromToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.UserID != "42" || id.Username != "bob" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// Only a subject: it doubles as the display name.
	token = signToken(t, jwt.MapClaims{"sub": "svc-1"})
	id, err = IdentityFromToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Username != "svc-1" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestIdentityFromTokenRejectsGarbage(t *testing.T) {
	if _, err := IdentityFromToken("not-a-token"); err == nil {
		t.Fatal("expected error")
	}

	token := signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if _, err := IdentityFromToken(token); err == nil {
		t.Fatal("expected error for token without identity claims")
	}
}
