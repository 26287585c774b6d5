// Package auth reads the local identity out of the bearer credential.
// Credential issuance and verification belong to the server; the client
// only needs to know who it is, so the token is parsed unverified.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims the client cares about. Backend revisions
// disagree on the field names, so both spellings are accepted.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Sub      string `json:"sub"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// Identity is the local user as the sync core sees it.
type Identity struct {
	UserID   string
	Username string
}

// IdentityFromToken extracts the identity from a bearer token without
// verifying the signature.
func IdentityFromToken(tokenString string) (Identity, error) {
	parser := jwt.NewParser()
	var claims Claims
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	id := Identity{Username: claims.Username}
	if id.Username == "" {
		id.Username = claims.Name
	}
	if claims.UserID != 0 {
		id.UserID = fmt.Sprintf("%d", claims.UserID)
	} else {
		id.UserID = claims.Sub
	}
	if id.Username == "" && id.UserID == "" {
		return Identity{}, fmt.Errorf("token carries no identity claims")
	}
	if id.Username == "" {
		id.Username = id.UserID
	}
	return id, nil
}
