// Package client implements the relying-party side of the authorization
// code + PKCE flow: verifier/state generation, authorize URL construction,
// token exchange and refresh, per-browser-session token storage, and an
// authenticated request wrapper with a bounded refresh-retry policy.
package client

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCE bundles the values generated before redirecting to the authorization
// endpoint. The verifier and state stay with the session; the challenge goes
// on the authorize URL.
type PKCE struct {
	Verifier  string
	Challenge string
	State     string
}

// NewPKCE generates a fresh verifier, S256 challenge, and CSRF state.
func NewPKCE() (PKCE, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return PKCE{}, err
	}
	state, err := GenerateState()
	if err != nil {
		return PKCE{}, err
	}
	return PKCE{
		Verifier:  verifier,
		Challenge: GenerateCodeChallenge(verifier),
		State:     state,
	}, nil
}

// GenerateCodeVerifier returns a PKCE code verifier (RFC 7636). 32 random
// bytes encode to 43 URL-safe base64 characters without padding, the minimum
// length the RFC allows.
func GenerateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("unable to start authentication: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCodeChallenge computes the S256 code challenge for a verifier.
func GenerateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState returns a random state parameter for CSRF protection,
// drawn from an independent read of the entropy source.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("unable to start authentication: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
