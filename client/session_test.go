package client

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func makeIDToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func TestSetTokensDerivesClaims(t *testing.T) {
	sess := NewSession()
	idToken := makeIDToken(t, map[string]any{
		"sub":            "user-1",
		"email":          "jane@example.com",
		"name":           "Jane Doe",
		"email_verified": true,
	})

	if err := sess.SetTokens(TokenSet{AccessToken: "at", IDToken: idToken}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}

	claims, err := sess.Claims()
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Email != "jane@example.com" {
		t.Errorf("email = %q", claims.Email)
	}
	if claims.Name != "Jane Doe" {
		t.Errorf("name = %q", claims.Name)
	}
	if !claims.EmailVerified {
		t.Error("email_verified = false, want true")
	}
}

func TestSetTokensMalformedIDToken(t *testing.T) {
	cases := []struct {
		name    string
		idToken string
	}{
		{"wrong segment count", "only.two"},
		{"bad base64", "!!!.???.###"},
		{"bad json payload", base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`)) + "." +
			base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := NewSession()
			err := sess.SetTokens(TokenSet{AccessToken: "at", IDToken: tc.idToken})
			if err == nil {
				t.Fatal("expected decode error")
			}
			// Tokens are stored despite the undecodable claims.
			if ts := sess.Tokens(); ts == nil || ts.AccessToken != "at" {
				t.Error("token set was not stored")
			}
			if _, err := sess.Claims(); !errors.Is(err, ErrNoIDToken) {
				t.Errorf("Claims error = %v, want ErrNoIDToken", err)
			}
		})
	}
}

func TestSetTokensKeepsRefreshToken(t *testing.T) {
	sess := NewSession()
	if err := sess.SetTokens(TokenSet{AccessToken: "at1", RefreshToken: "rt1"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}

	// Refresh response without a rotated refresh token keeps the old one.
	if err := sess.SetTokens(TokenSet{AccessToken: "at2"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if ts := sess.Tokens(); ts.RefreshToken != "rt1" {
		t.Errorf("refresh token = %q, want rt1", ts.RefreshToken)
	}

	// A rotated refresh token replaces it.
	if err := sess.SetTokens(TokenSet{AccessToken: "at3", RefreshToken: "rt2"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if ts := sess.Tokens(); ts.RefreshToken != "rt2" {
		t.Errorf("refresh token = %q, want rt2", ts.RefreshToken)
	}
}

func TestSetTokensKeepsIDTokenClaims(t *testing.T) {
	sess := NewSession()
	idToken := makeIDToken(t, map[string]any{"sub": "user-1", "email": "jane@example.com"})
	if err := sess.SetTokens(TokenSet{AccessToken: "at1", IDToken: idToken}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}

	if err := sess.SetTokens(TokenSet{AccessToken: "at2"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}

	claims, err := sess.Claims()
	if err != nil {
		t.Fatalf("Claims after refresh: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
}

func TestClaimsWithoutIDToken(t *testing.T) {
	sess := NewSession()
	if err := sess.SetTokens(TokenSet{AccessToken: "at"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if _, err := sess.Claims(); !errors.Is(err, ErrNoIDToken) {
		t.Errorf("Claims error = %v, want ErrNoIDToken", err)
	}
}

func TestClear(t *testing.T) {
	sess := NewSession()
	if err := sess.SetTokens(TokenSet{AccessToken: "at", RefreshToken: "rt"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	sess.BeginFlow("verifier", "state")

	sess.Clear()

	if sess.Tokens() != nil {
		t.Error("tokens survived Clear")
	}
	if _, _, ok := sess.TakeFlow(); ok {
		t.Error("pending flow survived Clear")
	}
}

func TestTakeFlowConsumesOnce(t *testing.T) {
	sess := NewSession()
	sess.BeginFlow("v1", "s1")

	verifier, state, ok := sess.TakeFlow()
	if !ok {
		t.Fatal("first TakeFlow returned ok=false")
	}
	if verifier != "v1" || state != "s1" {
		t.Errorf("TakeFlow = (%q, %q), want (v1, s1)", verifier, state)
	}

	if _, _, ok := sess.TakeFlow(); ok {
		t.Error("second TakeFlow returned ok=true")
	}
}

func TestBeginFlowOverwrites(t *testing.T) {
	sess := NewSession()
	sess.BeginFlow("v1", "s1")
	sess.BeginFlow("v2", "s2")

	_, state, ok := sess.TakeFlow()
	if !ok {
		t.Fatal("TakeFlow returned ok=false")
	}
	if state != "s2" {
		t.Errorf("state = %q, want the later flow's s2", state)
	}
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()

	id, sess := store.Create()
	if id == "" {
		t.Fatal("empty session id")
	}

	got, ok := store.Get(id)
	if !ok || got != sess {
		t.Fatal("Get did not return the created session")
	}

	if _, ok := store.Get("unknown"); ok {
		t.Error("Get returned a session for an unknown id")
	}

	store.Delete(id)
	if _, ok := store.Get(id); ok {
		t.Error("session survived Delete")
	}
}
