package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type tokenEndpoint struct {
	t *testing.T

	// Captured from the most recent request.
	form map[string]string

	respond func(w http.ResponseWriter, r *http.Request)
	calls   int
}

func newTokenEndpoint(t *testing.T) (*tokenEndpoint, *httptest.Server) {
	t.Helper()
	te := &tokenEndpoint{t: t}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.calls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		te.form = map[string]string{}
		for k := range r.PostForm {
			te.form[k] = r.PostForm.Get(k)
		}
		te.respond(w, r)
	}))
	t.Cleanup(srv.Close)
	return te, srv
}

func writeTokenResponse(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func TestExchangeCode(t *testing.T) {
	te, srv := newTokenEndpoint(t)
	te.respond = func(w http.ResponseWriter, r *http.Request) {
		writeTokenResponse(w, map[string]any{
			"access_token":  "at-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"refresh_token": "rt-1",
			"id_token":      "id-1",
			"scope":         "openid email",
		})
	}

	ex := NewExchanger(ExchangerConfig{
		TokenURL:    srv.URL,
		ClientID:    "web-client",
		RedirectURL: "https://app.example.com/callback",
	})

	ts, err := ex.ExchangeCode(context.Background(), "the-code", "the-verifier")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}

	if te.form["grant_type"] != "authorization_code" {
		t.Errorf("grant_type = %q", te.form["grant_type"])
	}
	if te.form["code"] != "the-code" {
		t.Errorf("code = %q", te.form["code"])
	}
	if te.form["code_verifier"] != "the-verifier" {
		t.Errorf("code_verifier = %q", te.form["code_verifier"])
	}
	if te.form["client_id"] != "web-client" {
		t.Errorf("client_id = %q", te.form["client_id"])
	}

	if ts.AccessToken != "at-1" || ts.RefreshToken != "rt-1" || ts.IDToken != "id-1" {
		t.Errorf("token set = %+v", ts)
	}
	if ts.ExpiresIn < 3590 || ts.ExpiresIn > 3600 {
		t.Errorf("expires_in = %d, want ~3600", ts.ExpiresIn)
	}
	if ts.Scope != "openid email" {
		t.Errorf("scope = %q", ts.Scope)
	}
}

func TestExchangeCodeUpstreamErrorVerbatim(t *testing.T) {
	te, srv := newTokenEndpoint(t)
	te.respond = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "authorization code has already been used",
		})
	}

	ex := NewExchanger(ExchangerConfig{TokenURL: srv.URL, ClientID: "web-client"})

	_, err := ex.ExchangeCode(context.Background(), "spent-code", "v")
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.Code != "invalid_grant" {
		t.Errorf("code = %q, want invalid_grant", ue.Code)
	}
	if ue.Description != "authorization code has already been used" {
		t.Errorf("description = %q", ue.Description)
	}
	if ue.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", ue.Status)
	}
}

func TestRefresh(t *testing.T) {
	te, srv := newTokenEndpoint(t)
	te.respond = func(w http.ResponseWriter, r *http.Request) {
		writeTokenResponse(w, map[string]any{
			"access_token":  "at-2",
			"token_type":    "bearer",
			"expires_in":    3600,
			"refresh_token": "rt-2",
		})
	}

	ex := NewExchanger(ExchangerConfig{TokenURL: srv.URL, ClientID: "web-client"})

	ts, err := ex.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if te.form["grant_type"] != "refresh_token" {
		t.Errorf("grant_type = %q", te.form["grant_type"])
	}
	if te.form["refresh_token"] != "rt-1" {
		t.Errorf("refresh_token = %q", te.form["refresh_token"])
	}
	if ts.AccessToken != "at-2" || ts.RefreshToken != "rt-2" {
		t.Errorf("token set = %+v", ts)
	}
}

func TestRefreshStripsEchoedToken(t *testing.T) {
	te, srv := newTokenEndpoint(t)
	te.respond = func(w http.ResponseWriter, r *http.Request) {
		// Server did not rotate: it echoes the refresh token it was given.
		writeTokenResponse(w, map[string]any{
			"access_token":  "at-2",
			"token_type":    "bearer",
			"refresh_token": "rt-1",
		})
	}

	ex := NewExchanger(ExchangerConfig{TokenURL: srv.URL, ClientID: "web-client"})

	ts, err := ex.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ts.RefreshToken != "" {
		t.Errorf("refresh_token = %q, want empty for an unrotated token", ts.RefreshToken)
	}
}

func TestRefreshMissingToken(t *testing.T) {
	te, srv := newTokenEndpoint(t)
	te.respond = func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint was called")
	}

	ex := NewExchanger(ExchangerConfig{TokenURL: srv.URL, ClientID: "web-client"})

	_, err := ex.Refresh(context.Background(), "")
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.Code != "invalid_request" || ue.Status != http.StatusBadRequest {
		t.Errorf("error = %+v", ue)
	}
	if te.calls != 0 {
		t.Errorf("token endpoint calls = %d, want 0", te.calls)
	}
}

func TestRefreshUpstreamRejection(t *testing.T) {
	te, srv := newTokenEndpoint(t)
	te.respond = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "token revoked",
		})
	}

	ex := NewExchanger(ExchangerConfig{TokenURL: srv.URL, ClientID: "web-client"})

	_, err := ex.Refresh(context.Background(), "revoked")
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.Code != "invalid_grant" || ue.Description != "token revoked" {
		t.Errorf("error = %+v", ue)
	}
}
