package server

import (
	"encoding/json"
	"net/http"
)

type tokenRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleToken exchanges an authorization code plus PKCE verifier for a token
// set on behalf of the frontend. Codes are single-use: a failed exchange is
// returned verbatim, never retried.
func (a *App) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, a.Logger, badRequest("invalid_request", "request body is not valid JSON"))
		return
	}
	if req.Code == "" {
		writeError(w, a.Logger, badRequest("invalid_request", "code is required"))
		return
	}
	if req.CodeVerifier == "" {
		writeError(w, a.Logger, badRequest("invalid_request", "code_verifier is required"))
		return
	}

	tokens, err := a.Exchanger.ExchangeCode(r.Context(), req.Code, req.CodeVerifier)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, tokens)
}

// handleRefresh trades a refresh token for a fresh token set. A missing
// token is rejected before any upstream call; a failed refresh is terminal
// for the caller's session.
func (a *App) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, a.Logger, badRequest("invalid_request", "request body is not valid JSON"))
		return
	}
	if req.RefreshToken == "" {
		writeError(w, a.Logger, badRequest("invalid_request", "refresh_token is required"))
		return
	}

	tokens, err := a.Exchanger.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, tokens)
}
