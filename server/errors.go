package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"authbff/client"
)

// Sentinels for upstream outcomes; the web layer maps them to statuses.
var (
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrChallengeUsed       = errors.New("challenge already used or expired")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrIdentityNotFound    = errors.New("identity not found")
)

// APIError is the uniform error shape returned across the HTTP boundary.
type APIError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	Hint        string `json:"error_hint,omitempty"`
	Status      int    `json:"status_code"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Description
}

func badRequest(code, desc string) *APIError {
	return &APIError{Code: code, Description: desc, Status: http.StatusBadRequest}
}

// asAPIError converts internal failures into the wire shape. Handlers never
// build ad-hoc status codes; everything funnels through here.
func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var upstream *client.UpstreamError
	if errors.As(err, &upstream) {
		status := upstream.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		return &APIError{Code: upstream.Code, Description: upstream.Description, Status: status}
	}

	switch {
	case errors.Is(err, ErrChallengeNotFound):
		return &APIError{Code: "unknown_challenge", Description: "the challenge is not known to the authorization server", Status: http.StatusNotFound}
	case errors.Is(err, ErrChallengeUsed):
		return &APIError{Code: "challenge_expired", Description: "the challenge has already been used or has expired", Status: http.StatusGone}
	case errors.Is(err, ErrUpstreamUnavailable):
		return &APIError{
			Code:        "service_unavailable",
			Description: "an upstream service is unreachable",
			Hint:        "the request was not retried; try again",
			Status:      http.StatusServiceUnavailable,
		}
	default:
		return &APIError{Code: "server_error", Description: "an unexpected error occurred", Status: http.StatusInternalServerError}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	apiErr := asAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Warn("request rejected", "error", apiErr.Code, "status", apiErr.Status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(apiErr)
}
