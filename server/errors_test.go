package server

import (
	"fmt"
	"net/http"
	"testing"

	"authbff/client"
)

func TestAsAPIErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{
			"api error passes through",
			badRequest("missing_challenge", "login_challenge query parameter is required"),
			"missing_challenge", http.StatusBadRequest,
		},
		{
			"wrapped challenge not found",
			fmt.Errorf("%w: login challenge", ErrChallengeNotFound),
			"unknown_challenge", http.StatusNotFound,
		},
		{
			"wrapped challenge used",
			fmt.Errorf("%w: consent challenge", ErrChallengeUsed),
			"challenge_expired", http.StatusGone,
		},
		{
			"upstream unavailable",
			fmt.Errorf("%w: connection refused", ErrUpstreamUnavailable),
			"service_unavailable", http.StatusServiceUnavailable,
		},
		{
			"token endpoint error verbatim",
			&client.UpstreamError{Code: "invalid_grant", Description: "code already used", Status: http.StatusBadRequest},
			"invalid_grant", http.StatusBadRequest,
		},
		{
			"unknown error is opaque",
			fmt.Errorf("something leaked"),
			"server_error", http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := asAPIError(tc.err)
			if apiErr.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tc.wantCode)
			}
			if apiErr.Status != tc.wantStatus {
				t.Errorf("status = %d, want %d", apiErr.Status, tc.wantStatus)
			}
		})
	}
}

func TestAsAPIErrorHidesInternalDetail(t *testing.T) {
	apiErr := asAPIError(fmt.Errorf("pq: connection reset by peer"))
	if apiErr.Description == "pq: connection reset by peer" {
		t.Error("internal error detail leaked to the client")
	}
}

func TestUpstreamErrorStatusFloor(t *testing.T) {
	// A malformed upstream status must not turn an error into a success.
	apiErr := asAPIError(&client.UpstreamError{Code: "invalid_grant", Status: http.StatusOK})
	if apiErr.Status < http.StatusBadRequest {
		t.Errorf("status = %d, want at least 400", apiErr.Status)
	}
}
