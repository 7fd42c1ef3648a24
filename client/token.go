package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// UpstreamError carries the authorization server's error payload verbatim so
// callers can relay it without rewording.
type UpstreamError struct {
	Code        string
	Description string
	Status      int
}

func (e *UpstreamError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization server error: %s", e.Code)
	}
	return fmt.Sprintf("authorization server error: %s: %s", e.Code, e.Description)
}

// ExchangerConfig configures the token endpoint client.
type ExchangerConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

// Exchanger talks to the token endpoint for the authorization_code and
// refresh_token grants. Neither operation is ever retried automatically:
// codes are single-use and a failed refresh is terminal for the session.
type Exchanger struct {
	conf   *oauth2.Config
	client *http.Client
}

// NewExchanger builds an Exchanger. Public clients (no secret) authenticate
// with client_id in the form body.
func NewExchanger(cfg ExchangerConfig) *Exchanger {
	authStyle := oauth2.AuthStyleInHeader
	if cfg.ClientSecret == "" {
		authStyle = oauth2.AuthStyleInParams
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Exchanger{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: authStyle,
			},
		},
		client: client,
	}
}

// ExchangeCode swaps an authorization code plus PKCE verifier for a token
// set. A non-2xx response surfaces the server's error/error_description
// untouched; the code is spent either way, so the caller must not repeat the
// call expecting success.
func (e *Exchanger) ExchangeCode(ctx context.Context, code, codeVerifier string) (TokenSet, error) {
	tok, err := e.conf.Exchange(e.httpContext(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return TokenSet{}, normalizeTokenError(err)
	}
	return tokenSetFromOAuth2(tok), nil
}

// Refresh exchanges a refresh token for a fresh token set. Failure here means
// the session is over; callers clear their store and send the user back
// through login rather than retrying.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	if refreshToken == "" {
		return TokenSet{}, &UpstreamError{Code: "invalid_request", Description: "missing refresh_token", Status: http.StatusBadRequest}
	}
	src := e.conf.TokenSource(e.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return TokenSet{}, normalizeTokenError(err)
	}
	ts := tokenSetFromOAuth2(tok)
	// The oauth2 package echoes the old refresh token when the server did
	// not rotate it; strip the echo so the store's retention rule decides.
	if ts.RefreshToken == refreshToken {
		ts.RefreshToken = ""
	}
	return ts, nil
}

func (e *Exchanger) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.client)
}

func tokenSetFromOAuth2(tok *oauth2.Token) TokenSet {
	ts := TokenSet{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}
	if ts.TokenType == "" {
		ts.TokenType = "bearer"
	}
	if ts.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		ts.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = idToken
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		ts.Scope = scope
	}
	return ts
}

// normalizeTokenError lifts oauth2 retrieval failures into UpstreamError so
// the server's wording travels intact. Transport-level failures pass through
// unchanged for the caller's unavailable-mapping.
func normalizeTokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	ue := &UpstreamError{
		Code:        re.ErrorCode,
		Description: re.ErrorDescription,
	}
	if re.Response != nil {
		ue.Status = re.Response.StatusCode
	}
	if ue.Code == "" {
		ue.Code = "invalid_grant"
		ue.Description = string(re.Body)
	}
	return ue
}
