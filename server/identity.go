package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// IdentityClient talks to the identity provider's admin API: credential
// verification and identity lookup. Credentials pass through once and are
// never stored or logged.
type IdentityClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewIdentityClient builds the identity client from configuration.
func NewIdentityClient(cfg IdentityConfig, logger *slog.Logger) *IdentityClient {
	timeout, _ := cfg.timeout()
	return &IdentityClient{
		baseURL: strings.TrimSuffix(cfg.AdminURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// CheckPassword verifies an email/password pair and returns the matching
// identity. A wrong pair is ErrInvalidCredentials; the caller decides what
// rejection looks like.
func (c *IdentityClient) CheckPassword(ctx context.Context, email, password string) (*Identity, error) {
	payload, err := json.Marshal(map[string]string{
		"identifier": email,
		"password":   password,
	})
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions/password", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build password check: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("identity provider unreachable", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("identity provider returned status %d for password check", resp.StatusCode)
	}

	var body struct {
		Identity Identity `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode password check response: %w", err)
	}
	if body.Identity.ID == "" {
		return nil, fmt.Errorf("identity provider response missing identity id")
	}
	return &body.Identity, nil
}

// GetIdentity looks up an identity by its stable id.
func (c *IdentityClient) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	endpoint := c.baseURL + "/identities/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build identity lookup: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("identity provider unreachable", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, id)
	default:
		return nil, fmt.Errorf("identity provider returned status %d for identity lookup", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &identity, nil
}
