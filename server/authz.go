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

// AuthzClient wraps the authorization server's challenge admin API: fetching
// pending login/consent/logout requests and accepting or rejecting them.
// Challenges are single-use upstream, so none of these calls is retried; a
// second accept or reject for the same challenge is an error, not a redo.
type AuthzClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewAuthzClient builds the admin client from configuration.
func NewAuthzClient(cfg AuthzConfig, logger *slog.Logger) *AuthzClient {
	timeout, _ := cfg.timeout()
	return &AuthzClient{
		baseURL: strings.TrimSuffix(cfg.AdminURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// GetLoginRequest fetches a pending login challenge.
func (c *AuthzClient) GetLoginRequest(ctx context.Context, challenge string) (*LoginRequest, error) {
	var out LoginRequest
	if err := c.get(ctx, "login", challenge, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptLoginRequest resolves a login challenge and returns the redirect URL.
func (c *AuthzClient) AcceptLoginRequest(ctx context.Context, challenge string, body AcceptLogin) (string, error) {
	return c.put(ctx, "login", "accept", challenge, body)
}

// RejectLoginRequest rejects a login challenge and returns the redirect URL.
func (c *AuthzClient) RejectLoginRequest(ctx context.Context, challenge string, body RejectChallenge) (string, error) {
	return c.put(ctx, "login", "reject", challenge, body)
}

// GetConsentRequest fetches a pending consent challenge.
func (c *AuthzClient) GetConsentRequest(ctx context.Context, challenge string) (*ConsentRequest, error) {
	var out ConsentRequest
	if err := c.get(ctx, "consent", challenge, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptConsentRequest resolves a consent challenge.
func (c *AuthzClient) AcceptConsentRequest(ctx context.Context, challenge string, body AcceptConsent) (string, error) {
	return c.put(ctx, "consent", "accept", challenge, body)
}

// RejectConsentRequest rejects a consent challenge.
func (c *AuthzClient) RejectConsentRequest(ctx context.Context, challenge string, body RejectChallenge) (string, error) {
	return c.put(ctx, "consent", "reject", challenge, body)
}

// GetLogoutRequest fetches a pending logout challenge.
func (c *AuthzClient) GetLogoutRequest(ctx context.Context, challenge string) (*LogoutRequest, error) {
	var out LogoutRequest
	if err := c.get(ctx, "logout", challenge, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptLogoutRequest resolves a logout challenge.
func (c *AuthzClient) AcceptLogoutRequest(ctx context.Context, challenge string) (string, error) {
	return c.put(ctx, "logout", "accept", challenge, struct{}{})
}

func (c *AuthzClient) get(ctx context.Context, kind, challenge string, out any) error {
	endpoint := fmt.Sprintf("%s/oauth2/auth/requests/%s?%s", c.baseURL, kind, challengeQuery(kind, challenge))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", kind, err)
	}
	return c.do(req, kind, out)
}

func (c *AuthzClient) put(ctx context.Context, kind, action, challenge string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode %s %s: %w", kind, action, err)
	}

	endpoint := fmt.Sprintf("%s/oauth2/auth/requests/%s/%s?%s", c.baseURL, kind, action, challengeQuery(kind, challenge))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build %s %s: %w", kind, action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var completed CompletedRequest
	if err := c.do(req, kind, &completed); err != nil {
		return "", err
	}
	if completed.RedirectTo == "" {
		return "", fmt.Errorf("%s %s: response missing redirect_to", kind, action)
	}
	return completed.RedirectTo, nil
}

func (c *AuthzClient) do(req *http.Request, kind string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("authorization server unreachable", "kind", kind, "error", err)
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, kind)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", kind, err)
	}
	return nil
}

// statusError maps upstream statuses onto the challenge lifecycle: 404 is an
// unknown challenge, 409/410 one that was already decided.
func (c *AuthzClient) statusError(resp *http.Response, kind string) error {
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s challenge", ErrChallengeNotFound, kind)
	case http.StatusConflict, http.StatusGone:
		return fmt.Errorf("%w: %s challenge", ErrChallengeUsed, kind)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	default:
		if body.Error != "" {
			return fmt.Errorf("authorization server rejected %s request: %s: %s", kind, body.Error, body.ErrorDescription)
		}
		return fmt.Errorf("authorization server returned status %d for %s request", resp.StatusCode, kind)
	}
}

func challengeQuery(kind, challenge string) string {
	q := url.Values{}
	q.Set(kind+"_challenge", challenge)
	return q.Encode()
}
