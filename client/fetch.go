package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrNotAuthenticated is returned when a request is attempted with no token
// in the session. No network call is made.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrReauthRequired is terminal: the refresh token was rejected, the session
// has been cleared, and the user must log in again.
var ErrReauthRequired = errors.New("re-authentication required")

// Fetcher attaches the session's bearer token to outbound requests. On a 401
// it performs exactly one refresh-and-retry cycle; a second 401 comes back to
// the caller as-is. This bound is what keeps a revoked refresh token from
// turning into a 401/refresh loop.
type Fetcher struct {
	session   *Session
	exchanger *Exchanger
	client    *http.Client
	logger    *slog.Logger
}

// NewFetcher wires a fetcher to one session. A nil httpClient falls back to
// http.DefaultClient.
func NewFetcher(sess *Session, exchanger *Exchanger, httpClient *http.Client, logger *slog.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{session: sess, exchanger: exchanger, client: httpClient, logger: logger}
}

// Do performs the request with the current access token. The request body,
// if any, must be replayable (GetBody set) for the single retry to work;
// requests built with http.NewRequest around byte readers satisfy this.
func (f *Fetcher) Do(req *http.Request) (*http.Response, error) {
	ts := f.session.Tokens()
	if ts == nil || ts.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}

	resp, err := f.send(req, ts.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One refresh cycle, then one retry. Never loop.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	refreshed, err := f.refresh(req.Context(), ts.RefreshToken)
	if err != nil {
		return nil, err
	}

	return f.send(req, refreshed.AccessToken)
}

func (f *Fetcher) send(req *http.Request, token string) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		clone.Body = body
	}
	clone.Header.Set("Authorization", "Bearer "+token)
	return f.client.Do(clone)
}

func (f *Fetcher) refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	if refreshToken == "" {
		f.session.Clear()
		return TokenSet{}, ErrReauthRequired
	}

	refreshed, err := f.exchanger.Refresh(ctx, refreshToken)
	if err != nil {
		f.logger.Warn("token refresh failed", "error", err)
		f.session.Clear()
		return TokenSet{}, fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}

	if err := f.session.SetTokens(refreshed); err != nil {
		// Claims decode failure does not invalidate the refreshed tokens.
		f.logger.Warn("claims derivation failed after refresh", "error", err)
	}

	ts := f.session.Tokens()
	if ts == nil {
		return TokenSet{}, ErrReauthRequired
	}
	return *ts, nil
}
