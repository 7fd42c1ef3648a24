package client

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultScope is requested when the relying party does not override it.
const DefaultScope = "openid email profile offline_access"

// ErrStateMismatch aborts a callback whose state differs from the one stored
// before the redirect. This is the CSRF defense; the flow is not retried.
var ErrStateMismatch = errors.New("authorization state mismatch")

// ErrNoPendingFlow indicates a callback arrived with no flow in progress.
var ErrNoPendingFlow = errors.New("no pending authorization flow")

// AuthorizeConfig holds what the request builder needs. Missing values are a
// deployment mistake caught at startup, not at redirect time.
type AuthorizeConfig struct {
	AuthURL     string
	ClientID    string
	RedirectURL string
	Scope       string
}

// Authorizer composes authorization requests and checks their callbacks.
type Authorizer struct {
	conf *oauth2.Config
}

// NewAuthorizer validates the configuration and returns a request builder.
func NewAuthorizer(cfg AuthorizeConfig) (*Authorizer, error) {
	if cfg.AuthURL == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("authorize config requires auth URL, client id, and redirect URL")
	}
	scope := cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}
	return &Authorizer{
		conf: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Endpoint:    oauth2.Endpoint{AuthURL: cfg.AuthURL},
			Scopes:      strings.Fields(scope),
		},
	}, nil
}

// Begin generates a PKCE pair, records the verifier and state on the session
// before any navigation happens, and returns the fully qualified authorize
// URL (response_type=code, client_id, redirect_uri, scope, state,
// code_challenge, code_challenge_method=S256).
func (a *Authorizer) Begin(sess *Session) (string, error) {
	pk, err := NewPKCE()
	if err != nil {
		return "", err
	}
	sess.BeginFlow(pk.Verifier, pk.State)

	return a.conf.AuthCodeURL(
		pk.State,
		oauth2.SetAuthURLParam("code_challenge", pk.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// ConsumeCallback takes the pending flow off the session and compares the
// returned state byte-for-byte against the stored one. The stored pair is
// deleted whatever the outcome; on mismatch the caller must not proceed to
// the token exchange.
func (a *Authorizer) ConsumeCallback(sess *Session, state string) (string, error) {
	verifier, stored, ok := sess.TakeFlow()
	if !ok {
		return "", ErrNoPendingFlow
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
		return "", ErrStateMismatch
	}
	return verifier, nil
}
