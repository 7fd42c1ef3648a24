package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoIDToken indicates claims were requested before any ID token arrived.
var ErrNoIDToken = errors.New("no id_token in session")

// TokenSet mirrors the token endpoint response payload.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// UserClaims is the subset of ID token claims the applications display.
type UserClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// Session owns the token set for one browser session. It is the single
// holder of the tokens and of the pending-flow verifier/state pair; callers
// pass it by handle rather than reaching into shared globals.
type Session struct {
	mu     sync.Mutex
	tokens *TokenSet
	claims *UserClaims

	// Pending authorization flow, written before the redirect to the
	// authorization endpoint and consumed exactly once by the callback.
	flowVerifier string
	flowState    string
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// SetTokens stores a token set, merging defensively: an absent refresh token
// keeps the previous one (rotation is not assumed), and an absent ID token
// keeps the previous claims. A malformed ID token is reported as a decode
// error but the token set is stored regardless.
func (s *Session) SetTokens(ts TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts.RefreshToken == "" && s.tokens != nil {
		ts.RefreshToken = s.tokens.RefreshToken
	}
	if ts.IDToken == "" && s.tokens != nil {
		ts.IDToken = s.tokens.IDToken
	}

	stored := ts
	s.tokens = &stored

	if ts.IDToken == "" {
		s.claims = nil
		return nil
	}

	claims, err := DecodeIDTokenClaims(ts.IDToken)
	if err != nil {
		s.claims = nil
		return fmt.Errorf("decode id_token claims: %w", err)
	}
	s.claims = claims
	return nil
}

// Tokens returns a copy of the current token set, or nil when logged out.
func (s *Session) Tokens() *TokenSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return nil
	}
	ts := *s.tokens
	return &ts
}

// Claims returns the claims derived from the most recent ID token.
func (s *Session) Claims() (*UserClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims == nil {
		return nil, ErrNoIDToken
	}
	c := *s.claims
	return &c, nil
}

// Clear drops tokens, claims, and any pending flow.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
	s.claims = nil
	s.flowVerifier = ""
	s.flowState = ""
}

// BeginFlow records the verifier/state pair for the flow about to redirect.
// A second flow started in the same session overwrites the first; the stale
// tab's callback then fails the state comparison.
func (s *Session) BeginFlow(verifier, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowVerifier = verifier
	s.flowState = state
}

// TakeFlow consumes the pending verifier/state pair. It returns ok=false when
// no flow is pending; the pair is deleted regardless of what the caller does
// with it.
func (s *Session) TakeFlow() (verifier, state string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	verifier, state = s.flowVerifier, s.flowState
	ok = state != ""
	s.flowVerifier = ""
	s.flowState = ""
	return verifier, state, ok
}

// DecodeIDTokenClaims extracts user claims from the payload segment of a JWT
// without verifying its signature. Verification, when wanted, happens via the
// issuer's verifier; this decode only feeds display claims. Wrong segment
// count, bad base64, and bad JSON all surface as errors.
func DecodeIDTokenClaims(raw string) (*UserClaims, error) {
	var claims idTokenClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, err
	}
	return &UserClaims{
		Subject:       claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}, nil
}

type idTokenClaims struct {
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

// SessionStore maps opaque cookie values to sessions for a web relying party.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore constructs an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create registers a new session and returns its ID for the cookie.
func (st *SessionStore) Create() (string, *Session) {
	id := uuid.NewString()
	sess := NewSession()
	st.mu.Lock()
	st.sessions[id] = sess
	st.mu.Unlock()
	return id, sess
}

// Get returns the session for a cookie value.
func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// Delete removes a session on logout.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}
