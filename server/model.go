package server

// ClientInfo identifies the OAuth2 client that started a flow, as reported
// on the challenge payload.
type ClientInfo struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name,omitempty"`
	LogoURI    string `json:"logo_uri,omitempty"`
}

// LoginRequest is a pending login challenge fetched from the authorization
// server. Skip means the server judged the subject already authenticated.
type LoginRequest struct {
	Challenge         string     `json:"challenge"`
	Skip              bool       `json:"skip"`
	Subject           string     `json:"subject"`
	Client            ClientInfo `json:"client"`
	RequestedScope    []string   `json:"requested_scope"`
	RequestedAudience []string   `json:"requested_access_token_audience"`
}

// ConsentRequest is a pending consent challenge.
type ConsentRequest struct {
	Challenge         string     `json:"challenge"`
	Skip              bool       `json:"skip"`
	Subject           string     `json:"subject"`
	Client            ClientInfo `json:"client"`
	RequestedScope    []string   `json:"requested_scope"`
	RequestedAudience []string   `json:"requested_access_token_audience"`
}

// LogoutRequest is a pending logout challenge.
type LogoutRequest struct {
	Challenge string `json:"challenge"`
	Subject   string `json:"subject"`
}

// AcceptLogin is the accept payload for a login challenge.
type AcceptLogin struct {
	Subject     string `json:"subject"`
	Remember    bool   `json:"remember"`
	RememberFor int64  `json:"remember_for,omitempty"`
}

// AcceptConsent is the accept payload for a consent challenge.
type AcceptConsent struct {
	GrantScope    []string       `json:"grant_scope"`
	GrantAudience []string       `json:"grant_access_token_audience"`
	Remember      bool           `json:"remember"`
	RememberFor   int64          `json:"remember_for,omitempty"`
	Session       ConsentSession `json:"session"`
}

// ConsentSession carries the claims to embed in issued tokens.
type ConsentSession struct {
	IDToken     map[string]any `json:"id_token,omitempty"`
	AccessToken map[string]any `json:"access_token,omitempty"`
}

// RejectChallenge is the reject payload shared by login and consent.
type RejectChallenge struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	StatusCode       int    `json:"status_code,omitempty"`
}

// CompletedRequest is what accept/reject calls return: the URL the browser
// must follow next.
type CompletedRequest struct {
	RedirectTo string `json:"redirect_to"`
}

// Identity is the normalized view of an identity-provider record.
type Identity struct {
	ID     string         `json:"id"`
	Traits IdentityTraits `json:"traits"`
}

// IdentityTraits holds the profile attributes consent claims are built from.
type IdentityTraits struct {
	Email string      `json:"email"`
	Name  *NameTraits `json:"name,omitempty"`
}

// NameTraits splits a display name the way the identity schema stores it.
type NameTraits struct {
	First string `json:"first"`
	Last  string `json:"last"`
}
