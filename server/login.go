package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// LoginView is the prompt detail returned to the credential-collecting UI
// when the authorization server wants user interaction.
type LoginView struct {
	Challenge      string     `json:"challenge"`
	Client         ClientInfo `json:"client"`
	RequestedScope []string   `json:"requested_scope"`
}

// loginDecision is the tagged form of the login POST body: the wire shape is
// either a skip directive or a credentials submission, decoded once at the
// boundary into exactly one of the two.
type loginDecision interface{ isLoginDecision() }

type skipLogin struct {
	Subject string
}

type credentialsLogin struct {
	Email    string
	Password string
	Remember bool
}

func (skipLogin) isLoginDecision()        {}
func (credentialsLogin) isLoginDecision() {}

type loginSubmission struct {
	Skip     bool   `json:"skip"`
	Subject  string `json:"subject"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (s loginSubmission) decision() (loginDecision, error) {
	if s.Skip {
		if s.Subject == "" {
			return nil, badRequest("invalid_request", "skip requires a subject")
		}
		return skipLogin{Subject: s.Subject}, nil
	}
	if s.Email == "" || s.Password == "" {
		return nil, badRequest("invalid_request", "email and password are required")
	}
	return credentialsLogin{Email: s.Email, Password: s.Password, Remember: s.Remember}, nil
}

// loginFlow fetches the pending login request and decides the next state:
// a non-empty redirect means the challenge was auto-accepted (skip) and the
// flow is terminal; otherwise the returned view awaits credentials. The
// redirect itself is the caller's job, keeping this read path side-effect
// free from the HTTP layer's point of view.
func (a *App) loginFlow(ctx context.Context, challenge string) (*LoginView, string, error) {
	req, err := a.Authz.GetLoginRequest(ctx, challenge)
	if err != nil {
		return nil, "", err
	}

	if req.Skip {
		redirect, err := a.Authz.AcceptLoginRequest(ctx, challenge, AcceptLogin{
			Subject:  req.Subject,
			Remember: false,
		})
		if err != nil {
			return nil, "", err
		}
		a.Logger.Info("login challenge auto-accepted", "subject", req.Subject, "client", req.Client.ClientID)
		return nil, redirect, nil
	}

	return &LoginView{
		Challenge:      req.Challenge,
		Client:         req.Client,
		RequestedScope: req.RequestedScope,
	}, "", nil
}

// decideLogin resolves a fetched login challenge with the submitted decision
// and returns the redirect the browser must follow. Failed credential checks
// reject the challenge upstream rather than accepting anything, so the
// authorization server's audit trail records the refusal.
func (a *App) decideLogin(ctx context.Context, challenge string, decision loginDecision) (string, error) {
	switch d := decision.(type) {
	case skipLogin:
		return a.Authz.AcceptLoginRequest(ctx, challenge, AcceptLogin{
			Subject:  d.Subject,
			Remember: false,
		})

	case credentialsLogin:
		identity, err := a.Identity.CheckPassword(ctx, d.Email, d.Password)
		if errors.Is(err, ErrInvalidCredentials) {
			a.Logger.Info("login rejected", "reason", "invalid_credentials")
			return a.Authz.RejectLoginRequest(ctx, challenge, RejectChallenge{
				Error:            "invalid_credentials",
				ErrorDescription: "the provided credentials are invalid",
				StatusCode:       http.StatusUnauthorized,
			})
		}
		if err != nil {
			return "", err
		}

		accept := AcceptLogin{Subject: identity.ID, Remember: d.Remember}
		if d.Remember {
			accept.RememberFor = a.Config.Authz.RememberFor
		}
		a.Logger.Info("login accepted", "subject", identity.ID, "remember", d.Remember)
		return a.Authz.AcceptLoginRequest(ctx, challenge, accept)

	default:
		return "", badRequest("invalid_request", "unsupported login decision")
	}
}

func (a *App) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("login_challenge")
	if challenge == "" {
		writeError(w, a.Logger, badRequest("missing_challenge", "login_challenge query parameter is required"))
		return
	}

	view, redirect, err := a.loginFlow(r.Context(), challenge)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	if redirect != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}
	writeJSON(w, view)
}

func (a *App) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("login_challenge")
	if challenge == "" {
		writeError(w, a.Logger, badRequest("missing_challenge", "login_challenge query parameter is required"))
		return
	}

	var submission loginSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		writeError(w, a.Logger, badRequest("invalid_request", "request body is not valid JSON"))
		return
	}
	decision, err := submission.decision()
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}

	redirect, err := a.decideLogin(r.Context(), challenge, decision)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, CompletedRequest{RedirectTo: redirect})
}
