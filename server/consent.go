package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
)

// ConsentView is the decision detail returned to the scope-selection UI.
type ConsentView struct {
	Challenge      string     `json:"challenge"`
	Client         ClientInfo `json:"client"`
	Subject        string     `json:"subject"`
	RequestedScope []string   `json:"requested_scope"`
}

type consentSubmission struct {
	Grant      bool     `json:"grant"`
	GrantScope []string `json:"grant_scope,omitempty"`
	Remember   bool     `json:"remember"`
}

// consentFlow fetches the pending consent request and decides the next
// state. A non-empty redirect means the challenge was auto-accepted with the
// previously requested scopes; otherwise the view awaits a decision.
func (a *App) consentFlow(ctx context.Context, challenge string) (*ConsentView, string, error) {
	req, err := a.Authz.GetConsentRequest(ctx, challenge)
	if err != nil {
		return nil, "", err
	}

	if req.Skip {
		redirect, err := a.acceptConsent(ctx, req, req.RequestedScope, false)
		if err != nil {
			return nil, "", err
		}
		a.Logger.Info("consent challenge auto-accepted", "subject", req.Subject, "client", req.Client.ClientID)
		return nil, redirect, nil
	}

	return &ConsentView{
		Challenge:      req.Challenge,
		Client:         req.Client,
		Subject:        req.Subject,
		RequestedScope: req.RequestedScope,
	}, "", nil
}

// decideConsent resolves a consent challenge with the user's decision.
func (a *App) decideConsent(ctx context.Context, challenge string, decision consentSubmission) (string, error) {
	if !decision.Grant {
		a.Logger.Info("consent denied")
		return a.Authz.RejectConsentRequest(ctx, challenge, RejectChallenge{
			Error:            "access_denied",
			ErrorDescription: "the resource owner denied the request",
			StatusCode:       http.StatusForbidden,
		})
	}

	req, err := a.Authz.GetConsentRequest(ctx, challenge)
	if err != nil {
		return "", err
	}

	granted := grantedScopes(req.RequestedScope, decision.GrantScope)
	return a.acceptConsent(ctx, req, granted, decision.Remember)
}

func (a *App) acceptConsent(ctx context.Context, req *ConsentRequest, granted []string, remember bool) (string, error) {
	claims := a.buildSessionClaims(ctx, req.Subject, granted)

	accept := AcceptConsent{
		GrantScope:    granted,
		GrantAudience: req.RequestedAudience,
		Remember:      remember,
		Session: ConsentSession{
			IDToken:     claims,
			AccessToken: claims,
		},
	}
	if remember {
		accept.RememberFor = a.Config.Authz.RememberFor
	}

	return a.Authz.AcceptConsentRequest(ctx, req.Challenge, accept)
}

// buildSessionClaims accumulates token claims from the subject's identity
// traits, gated by granted scope. An identity lookup failure leaves the
// accumulator empty rather than blocking consent: a provider hiccup costs
// claims, not the whole flow, and the failure is logged for observability.
func (a *App) buildSessionClaims(ctx context.Context, subject string, granted []string) map[string]any {
	claims := map[string]any{}

	identity, err := a.Identity.GetIdentity(ctx, subject)
	if err != nil {
		a.Logger.Warn("identity lookup failed during consent, proceeding without claims",
			"subject", subject, "error", err)
		return claims
	}

	if slices.Contains(granted, "email") && identity.Traits.Email != "" {
		claims["email"] = identity.Traits.Email
		claims["email_verified"] = true
	}
	if slices.Contains(granted, "profile") && identity.Traits.Name != nil {
		name := identity.Traits.Name
		claims["name"] = name.First + " " + name.Last
		claims["given_name"] = name.First
		claims["family_name"] = name.Last
	}

	return claims
}

// grantedScopes returns the scopes to grant: the submitted set when present,
// otherwise everything that was requested. Submitted scopes are filtered
// against the requested set so a grant can never widen the request.
func grantedScopes(requested, submitted []string) []string {
	if len(submitted) == 0 {
		return requested
	}
	granted := make([]string, 0, len(submitted))
	for _, scope := range submitted {
		if slices.Contains(requested, scope) {
			granted = append(granted, scope)
		}
	}
	return granted
}

func (a *App) handleConsentGet(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("consent_challenge")
	if challenge == "" {
		writeError(w, a.Logger, badRequest("missing_challenge", "consent_challenge query parameter is required"))
		return
	}

	view, redirect, err := a.consentFlow(r.Context(), challenge)
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

func (a *App) handleConsentPost(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("consent_challenge")
	if challenge == "" {
		writeError(w, a.Logger, badRequest("missing_challenge", "consent_challenge query parameter is required"))
		return
	}

	var decision consentSubmission
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		writeError(w, a.Logger, badRequest("invalid_request", "request body is not valid JSON"))
		return
	}

	redirect, err := a.decideConsent(r.Context(), challenge, decision)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, CompletedRequest{RedirectTo: redirect})
}
