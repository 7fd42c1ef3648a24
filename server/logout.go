package server

import "net/http"

// handleLogout accepts a pending logout challenge unconditionally and sends
// the browser to the resulting redirect. Logout must never strand the user:
// a missing challenge or a failed accept falls back to the configured
// logged-out landing page instead of surfacing an error.
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	fallback := a.Config.Server.LoggedOutURL

	challenge := r.URL.Query().Get("logout_challenge")
	if challenge == "" {
		a.Logger.Warn("logout without challenge, using fallback redirect")
		a.logoutRedirect(w, r, fallback)
		return
	}

	redirect, err := a.Authz.AcceptLogoutRequest(r.Context(), challenge)
	if err != nil {
		a.Logger.Warn("logout accept failed, using fallback redirect", "error", err)
		a.logoutRedirect(w, r, fallback)
		return
	}

	a.Logger.Info("logout challenge accepted")
	a.logoutRedirect(w, r, redirect)
}

// logoutRedirect follows the redirect for browser navigations and returns it
// as JSON for XHR callers.
func (a *App) logoutRedirect(w http.ResponseWriter, r *http.Request, target string) {
	if r.Method == http.MethodGet {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	writeJSON(w, CompletedRequest{RedirectTo: target})
}
