package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"authbff/client"
)

// Routes constructs the HTTP router with all BFF endpoints.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.Config.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", a.handleHealth)

	r.Get("/oauth2/login", a.handleLoginGet)
	r.Post("/oauth2/login", a.handleLoginPost)
	r.Get("/oauth2/consent", a.handleConsentGet)
	r.Post("/oauth2/consent", a.handleConsentPost)
	r.Get("/oauth2/logout", a.handleLogout)
	r.Post("/oauth2/logout", a.handleLogout)

	r.Post("/api/auth/token", a.handleToken)
	r.Post("/api/auth/refresh", a.handleRefresh)

	if a.AdminProxy != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(client.RequireAuth(a.Validator, a.Config.Admin.RequiredScope))
			r.Handle("/identities", a.AdminProxy)
			r.Handle("/identities/*", a.AdminProxy)
		})
	}

	return r
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
