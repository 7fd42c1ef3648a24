package server

import (
	"fmt"
	"log/slog"

	"authbff/client"
)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config     Config
	Logger     *slog.Logger
	Authz      *AuthzClient
	Identity   *IdentityClient
	Exchanger  *client.Exchanger
	Validator  *client.Validator
	AdminProxy *AdminProxy
}

// NewApp wires together the application state from configuration.
func NewApp(cfg Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Authz:    NewAuthzClient(cfg.Authz, logger),
		Identity: NewIdentityClient(cfg.Identity, logger),
		Exchanger: client.NewExchanger(client.ExchangerConfig{
			TokenURL:     cfg.Authz.TokenURL,
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			RedirectURL:  cfg.OAuth2.RedirectURL,
		}),
	}

	if cfg.Admin.Enabled {
		app.Validator = client.NewValidator(client.ValidatorConfig{
			Issuer:            cfg.Authz.PublicURL,
			JWKSURL:           cfg.Authz.JWKSURL,
			ExpectedAudiences: cfg.Admin.Audiences,
		})
		proxy, err := NewAdminProxy(cfg.Identity, logger)
		if err != nil {
			return nil, fmt.Errorf("init admin proxy: %w", err)
		}
		app.AdminProxy = proxy
	}

	return app, nil
}
