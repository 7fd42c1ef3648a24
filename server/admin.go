package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"
)

// AdminProxy forwards /admin/identities requests to the identity provider's
// admin API. The router mounts it behind the bearer-token guard; the proxy
// itself only rewrites paths and headers.
type AdminProxy struct {
	proxy  *httputil.ReverseProxy
	logger *slog.Logger
}

// NewAdminProxy builds the passthrough from the identity configuration.
func NewAdminProxy(cfg IdentityConfig, logger *slog.Logger) (*AdminProxy, error) {
	target, err := url.Parse(cfg.AdminURL)
	if err != nil {
		return nil, fmt.Errorf("invalid identity admin URL: %w", err)
	}

	timeout, _ := cfg.timeout()
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)

		// /admin/identities/... on the BFF maps to /identities/... upstream.
		req.URL.Path = strings.TrimPrefix(req.URL.Path, "/admin")
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
		req.Host = target.Host

		if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			prior := req.Header.Get("X-Forwarded-For")
			if prior != "" {
				clientIP = prior + ", " + clientIP
			}
			req.Header.Set("X-Forwarded-For", clientIP)
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("admin passthrough error", "path", r.URL.Path, "error", err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}

	return &AdminProxy{proxy: proxy, logger: logger}, nil
}

// ServeHTTP implements http.Handler.
func (p *AdminProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.logger.Debug("proxying admin request", "method", r.Method, "path", r.URL.Path)
	p.proxy.ServeHTTP(w, r)
}
