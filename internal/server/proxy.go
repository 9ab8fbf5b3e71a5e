package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"allenchat/internal/auth"
	"allenchat/internal/config"
	"allenchat/internal/endpoint"
	"allenchat/internal/provider"
)

// image uploads are proxied as-is
const maxProxyBody = "16M"

type proxyMount struct {
	prefix  string
	target  string
	apiKey  string
	headers config.Headers
}

func proxyMounts(cfg config.Config) []proxyMount {
	allen := cfg.Providers.Allen
	openai := cfg.Providers.OpenAI
	return []proxyMount{
		{prefix: endpoint.ProxyPathAllen, target: allen.BaseURL, apiKey: allen.APIKey, headers: allen.Headers},
		{prefix: endpoint.AppProxyPathAllen, target: allen.BaseURL, apiKey: allen.APIKey, headers: allen.Headers},
		{prefix: endpoint.ProxyPathOpenAI, target: openai.BaseURL, apiKey: openai.APIKey, headers: openai.Headers},
		{prefix: endpoint.AppProxyPathOpenAI, target: openai.BaseURL, apiKey: openai.APIKey, headers: openai.Headers},
	}
}

func (s *Server) registerProxies() error {
	for _, mount := range proxyMounts(s.cfg) {
		if mount.target == "" {
			slog.Warn("no upstream configured, proxy disabled", "prefix", mount.prefix)
			continue
		}
		target, err := url.Parse(mount.target)
		if err != nil {
			return fmt.Errorf("parse upstream for %s: %w", mount.prefix, err)
		}

		group := s.app.Group(mount.prefix)
		if s.cfg.Auth.RequireUser {
			group.Use(auth.RequireUser(s.verifier))
		}
		group.Use(
			middleware.BodyLimit(maxProxyBody),
			accessControl(s.cfg.Auth, mount.apiKey),
			upstreamRequest(target, mount.headers),
			middleware.ProxyWithConfig(middleware.ProxyConfig{
				Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{
					{Name: mount.prefix, URL: target},
				}),
				Rewrite: map[string]string{
					mount.prefix + "/*": "/$1",
				},
			}),
		)
	}
	return nil
}

// accessControl enforces access codes on proxied requests. A valid nk- code
// is swapped for the server's own key.
func accessControl(cfg config.AuthConfig, serverKey string) echo.MiddlewareFunc {
	codes := make(map[string]struct{}, len(cfg.AccessCodes))
	for _, code := range cfg.AccessCodes {
		if code = strings.TrimSpace(code); code != "" {
			codes[code] = struct{}{}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			token := strings.TrimSpace(strings.TrimPrefix(req.Header.Get(echo.HeaderAuthorization), "Bearer "))

			switch {
			case strings.HasPrefix(token, provider.AccessCodePrefix):
				if _, ok := codes[strings.TrimPrefix(token, provider.AccessCodePrefix)]; !ok {
					return requestError{
						Status:  http.StatusUnauthorized,
						Message: "wrong access code",
						Type:    "invalid_request_error",
						Code:    "invalid_access_code",
					}
				}
				setUpstreamKey(req, serverKey)
			case token != "":
				if cfg.HideUserAPIKey {
					return requestError{
						Status:  http.StatusForbidden,
						Message: "you are not allowed to use your own api key",
						Type:    "invalid_request_error",
						Code:    "user_api_key_forbidden",
					}
				}
			default:
				if len(codes) > 0 {
					return requestError{
						Status:  http.StatusUnauthorized,
						Message: "access code required",
						Type:    "invalid_request_error",
						Code:    "missing_access_code",
					}
				}
				setUpstreamKey(req, serverKey)
			}
			return next(c)
		}
	}
}

func setUpstreamKey(req *http.Request, key string) {
	if key == "" {
		req.Header.Del(echo.HeaderAuthorization)
		return
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+key)
}

// upstreamRequest prepares a request for forwarding: the Host header follows
// the target and client-only headers are dropped.
func upstreamRequest(target *url.URL, headers config.Headers) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			req.Host = target.Host
			req.Header.Del(auth.TokenHeader)
			req.Header.Del("X-Requested-With")
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			return next(c)
		}
	}
}
