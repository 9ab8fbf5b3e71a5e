package server

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' https://www.gstatic.com; " +
	"connect-src 'self' https://*.googleapis.com; " +
	"img-src 'self' data:; style-src 'self' 'unsafe-inline'; " +
	"frame-ancestors 'none'"

//go:embed templates/*.html
var templateFS embed.FS

type shellRenderer struct {
	templates *template.Template
}

func newShellRenderer() (*shellRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	return &shellRenderer{templates: tmpl}, nil
}

func (r *shellRenderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

type firebaseWebConfig struct {
	APIKey     string `json:"apiKey"`
	AuthDomain string `json:"authDomain"`
	ProjectID  string `json:"projectId"`
}

type clientConfig struct {
	Platform       string            `json:"platform"`
	NeedCode       bool              `json:"needCode"`
	HideUserAPIKey bool              `json:"hideUserApiKey"`
	RequireUser    bool              `json:"requireUser"`
	Firebase       firebaseWebConfig `json:"firebase"`
}

type shellData struct {
	Title     string
	Client    clientConfig
	Analytics bool
}

func (s *Server) clientConfig() clientConfig {
	fb := s.cfg.Auth.Firebase
	return clientConfig{
		Platform:       s.cfg.Client.Platform,
		NeedCode:       len(s.cfg.Auth.AccessCodes) > 0,
		HideUserAPIKey: s.cfg.Auth.HideUserAPIKey,
		RequireUser:    s.cfg.Auth.RequireUser,
		Firebase: firebaseWebConfig{
			APIKey:     fb.APIKey,
			AuthDomain: fb.AuthDomain,
			ProjectID:  fb.ProjectID,
		},
	}
}

func (s *Server) handleShell(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", shellData{
		Title:     "Allen Chat",
		Client:    s.clientConfig(),
		Analytics: s.cfg.Analytics.Vercel,
	})
}

func (s *Server) handleClientConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.clientConfig())
}
