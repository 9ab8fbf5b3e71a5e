// Package endpoint resolves the base URL a platform client talks to.
package endpoint

import (
	"errors"
	"log/slog"
	"strings"

	"allenchat/internal/config"
)

// ErrIncompleteAzureConfig is returned when Azure is selected without URL, key and version.
var ErrIncompleteAzureConfig = errors.New("incomplete azure config, please check it in your settings page")

// Sub-paths appended to a resolved base URL.
const (
	ChatPath        = "v1/chat/completions"
	UsagePath       = "dashboard/billing/usage"
	SubsPath        = "dashboard/billing/subscription"
	ListModelPath   = "v1/models"
	UploadTextPath  = "upload_text/"
	UploadImagePath = "upload_image/"
)

// Proxy mount points served by the proxy server.
const (
	ProxyPathAllen     = "/api/allen"
	ProxyPathOpenAI    = "/api/openai"
	AppProxyPathAllen  = "/api/proxy/allen"
	AppProxyPathOpenAI = "/api/proxy/openai"
)

// Resolver picks between a custom base URL, the default host and the
// same-origin proxy for one platform.
type Resolver struct {
	access         config.AccessConfig
	isApp          bool
	defaultAPIHost string
	origin         string
	proxyPath      string
	appProxyPath   string
}

// NewResolver builds a resolver for the named platform.
func NewResolver(cfg config.Config, platform string) *Resolver {
	r := &Resolver{
		access:         cfg.Access,
		isApp:          cfg.Client.IsApp,
		defaultAPIHost: strings.TrimRight(cfg.Client.DefaultAPIHost, "/"),
		origin:         strings.TrimRight(cfg.Server.Origin, "/"),
		proxyPath:      ProxyPathAllen,
		appProxyPath:   AppProxyPathAllen,
	}
	if platform == config.PlatformOpenAI {
		r.proxyPath = ProxyPathOpenAI
		r.appProxyPath = AppProxyPathOpenAI
	}
	return r
}

// IsAzure reports whether requests go to a custom Azure deployment.
func (r *Resolver) IsAzure() bool {
	return r.access.UseCustomConfig && r.access.IsAzure()
}

// Path returns the absolute URL for path. Azure configuration is checked
// before anything else so no request is issued with a half-filled config.
func (r *Resolver) Path(path string) (string, error) {
	baseURL := ""

	if r.access.UseCustomConfig {
		isAzure := r.access.IsAzure()
		if isAzure && !r.access.IsValidAzure() {
			return "", ErrIncompleteAzureConfig
		}

		if isAzure {
			path = MakeAzurePath(path, r.access.AzureAPIVersion)
			baseURL = r.access.AzureURL
		} else {
			baseURL = r.access.OpenAIURL
		}
	}

	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		if r.isApp {
			baseURL = r.defaultAPIHost + r.appProxyPath
		} else {
			baseURL = r.origin + r.proxyPath
		}
	}

	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http") && !strings.HasPrefix(baseURL, "/") {
		baseURL = "https://" + baseURL
	}

	slog.Debug("resolved proxy endpoint", "base_url", baseURL, "path", path)

	return baseURL + "/" + strings.TrimPrefix(path, "/"), nil
}

// MakeAzurePath drops the v1/ segments Azure does not use and appends the
// api-version query parameter.
func MakeAzurePath(path, apiVersion string) string {
	path = strings.ReplaceAll(path, "v1/", "")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "api-version=" + apiVersion
}
