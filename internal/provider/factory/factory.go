package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"allenchat/internal/config"
	"allenchat/internal/endpoint"
	"allenchat/internal/provider"
	allenProvider "allenchat/internal/provider/allen"
	openaiProvider "allenchat/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredPlatforms constructs the platform clients from
// configuration and stores them in the registry. dynamic, when set, is asked
// for extra headers on every request.
func RegisterConfiguredPlatforms(cfg config.Config, registry *provider.Registry, dynamic provider.HeaderSource) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	httpClient := NewHTTPClient(dynamic)
	rest := resty.NewWithClient(httpClient).SetHeader("User-Agent", "allenchat/0.1")
	headers := provider.RequestHeaders(cfg.Access)
	timeout := cfg.Client.RequestTimeout
	listModels := cfg.Client.EnableModelListing

	allen, err := allenProvider.New(allenProvider.Options{
		Resolver:   endpoint.NewResolver(cfg, config.PlatformAllen),
		Rest:       rest,
		Headers:    headers,
		Timeout:    timeout,
		ListModels: listModels,
	})
	if err != nil {
		return fmt.Errorf("initialise allen platform: %w", err)
	}
	if err := registry.Register(allen); err != nil {
		return fmt.Errorf("register allen platform: %w", err)
	}

	openai, err := openaiProvider.New(config.PlatformOpenAI, openaiProvider.Options{
		Resolver:   endpoint.NewResolver(cfg, config.PlatformOpenAI),
		HTTPClient: httpClient,
		Rest:       rest,
		Headers:    headers,
		Timeout:    timeout,
		ListModels: listModels,
	})
	if err != nil {
		return fmt.Errorf("initialise openai platform: %w", err)
	}
	if err := registry.Register(openai); err != nil {
		return fmt.Errorf("register openai platform: %w", err)
	}

	return nil
}

// NewHTTPClient returns a pooled client without an overall timeout; every
// call bounds itself with its own request timeout. Headers from dynamic are
// added to each request.
func NewHTTPClient(dynamic provider.HeaderSource) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	var rt http.RoundTripper = transport
	if dynamic != nil {
		rt = &headerTransport{base: transport, source: dynamic}
	}

	return &http.Client{
		Transport: rt,
	}
}

type headerTransport struct {
	base   http.RoundTripper
	source provider.HeaderSource
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	headers, err := t.source(req.Context())
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, fmt.Errorf("resolve request headers: %w", err)
	}

	out := req.Clone(req.Context())
	for k, v := range headers {
		out.Header.Set(k, v)
	}
	return t.base.RoundTrip(out)
}
