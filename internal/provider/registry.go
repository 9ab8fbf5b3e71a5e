package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"allenchat/internal/config"
	"allenchat/internal/models"
)

// ErrUnknownPlatform indicates the requested platform is not registered.
var ErrUnknownPlatform = errors.New("unknown platform")

// ErrUnauthorized indicates the upstream rejected the configured credentials.
var ErrUnauthorized = errors.New("unauthorized, please enter a valid access code or api key in settings")

// ErrUsageQuery indicates a usage or subscription call did not succeed.
var ErrUsageQuery = errors.New("failed to query usage from openai")

// AccessCodePrefix marks a bearer token as an access code rather than an API key.
const AccessCodePrefix = "nk-"

// Platform defines the behaviour of a chat backend client.
type Platform interface {
	Name() string
	Chat(ctx context.Context, req models.ChatRequest, handler ChatHandler)
	Usage(ctx context.Context) (models.Usage, error)
	Models(ctx context.Context) ([]models.Model, error)
}

// Registry maintains a mapping of platform names to clients.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Platform
}

// NewRegistry constructs an empty platform registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Platform),
	}
}

// Register adds the platform to the registry.
func (r *Registry) Register(p Platform) error {
	if p == nil {
		return errors.New("platform must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("platform %q already registered", p.Name())
	}
	r.byName[p.Name()] = p
	return nil
}

// Lookup returns the platform registered under name.
func (r *Registry) Lookup(name string) (Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}
	return p, nil
}

// Names lists the registered platforms in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HeaderSource yields headers resolved for each outgoing request, such as a
// freshly refreshed ID token.
type HeaderSource func(ctx context.Context) (map[string]string, error)

// RequestHeaders builds the headers every platform request carries. Azure
// uses a raw api-key header; everything else a bearer token. When no key is
// configured the access code is sent instead.
func RequestHeaders(access config.AccessConfig) map[string]string {
	headers := map[string]string{
		"Content-Type":     "application/json",
		"Accept":           "application/json",
		"X-Requested-With": "XMLHttpRequest",
	}

	isAzure := access.UseCustomConfig && access.IsAzure()
	authHeader := "Authorization"
	apiKey := access.OpenAIAPIKey
	if isAzure {
		authHeader = "Api-Key"
		apiKey = access.AzureAPIKey
	}

	bearer := func(s string) string {
		if isAzure {
			return strings.TrimSpace(s)
		}
		return "Bearer " + strings.TrimSpace(s)
	}

	switch {
	case strings.TrimSpace(apiKey) != "":
		headers[authHeader] = bearer(apiKey)
	case strings.TrimSpace(access.AccessCode) != "":
		headers[authHeader] = bearer(AccessCodePrefix + access.AccessCode)
	}
	return headers
}
