package factory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allenchat/internal/config"
	"allenchat/internal/models"
	"allenchat/internal/provider"
)

func TestRegisterConfiguredPlatforms(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, RegisterConfiguredPlatforms(config.Default(), reg, nil))
	assert.Equal(t, []string{config.PlatformAllen, config.PlatformOpenAI}, reg.Names())

	assert.Error(t, RegisterConfiguredPlatforms(config.Default(), reg, nil), "duplicate registration")
	assert.Error(t, RegisterConfiguredPlatforms(config.Default(), nil, nil))
}

func tokenSource(calls *int) provider.HeaderSource {
	return func(context.Context) (map[string]string, error) {
		*calls++
		return map[string]string{"X-Firebase-Token": fmt.Sprintf("id-token-%d", *calls)}, nil
	}
}

func TestRegisteredAllenSendsDynamicHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/allen/upload_text/", r.URL.Path)
		assert.Equal(t, "id-token-1", r.Header.Get("X-Firebase-Token"))
		assert.Equal(t, "Bearer sk-user", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"Respond":"hi"}`)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Server.Origin = srv.URL
	cfg.Access.OpenAIAPIKey = "sk-user"

	var calls int
	reg := provider.NewRegistry()
	require.NoError(t, RegisterConfiguredPlatforms(cfg, reg, tokenSource(&calls)))

	allen, err := reg.Lookup(config.PlatformAllen)
	require.NoError(t, err)

	res := provider.NewResult()
	allen.Chat(context.Background(), models.ChatRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: models.TextContent("hello")}},
	}, res)
	require.NoError(t, res.Err)
	assert.Equal(t, "hi", res.Message)
}

func TestUsageCallsCarryFreshToken(t *testing.T) {
	var (
		mu     sync.Mutex
		tokens = map[string]string{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokens[r.URL.Path] = r.Header.Get("X-Firebase-Token")
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/subscription") {
			fmt.Fprint(w, `{"hard_limit_usd":120}`)
			return
		}
		fmt.Fprint(w, `{"total_usage":1234}`)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Server.Origin = srv.URL

	var (
		calls   int
		callsMu sync.Mutex
	)
	source := func(ctx context.Context) (map[string]string, error) {
		callsMu.Lock()
		defer callsMu.Unlock()
		return tokenSource(&calls)(ctx)
	}

	reg := provider.NewRegistry()
	require.NoError(t, RegisterConfiguredPlatforms(cfg, reg, source))
	allen, err := reg.Lookup(config.PlatformAllen)
	require.NoError(t, err)

	usage, err := allen.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Usage{Used: 12.34, Total: 120}, usage)

	require.Len(t, tokens, 2)
	for path, token := range tokens {
		assert.True(t, strings.HasPrefix(token, "id-token-"), "%s sent %q", path, token)
	}
	assert.Equal(t, 2, calls)

	_, err = allen.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestHeaderSourceErrorStopsRequest(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Server.Origin = srv.URL
	errSignedOut := errors.New("not signed in")

	reg := provider.NewRegistry()
	require.NoError(t, RegisterConfiguredPlatforms(cfg, reg, func(context.Context) (map[string]string, error) {
		return nil, errSignedOut
	}))
	openai, err := reg.Lookup(config.PlatformOpenAI)
	require.NoError(t, err)

	res := provider.NewResult()
	openai.Chat(context.Background(), models.ChatRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: models.TextContent("hello")}},
	}, res)
	assert.ErrorIs(t, res.Err, errSignedOut)
	assert.False(t, hit)
}

func TestNewHTTPClientHasNoGlobalTimeout(t *testing.T) {
	client := NewHTTPClient(nil)
	assert.Zero(t, client.Timeout)
	assert.IsType(t, &http.Transport{}, client.Transport)

	wrapped := NewHTTPClient(func(context.Context) (map[string]string, error) { return nil, nil })
	assert.IsType(t, &headerTransport{}, wrapped.Transport)
}
