package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allenchat/internal/config"
	"allenchat/internal/endpoint"
	"allenchat/internal/models"
	"allenchat/internal/provider"
)

func newTestProvider(t *testing.T, srv *httptest.Server, mutate func(*config.Config)) *Provider {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Origin = srv.URL
	cfg.Access.OpenAIAPIKey = "sk-test"
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := New("openai", Options{
		Resolver:   endpoint.NewResolver(cfg, config.PlatformOpenAI),
		HTTPClient: srv.Client(),
		Rest:       resty.New(),
		Headers:    provider.RequestHeaders(cfg.Access),
		Timeout:    2 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func userRequest(text string, stream bool) models.ChatRequest {
	return models.ChatRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: models.TextContent(text)}},
		Config:   models.ModelConfig{Model: "gpt-3.5-turbo", Temperature: 0.5, TopP: 1, Stream: stream},
	}
}

func TestChatReturnsFirstChoice(t *testing.T) {
	var got models.RequestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/openai/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"hi there"}}]}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, nil)
	res := provider.NewResult()
	p.Chat(context.Background(), userRequest("hello", false), res)

	require.NoError(t, res.Err)
	assert.Equal(t, "hi there", res.Message)
	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content.Text())
}

func TestChatStreamsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, nil)

	var chunks []string
	res := provider.NewResult()
	res.Update = func(_, chunk string) { chunks = append(chunks, chunk) }
	p.Chat(context.Background(), userRequest("hi", true), res)

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
	assert.Equal(t, "Hello", res.Message)
}

func TestChatReportsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	res := provider.NewResult()
	newTestProvider(t, srv, nil).Chat(context.Background(), userRequest("hi", false), res)

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "slow down")
}

func TestChatUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	res := provider.NewResult()
	newTestProvider(t, srv, nil).Chat(context.Background(), userRequest("hi", false), res)
	assert.ErrorIs(t, res.Err, provider.ErrUnauthorized)
}

func TestChatIncompleteAzureFailsBeforeRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, func(c *config.Config) {
		c.Access.UseCustomConfig = true
		c.Access.Provider = config.ProviderAzure
	})
	res := provider.NewResult()
	p.Chat(context.Background(), userRequest("hi", false), res)

	assert.ErrorIs(t, res.Err, endpoint.ErrIncompleteAzureConfig)
	assert.False(t, called)
}

func TestChatAzureUsesAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deployments/gpt/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("Api-Key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, func(c *config.Config) {
		c.Access.UseCustomConfig = true
		c.Access.Provider = config.ProviderAzure
		c.Access.AzureURL = srv.URL + "/deployments/gpt/"
		c.Access.AzureAPIKey = "azure-key"
		c.Access.AzureAPIVersion = "2024-01-01"
	})
	res := provider.NewResult()
	p.Chat(context.Background(), userRequest("hi", false), res)

	require.NoError(t, res.Err)
	assert.Equal(t, "ok", res.Message)
}

func TestChatTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Server.Origin = srv.URL
	p, err := New("openai", Options{
		Resolver:   endpoint.NewResolver(cfg, config.PlatformOpenAI),
		HTTPClient: srv.Client(),
		Rest:       resty.New(),
		Timeout:    50 * time.Millisecond,
	})
	require.NoError(t, err)

	res := provider.NewResult()
	p.Chat(context.Background(), userRequest("hi", false), res)
	assert.ErrorIs(t, res.Err, context.Canceled)
}
