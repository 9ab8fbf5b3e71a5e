package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allenchat/internal/models"
	"allenchat/internal/provider"
)

type fakePlatform struct {
	name     string
	reply    string
	usage    models.Usage
	usageErr error
	lastReq  models.ChatRequest
}

func (f *fakePlatform) Name() string { return f.name }

func (f *fakePlatform) Chat(_ context.Context, req models.ChatRequest, handler provider.ChatHandler) {
	f.lastReq = req
	handler.OnFinish(f.reply)
}

func (f *fakePlatform) Usage(context.Context) (models.Usage, error) { return f.usage, f.usageErr }

func (f *fakePlatform) Models(context.Context) ([]models.Model, error) {
	return []models.Model{{Name: f.name + "-model", Available: true}}, nil
}

func newRouter(t *testing.T, platforms ...*fakePlatform) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry()
	for _, p := range platforms {
		require.NoError(t, reg.Register(p))
	}
	return reg
}

func TestRouterDispatchesToSelectedPlatform(t *testing.T) {
	allen := &fakePlatform{name: "allen", reply: "from allen"}
	openai := &fakePlatform{name: "openai", reply: "from openai"}
	rt := New(newRouter(t, allen, openai), "allen")

	res := provider.NewResult()
	rt.Chat(context.Background(), models.ChatRequest{Messages: []models.ChatMessage{{Role: "user"}}}, res)

	require.NoError(t, res.Err)
	assert.Equal(t, "from allen", res.Message)
	assert.Len(t, allen.lastReq.Messages, 1)
	assert.Empty(t, openai.lastReq.Messages)

	list, err := rt.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "allen-model", list[0].Name)
}

func TestRouterUnknownPlatform(t *testing.T) {
	rt := New(provider.NewRegistry(), "missing")

	res := provider.NewResult()
	rt.Chat(context.Background(), models.ChatRequest{}, res)
	assert.ErrorIs(t, res.Err, provider.ErrUnknownPlatform)

	_, err := rt.Usage(context.Background())
	assert.ErrorIs(t, err, provider.ErrUnknownPlatform)
}

func TestRouterWrapsUsageErrors(t *testing.T) {
	p := &fakePlatform{name: "openai", usageErr: provider.ErrUnauthorized}
	_, err := New(newRouter(t, p), "openai").Usage(context.Background())
	assert.ErrorIs(t, err, provider.ErrUnauthorized)

	p.usageErr = nil
	p.usage = models.Usage{Used: 1.5, Total: 10}
	usage, err := New(newRouter(t, p), "openai").Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Usage{Used: 1.5, Total: 10}, usage)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(&fakePlatform{name: "allen"}))
	err := reg.Register(&fakePlatform{name: "allen"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, provider.ErrUnknownPlatform))
	assert.Equal(t, []string{"allen"}, reg.Names())
}
