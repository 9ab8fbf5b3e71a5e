package router

import (
	"context"
	"fmt"

	"allenchat/internal/models"
	"allenchat/internal/provider"
)

// Router dispatches requests to the selected platform.
type Router struct {
	registry *provider.Registry
	platform string
}

// New constructs a router backed by the provided registry, sending traffic to
// the named default platform.
func New(registry *provider.Registry, platform string) *Router {
	return &Router{
		registry: registry,
		platform: platform,
	}
}

// Platform returns the name of the platform requests are routed to.
func (r *Router) Platform() string {
	return r.platform
}

// Chat routes a chat request to the configured platform. Lookup failures are
// reported through the handler like any other chat failure.
func (r *Router) Chat(ctx context.Context, req models.ChatRequest, handler provider.ChatHandler) {
	platform, err := r.registry.Lookup(r.platform)
	if err != nil {
		handler.OnError(err)
		return
	}

	sanitisedReq := req
	sanitisedReq.Messages = cloneMessages(req.Messages)

	platform.Chat(ctx, sanitisedReq, handler)
}

// Usage queries spending through the configured platform.
func (r *Router) Usage(ctx context.Context) (models.Usage, error) {
	platform, err := r.registry.Lookup(r.platform)
	if err != nil {
		return models.Usage{}, err
	}

	usage, err := platform.Usage(ctx)
	if err != nil {
		return models.Usage{}, fmt.Errorf("platform %s usage: %w", platform.Name(), err)
	}
	return usage, nil
}

// Models lists the models the configured platform offers.
func (r *Router) Models(ctx context.Context) ([]models.Model, error) {
	platform, err := r.registry.Lookup(r.platform)
	if err != nil {
		return nil, err
	}

	list, err := platform.Models(ctx)
	if err != nil {
		return nil, fmt.Errorf("platform %s models: %w", platform.Name(), err)
	}
	return list, nil
}

func cloneMessages(messages []models.ChatMessage) []models.ChatMessage {
	if len(messages) == 0 {
		return nil
	}
	out := make([]models.ChatMessage, len(messages))
	copy(out, messages)
	return out
}
