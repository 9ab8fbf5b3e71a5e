package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"

	"allenchat/internal/endpoint"
	"allenchat/internal/models"
)

const chatModelPrefix = "gpt-"

// ListModelResponse is the body of GET v1/models.
type ListModelResponse struct {
	Object string `json:"object"`
	Data   []struct {
		ID     string `json:"id"`
		Object string `json:"object"`
		Root   string `json:"root"`
	} `json:"data"`
}

// Catalog returns the models a platform can serve.
type Catalog struct {
	client   *resty.Client
	resolver *endpoint.Resolver
	headers  map[string]string
	listLive bool
}

// NewCatalog builds a catalog. Unless listLive is set the built-in list is used.
func NewCatalog(client *resty.Client, resolver *endpoint.Resolver, headers map[string]string, listLive bool) *Catalog {
	return &Catalog{
		client:   client,
		resolver: resolver,
		headers:  headers,
		listLive: listLive,
	}
}

// Models returns the default models, or the live chat models when enabled.
func (c *Catalog) Models(ctx context.Context) ([]models.Model, error) {
	if !c.listLive {
		return models.DefaultModels(), nil
	}

	url, err := c.resolver.Path(endpoint.ListModelPath)
	if err != nil {
		return nil, err
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetHeaders(c.headers).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("list models: upstream status %d", res.StatusCode())
	}

	var list ListModelResponse
	if err := json.Unmarshal(res.Body(), &list); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}

	result := []models.Model{}
	for _, m := range list.Data {
		if !strings.HasPrefix(m.ID, chatModelPrefix) {
			continue
		}
		result = append(result, models.Model{
			Name:      m.ID,
			Available: true,
			Provider:  models.OpenAIProvider(),
		})
	}
	slog.Debug("listed chat models", "count", len(result))

	return result, nil
}
