// Package allen implements the client for the Allen tutoring backend, which
// takes a role-keyed conversation or a single image upload and answers with
// one complete reply.
package allen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"allenchat/internal/endpoint"
	"allenchat/internal/models"
	"allenchat/internal/provider"
	"allenchat/internal/provider/openai"
)

// Name is the platform name the client registers under.
const Name = "allen"

var errEmptyConversation = errors.New("at least one message is required")

// Options wires a Client to its transport and endpoint.
type Options struct {
	Resolver   *endpoint.Resolver
	Rest       *resty.Client
	Headers    map[string]string
	Timeout    time.Duration
	ListModels bool
}

// Client talks to the Allen backend.
type Client struct {
	resolver *endpoint.Resolver
	rest     *resty.Client
	headers  map[string]string
	timeout  time.Duration
	billing  *openai.Billing
	catalog  *openai.Catalog
}

// New constructs an Allen client.
func New(opts Options) (*Client, error) {
	if opts.Resolver == nil {
		return nil, errors.New("resolver must not be nil")
	}
	if opts.Rest == nil {
		return nil, errors.New("rest client must not be nil")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("request timeout must be positive")
	}

	return &Client{
		resolver: opts.Resolver,
		rest:     opts.Rest,
		headers:  opts.Headers,
		timeout:  opts.Timeout,
		billing:  openai.NewBilling(opts.Rest, opts.Resolver, opts.Headers),
		catalog:  openai.NewCatalog(opts.Rest, opts.Resolver, opts.Headers, opts.ListModels),
	}, nil
}

func (c *Client) Name() string {
	return Name
}

// Usage reports spending through the OpenAI-compatible billing endpoints.
func (c *Client) Usage(ctx context.Context) (models.Usage, error) {
	return c.billing.Query(ctx)
}

func (c *Client) Models(ctx context.Context) ([]models.Model, error) {
	return c.catalog.Models(ctx)
}

// Chat uploads the latest image when the last message carries one, otherwise
// the whole conversation as text. The backend does not stream; the stream
// flag is ignored and the full reply goes to OnFinish.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest, handler provider.ChatHandler) {
	latest, ok := req.LastMessage()
	if !ok {
		handler.OnError(errEmptyConversation)
		return
	}

	var upload *imageUpload
	if latest.Content.HasImage() {
		img, err := extractImage(latest)
		if err != nil {
			handler.OnError(err)
			return
		}
		upload = &img
	}

	path := endpoint.UploadTextPath
	if upload != nil {
		path = endpoint.UploadImagePath
	}
	chatURL, err := c.resolver.Path(path)
	if err != nil {
		handler.OnError(err)
		return
	}

	if req.Config.Stream {
		slog.Debug("allen backend replies in one piece, stream flag ignored")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	handler.OnController(cancel)

	r := c.rest.R().SetContext(ctx)
	for k, v := range c.headers {
		if upload != nil && strings.EqualFold(k, "Content-Type") {
			continue
		}
		r.SetHeader(k, v)
	}

	if upload != nil {
		r.SetMultipartField(imageField, imageFilename, upload.contentType, bytes.NewReader(upload.data))
		slog.Debug("sending allen image request", "url", chatURL, "content_type", upload.contentType, "bytes", len(upload.data))
	} else {
		r.SetBody(buildConversation(req.Messages))
		slog.Debug("sending allen text request", "url", chatURL, "messages", len(req.Messages))
	}

	timer := time.AfterFunc(c.timeout, cancel)
	res, err := r.Post(chatURL)
	timer.Stop()
	if err != nil {
		slog.Error("allen chat request failed", "error", err)
		handler.OnError(fmt.Errorf("allen chat request failed: %w", err))
		return
	}

	if !res.IsSuccess() {
		handler.OnError(fmt.Errorf("allen backend returned status %d: %s", res.StatusCode(), strings.TrimSpace(res.String())))
		return
	}

	var reply chatReply
	if err := json.Unmarshal(res.Body(), &reply); err != nil {
		handler.OnError(fmt.Errorf("decode allen response: %w", err))
		return
	}

	handler.OnFinish(reply.Respond)
}
