package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"allenchat/internal/endpoint"
	"allenchat/internal/models"
	"allenchat/internal/provider"
)

const (
	userAgent       = "allenchat/0.1"
	eventStreamType = "text/event-stream"
	streamDone      = "[DONE]"
)

// Options wires a Provider to its transport and endpoint.
type Options struct {
	Resolver   *endpoint.Resolver
	HTTPClient *http.Client
	Rest       *resty.Client
	Headers    map[string]string
	Timeout    time.Duration
	ListModels bool
}

// Provider implements the Platform interface for OpenAI-compatible APIs,
// including Azure deployments.
type Provider struct {
	name     string
	resolver *endpoint.Resolver
	client   *http.Client
	headers  map[string]string
	timeout  time.Duration
	billing  *Billing
	catalog  *Catalog
}

// New creates a new OpenAI provider.
func New(name string, opts Options) (*Provider, error) {
	if opts.HTTPClient == nil {
		return nil, errors.New("http client must not be nil")
	}
	if opts.Rest == nil {
		return nil, errors.New("rest client must not be nil")
	}
	if opts.Resolver == nil {
		return nil, errors.New("resolver must not be nil")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("request timeout must be positive")
	}

	return &Provider{
		name:     name,
		resolver: opts.Resolver,
		client:   opts.HTTPClient,
		headers:  opts.Headers,
		timeout:  opts.Timeout,
		billing:  NewBilling(opts.Rest, opts.Resolver, opts.Headers),
		catalog:  NewCatalog(opts.Rest, opts.Resolver, opts.Headers, opts.ListModels),
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Usage(ctx context.Context) (models.Usage, error) {
	return p.billing.Query(ctx)
}

func (p *Provider) Models(ctx context.Context) ([]models.Model, error) {
	return p.catalog.Models(ctx)
}

// Chat sends the conversation to chat/completions. Streaming responses are
// delivered chunk by chunk through OnUpdate before OnFinish.
func (p *Provider) Chat(ctx context.Context, req models.ChatRequest, handler provider.ChatHandler) {
	if len(req.Messages) == 0 {
		handler.OnError(errors.New("at least one message is required"))
		return
	}

	payload := models.NewRequestPayload(req)

	chatURL, err := p.resolver.Path(endpoint.ChatPath)
	if err != nil {
		handler.OnError(err)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	handler.OnController(cancel)

	httpReq, err := p.newRequest(ctx, http.MethodPost, chatURL, payload)
	if err != nil {
		handler.OnError(err)
		return
	}

	slog.Debug("sending openai chat request", "model", payload.Model, "stream", payload.Stream, "messages", len(payload.Messages))

	timer := time.AfterFunc(p.timeout, cancel)
	httpResp, err := p.client.Do(httpReq)
	timer.Stop()
	if err != nil {
		handler.OnError(fmt.Errorf("openai chat request failed: %w", err))
		return
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		handler.OnError(parseAPIError(httpResp))
		return
	}

	if payload.Stream && strings.HasPrefix(httpResp.Header.Get("Content-Type"), eventStreamType) {
		readStream(httpResp.Body, handler)
		return
	}

	var providerResp chatResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		handler.OnError(err)
		return
	}

	message, err := providerResp.message()
	if err != nil {
		handler.OnError(err)
		return
	}
	handler.OnFinish(message)
}

func (p *Provider) newRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", userAgent)
	if rp, ok := payload.(models.RequestPayload); ok && rp.Stream {
		req.Header.Set("Accept", eventStreamType)
	}

	return req, nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func readStream(body io.Reader, handler provider.ChatHandler) {
	var message strings.Builder
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			handler.OnError(fmt.Errorf("read stream: %w", err))
			return
		}

		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data:")
		if ok {
			data = strings.TrimSpace(data)
			if data == streamDone {
				break
			}

			var chunk streamChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
				slog.Warn("skipping malformed stream chunk", "error", jsonErr)
			} else if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				delta := chunk.Choices[0].Delta.Content
				message.WriteString(delta)
				handler.OnUpdate(message.String(), delta)
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	handler.OnFinish(message.String())
}

type chatResponse struct {
	ID      string          `json:"id"`
	Choices []chatChoice    `json:"choices"`
	Error   *apiErrorObject `json:"error,omitempty"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

func (r chatResponse) message() (string, error) {
	if r.Error != nil && r.Error.Message != "" {
		return "", fmt.Errorf("openai error (%s): %s", r.Error.Type, r.Error.Message)
	}
	if len(r.Choices) == 0 {
		return "", errors.New("openai response did not include choices")
	}
	return r.Choices[0].Message.Content, nil
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func parseAPIError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return provider.ErrUnauthorized
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("openai error (%s): %s", apiErr.Error.Type, apiErr.Error.Message)
	}

	return fmt.Errorf("upstream error status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
