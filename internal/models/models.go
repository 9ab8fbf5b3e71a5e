package models

import "strings"

// Message roles accepted by every platform.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single conversational message.
type ChatMessage struct {
	ID      string  `json:"id,omitempty"`
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// ModelConfig carries the sampling parameters selected for a conversation.
type ModelConfig struct {
	Model            string  `yaml:"model" json:"model"`
	Temperature      float64 `yaml:"temperature" json:"temperature"`
	TopP             float64 `yaml:"top_p" json:"top_p"`
	PresencePenalty  float64 `yaml:"presence_penalty" json:"presence_penalty"`
	FrequencyPenalty float64 `yaml:"frequency_penalty" json:"frequency_penalty"`
	MaxTokens        int     `yaml:"max_tokens" json:"max_tokens"`
	Stream           bool    `yaml:"stream" json:"stream"`
}

// ChatRequest is the input of a single chat call.
type ChatRequest struct {
	Messages []ChatMessage
	Config   ModelConfig
}

// LastMessage returns the most recent message of the request.
func (r ChatRequest) LastMessage() (ChatMessage, bool) {
	if len(r.Messages) == 0 {
		return ChatMessage{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// RequestPayload is the OpenAI-compatible body derived from a ChatRequest.
type RequestPayload struct {
	Messages         []ChatMessage `json:"messages"`
	Stream           bool          `json:"stream,omitempty"`
	Model            string        `json:"model"`
	Temperature      float64       `json:"temperature"`
	PresencePenalty  float64       `json:"presence_penalty"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	TopP             float64       `json:"top_p"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
}

// NewRequestPayload builds the wire payload from the request. Non-vision models
// receive text-only content.
func NewRequestPayload(req ChatRequest) RequestPayload {
	return RequestPayload{
		Messages:         PrepareMessages(req.Messages, req.Config.Model),
		Stream:           req.Config.Stream,
		Model:            req.Config.Model,
		Temperature:      req.Config.Temperature,
		PresencePenalty:  req.Config.PresencePenalty,
		FrequencyPenalty: req.Config.FrequencyPenalty,
		TopP:             req.Config.TopP,
		MaxTokens:        req.Config.MaxTokens,
	}
}

// PrepareMessages copies the messages, flattening multimodal content unless the
// model accepts images.
func PrepareMessages(messages []ChatMessage, model string) []ChatMessage {
	vision := IsVisionModel(model)
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		content := msg.Content
		if !vision {
			content = TextContent(msg.Content.Text())
		}
		out = append(out, ChatMessage{Role: msg.Role, Content: content})
	}
	return out
}

// IsVisionModel reports whether the model accepts image parts.
func IsVisionModel(model string) bool {
	return strings.Contains(model, "vision") || strings.HasPrefix(model, "gpt-4o")
}

// Usage summarises spending for the current billing period.
type Usage struct {
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// ProviderInfo describes who serves a model.
type ProviderInfo struct {
	ID           string `json:"id"`
	ProviderName string `json:"providerName"`
	ProviderType string `json:"providerType"`
}

// Model identifies a known model with provider metadata.
type Model struct {
	Name      string       `json:"name"`
	Available bool         `json:"available"`
	Provider  ProviderInfo `json:"provider"`
}

var (
	providerOpenAI = ProviderInfo{ID: "openai", ProviderName: "OpenAI", ProviderType: "openai"}
	providerGoogle = ProviderInfo{ID: "google", ProviderName: "Google", ProviderType: "google"}
)

// OpenAIProvider is the provider metadata attached to live-listed models.
func OpenAIProvider() ProviderInfo {
	return providerOpenAI
}

var defaultModels = []Model{
	{Name: "gpt-4", Available: true, Provider: providerOpenAI},
	{Name: "gpt-4-0613", Available: true, Provider: providerOpenAI},
	{Name: "gpt-4-32k", Available: true, Provider: providerOpenAI},
	{Name: "gpt-4-32k-0613", Available: true, Provider: providerOpenAI},
	{Name: "gpt-4-turbo-preview", Available: true, Provider: providerOpenAI},
	{Name: "gpt-4-vision-preview", Available: true, Provider: providerOpenAI},
	{Name: "gpt-4o", Available: true, Provider: providerOpenAI},
	{Name: "gpt-3.5-turbo", Available: true, Provider: providerOpenAI},
	{Name: "gpt-3.5-turbo-0125", Available: true, Provider: providerOpenAI},
	{Name: "gpt-3.5-turbo-16k", Available: true, Provider: providerOpenAI},
	{Name: "gemini-pro", Available: true, Provider: providerGoogle},
	{Name: "gemini-pro-vision", Available: true, Provider: providerGoogle},
}

// DefaultModels returns a copy of the built-in model list.
func DefaultModels() []Model {
	result := make([]Model, len(defaultModels))
	copy(result, defaultModels)
	return result
}
