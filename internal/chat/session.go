package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"allenchat/internal/models"
	"allenchat/internal/provider"
)

// ErrEmptyMessage is returned when Send is called without text or images.
var ErrEmptyMessage = errors.New("message must contain text or an image")

// Sender delivers a chat request to a backend.
type Sender interface {
	Chat(ctx context.Context, req models.ChatRequest, handler provider.ChatHandler)
}

// Session is one conversation: its history, model settings and the pool its
// in-flight requests are registered with.
type Session struct {
	ID string

	sender Sender
	pool   *ControllerPool
	config models.ModelConfig

	mu       sync.Mutex
	messages []models.ChatMessage
	pending  string
}

// NewSession starts an empty conversation. An optional system prompt becomes
// the first message of the history.
func NewSession(sender Sender, pool *ControllerPool, cfg models.ModelConfig, systemPrompt string) *Session {
	if pool == nil {
		pool = NewControllerPool()
	}
	s := &Session{
		ID:     uuid.NewString(),
		sender: sender,
		pool:   pool,
		config: cfg,
	}
	if prompt := strings.TrimSpace(systemPrompt); prompt != "" {
		s.messages = append(s.messages, models.ChatMessage{
			ID:      uuid.NewString(),
			Role:    models.RoleSystem,
			Content: models.TextContent(prompt),
		})
	}
	return s
}

// Messages returns a copy of the history.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset drops every message except a leading system prompt.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) > 0 && s.messages[0].Role == models.RoleSystem {
		s.messages = s.messages[:1]
		return
	}
	s.messages = nil
}

// Send posts text plus optional image data URLs as the next user message and
// returns the assistant reply. onUpdate, when set, receives streamed chunks.
// The history only grows when the call succeeds.
func (s *Session) Send(ctx context.Context, text string, images []string, onUpdate func(message, chunk string)) (string, error) {
	content, err := buildContent(text, images)
	if err != nil {
		return "", err
	}

	user := models.ChatMessage{ID: uuid.NewString(), Role: models.RoleUser, Content: content}
	replyID := uuid.NewString()

	s.mu.Lock()
	history := make([]models.ChatMessage, len(s.messages), len(s.messages)+1)
	copy(history, s.messages)
	s.pending = replyID
	s.mu.Unlock()

	req := models.ChatRequest{
		Messages: append(history, user),
		Config:   s.config,
	}

	var (
		reply   string
		sendErr error
	)
	s.sender.Chat(ctx, req, provider.HandlerFuncs{
		Update: onUpdate,
		Finish: func(message string) { reply = message },
		Error:  func(err error) { sendErr = err },
		Controller: func(cancel context.CancelFunc) {
			s.pool.Add(s.ID, replyID, cancel)
		},
	})
	s.pool.Remove(s.ID, replyID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == replyID {
		s.pending = ""
	}
	if sendErr != nil {
		slog.Debug("chat request failed", "session", s.ID, "message", replyID, "err", sendErr)
		return "", sendErr
	}

	s.messages = append(s.messages, user, models.ChatMessage{
		ID:      replyID,
		Role:    models.RoleAssistant,
		Content: models.TextContent(reply),
	})
	return reply, nil
}

// Stop cancels the request currently in flight, if any.
func (s *Session) Stop() {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending != "" {
		s.pool.Stop(s.ID, pending)
	}
}

func buildContent(text string, images []string) (models.Content, error) {
	text = strings.TrimSpace(text)
	if len(images) == 0 {
		if text == "" {
			return models.Content{}, ErrEmptyMessage
		}
		return models.TextContent(text), nil
	}

	parts := make([]models.ContentPart, 0, len(images)+1)
	if text != "" {
		parts = append(parts, models.TextPart(text))
	}
	for _, img := range images {
		parts = append(parts, models.ImagePart(img))
	}
	return models.MultimodalContent(parts...), nil
}
