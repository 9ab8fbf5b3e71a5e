package chat

import (
	"context"
	"sync"
)

// ControllerPool tracks the cancel func of every in-flight chat request,
// keyed by session and message.
type ControllerPool struct {
	mu          sync.Mutex
	controllers map[string]context.CancelFunc
}

// NewControllerPool returns an empty pool.
func NewControllerPool() *ControllerPool {
	return &ControllerPool{controllers: make(map[string]context.CancelFunc)}
}

func poolKey(sessionID, messageID string) string {
	return sessionID + "/" + messageID
}

// Add registers cancel for the message. A request already pending under the
// same key is cancelled first.
func (p *ControllerPool) Add(sessionID, messageID string, cancel context.CancelFunc) string {
	key := poolKey(sessionID, messageID)

	p.mu.Lock()
	prev := p.controllers[key]
	p.controllers[key] = cancel
	p.mu.Unlock()

	if prev != nil {
		prev()
	}
	return key
}

// Stop cancels and forgets the request for the message, if any.
func (p *ControllerPool) Stop(sessionID, messageID string) {
	key := poolKey(sessionID, messageID)

	p.mu.Lock()
	cancel := p.controllers[key]
	delete(p.controllers, key)
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// StopAll cancels every pending request.
func (p *ControllerPool) StopAll() {
	p.mu.Lock()
	pending := p.controllers
	p.controllers = make(map[string]context.CancelFunc)
	p.mu.Unlock()

	for _, cancel := range pending {
		cancel()
	}
}

// HasPending reports whether any request is in flight.
func (p *ControllerPool) HasPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.controllers) > 0
}

// Remove forgets the message without cancelling it.
func (p *ControllerPool) Remove(sessionID, messageID string) {
	p.mu.Lock()
	delete(p.controllers, poolKey(sessionID, messageID))
	p.mu.Unlock()
}
