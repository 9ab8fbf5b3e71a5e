package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Context mirrors the identity provider's sign-in state for the rest of the
// application.
type Context struct {
	provider IdentityProvider

	mu   sync.RWMutex
	user *User

	ready       chan struct{}
	readyOnce   sync.Once
	unsubscribe func()
}

// NewContext subscribes to provider state changes. Ready is closed once the
// first state has been observed.
func NewContext(provider IdentityProvider) (*Context, error) {
	if provider == nil {
		return nil, errors.New("identity provider must not be nil")
	}

	c := &Context{
		provider: provider,
		ready:    make(chan struct{}),
	}
	c.unsubscribe = provider.OnAuthStateChanged(c.setUser)
	return c, nil
}

func (c *Context) setUser(u *User) {
	var mirrored *User
	if u != nil {
		cp := *u
		mirrored = &cp
	}

	c.mu.Lock()
	c.user = mirrored
	c.mu.Unlock()

	c.readyOnce.Do(func() { close(c.ready) })
}

// Ready is closed after the initial auth state is known.
func (c *Context) Ready() <-chan struct{} {
	return c.ready
}

// Wait blocks until the initial state is known or ctx is done.
func (c *Context) Wait(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// User returns a copy of the signed-in user, or nil.
func (c *Context) User() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	cp := *c.user
	return &cp
}

// Login runs the provider's interactive sign-in. The new user arrives through
// the state subscription.
func (c *Context) Login(ctx context.Context) error {
	if err := c.provider.SignIn(ctx); err != nil {
		slog.Error("sign in failed", "err", err)
		return err
	}
	return nil
}

// Logout clears the local user, then signs out of the provider.
func (c *Context) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.user = nil
	c.mu.Unlock()

	if err := c.provider.SignOut(ctx); err != nil {
		slog.Error("sign out failed", "err", err)
		return err
	}
	return nil
}

// Close stops listening to the provider.
func (c *Context) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}
