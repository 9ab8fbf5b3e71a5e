package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrNotSignedIn is returned when an operation needs a signed-in user.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrInvalidToken is returned when an ID token fails verification.
	ErrInvalidToken = errors.New("invalid id token")
)

// User is the signed-in account as reported by the identity provider.
type User struct {
	UID         string `yaml:"uid" json:"uid"`
	Email       string `yaml:"email" json:"email"`
	DisplayName string `yaml:"display_name" json:"display_name,omitempty"`
}

// Name returns the display name, falling back to the email address.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// IdentityProvider is the sign-in backend behind a Context.
type IdentityProvider interface {
	// OnAuthStateChanged registers fn for every sign-in state change. The
	// current state is delivered once right after registration.
	OnAuthStateChanged(fn func(*User)) (unsubscribe func())
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// DefaultSessionFile is where the CLI keeps the signed-in session.
func DefaultSessionFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "allenchat", "session.yaml"), nil
}
