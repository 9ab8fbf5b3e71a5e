package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenURL    = "https://securetoken.googleapis.com/v1/token"
	tokenExpiryLeeway  = time.Minute
	requestTimeout     = 30 * time.Second
)

// Credentials are what the interactive sign-in asks the user for.
type Credentials struct {
	Email    string
	Password string
}

// CredentialPrompt asks the user for credentials.
type CredentialPrompt func(ctx context.Context) (Credentials, error)

// FirebaseOptions configures a Firebase identity provider.
type FirebaseOptions struct {
	APIKey      string
	Rest        *resty.Client
	SessionFile string
	Prompt      CredentialPrompt
	// IdentityURL and TokenURL override the Google endpoints.
	IdentityURL string
	TokenURL    string
}

type session struct {
	User         User      `yaml:"user"`
	IDToken      string    `yaml:"id_token"`
	RefreshToken string    `yaml:"refresh_token"`
	ExpiresAt    time.Time `yaml:"expires_at"`
}

// Firebase signs users in through the Firebase Auth REST API and keeps the
// session on disk between runs.
type Firebase struct {
	apiKey      string
	rest        *resty.Client
	sessionFile string
	prompt      CredentialPrompt
	identityURL string
	tokenURL    string
	now         func() time.Time

	mu        sync.Mutex
	session   *session
	listeners map[int]func(*User)
	nextID    int
}

// NewFirebase builds the provider and restores a persisted session, if any.
func NewFirebase(opts FirebaseOptions) (*Firebase, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("firebase api key must not be empty")
	}
	if opts.SessionFile == "" {
		return nil, errors.New("session file must not be empty")
	}
	rest := opts.Rest
	if rest == nil {
		rest = resty.New()
	}

	f := &Firebase{
		apiKey:      opts.APIKey,
		rest:        rest,
		sessionFile: opts.SessionFile,
		prompt:      opts.Prompt,
		identityURL: strings.TrimRight(firstNonEmpty(opts.IdentityURL, defaultIdentityURL), "/"),
		tokenURL:    firstNonEmpty(opts.TokenURL, defaultTokenURL),
		now:         time.Now,
		listeners:   make(map[int]func(*User)),
	}

	s, err := f.loadSession()
	if err != nil {
		return nil, err
	}
	f.session = s
	return f, nil
}

// OnAuthStateChanged registers fn and immediately replays the current user.
func (f *Firebase) OnAuthStateChanged(fn func(*User)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	current := f.currentUserLocked()
	f.mu.Unlock()

	fn(current)

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

type signInResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type firebaseError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn prompts for credentials and exchanges them for a session.
func (f *Firebase) SignIn(ctx context.Context) error {
	if f.prompt == nil {
		return errors.New("no credential prompt configured")
	}
	creds, err := f.prompt(ctx)
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var out signInResponse
	res, err := f.rest.R().
		SetContext(ctx).
		SetQueryParam("key", f.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"email":             creds.Email,
			"password":          creds.Password,
			"returnSecureToken": true,
		}).
		Post(f.identityURL + "/accounts:signInWithPassword")
	if err != nil {
		return fmt.Errorf("sign in request: %w", err)
	}
	if !res.IsSuccess() {
		return upstreamError("sign in", res)
	}
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return fmt.Errorf("decode sign in response: %w", err)
	}

	s := &session{
		User:         User{UID: out.LocalID, Email: out.Email, DisplayName: out.DisplayName},
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    f.expiry(out.ExpiresIn),
	}
	if err := f.saveSession(s); err != nil {
		return err
	}
	slog.Info("signed in", "uid", s.User.UID)
	f.publish(s)
	return nil
}

// SignOut forgets the persisted session.
func (f *Firebase) SignOut(context.Context) error {
	if err := os.Remove(f.sessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	f.publish(nil)
	return nil
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// IDToken returns a valid ID token, refreshing it when it is about to expire.
func (f *Firebase) IDToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	s := f.session
	f.mu.Unlock()
	if s == nil {
		return "", ErrNotSignedIn
	}
	if f.now().Add(tokenExpiryLeeway).Before(s.ExpiresAt) {
		return s.IDToken, nil
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var out refreshResponse
	res, err := f.rest.R().
		SetContext(ctx).
		SetQueryParam("key", f.apiKey).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": s.RefreshToken,
		}).
		Post(f.tokenURL)
	if err != nil {
		return "", fmt.Errorf("refresh token request: %w", err)
	}
	if !res.IsSuccess() {
		return "", upstreamError("refresh token", res)
	}
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}

	refreshed := *s
	refreshed.IDToken = out.IDToken
	refreshed.RefreshToken = firstNonEmpty(out.RefreshToken, s.RefreshToken)
	refreshed.ExpiresAt = f.expiry(out.ExpiresIn)
	if err := f.saveSession(&refreshed); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.session = &refreshed
	f.mu.Unlock()
	return refreshed.IDToken, nil
}

type lookupResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"users"`
}

// Lookup fetches the current profile of the signed-in user.
func (f *Firebase) Lookup(ctx context.Context) (*User, error) {
	token, err := f.IDToken(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var out lookupResponse
	res, err := f.rest.R().
		SetContext(ctx).
		SetQueryParam("key", f.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"idToken": token}).
		Post(f.identityURL + "/accounts:lookup")
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	if !res.IsSuccess() {
		return nil, upstreamError("lookup", res)
	}
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	if len(out.Users) == 0 {
		return nil, ErrNotSignedIn
	}

	u := out.Users[0]
	return &User{UID: u.LocalID, Email: u.Email, DisplayName: u.DisplayName}, nil
}

func (f *Firebase) publish(s *session) {
	f.mu.Lock()
	f.session = s
	current := f.currentUserLocked()
	listeners := make([]func(*User), 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(current)
	}
}

func (f *Firebase) currentUserLocked() *User {
	if f.session == nil {
		return nil
	}
	u := f.session.User
	return &u
}

func (f *Firebase) expiry(expiresIn string) time.Time {
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}
	return f.now().Add(time.Duration(seconds) * time.Second)
}

func (f *Firebase) loadSession() (*session, error) {
	data, err := os.ReadFile(f.sessionFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file %q: %w", f.sessionFile, err)
	}

	var s session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session file %q: %w", f.sessionFile, err)
	}
	if s.User.UID == "" {
		return nil, nil
	}
	return &s, nil
}

func (f *Firebase) saveSession(s *session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.sessionFile), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(f.sessionFile, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func upstreamError(op string, res *resty.Response) error {
	var body firebaseError
	if err := json.Unmarshal(res.Body(), &body); err == nil && body.Error.Message != "" {
		return fmt.Errorf("%s: %s", op, body.Error.Message)
	}
	return fmt.Errorf("%s: upstream returned status %d", op, res.StatusCode())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
