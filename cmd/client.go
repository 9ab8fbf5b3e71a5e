package cmd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"allenchat/internal/auth"
	"allenchat/internal/config"
	"allenchat/internal/provider"
	providerfactory "allenchat/internal/provider/factory"
	"allenchat/internal/router"
)

var errFirebaseNotConfigured = errors.New("firebase is not configured, set auth.firebase.api_key or FIREBASE_API_KEY")

func newRouter(cfg config.Config, headers provider.HeaderSource) (*router.Router, error) {
	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredPlatforms(cfg, registry, headers); err != nil {
		return nil, err
	}
	return router.New(registry, cfg.Client.Platform), nil
}

func newFirebase(cfg config.Config, email string) (*auth.Firebase, error) {
	if strings.TrimSpace(cfg.Auth.Firebase.APIKey) == "" {
		return nil, errFirebaseNotConfigured
	}

	sessionFile := cfg.Auth.SessionFile
	if sessionFile == "" {
		path, err := auth.DefaultSessionFile()
		if err != nil {
			return nil, err
		}
		sessionFile = path
	}

	return auth.NewFirebase(auth.FirebaseOptions{
		APIKey:      cfg.Auth.Firebase.APIKey,
		SessionFile: sessionFile,
		Prompt:      surveyPrompt(email),
	})
}

func surveyPrompt(email string) auth.CredentialPrompt {
	return func(context.Context) (auth.Credentials, error) {
		creds := auth.Credentials{Email: email}
		if creds.Email == "" {
			if err := survey.AskOne(&survey.Input{Message: "Email:"}, &creds.Email, survey.WithValidator(survey.Required)); err != nil {
				return auth.Credentials{}, fmt.Errorf("read email: %w", err)
			}
		}
		if err := survey.AskOne(&survey.Password{Message: "Password:"}, &creds.Password, survey.WithValidator(survey.Required)); err != nil {
			return auth.Credentials{}, fmt.Errorf("read password: %w", err)
		}
		return creds, nil
	}
}

// signedInContext returns the auth context once its initial state is known,
// running the interactive sign-in when nobody is signed in yet.
func signedInContext(ctx context.Context, fb *auth.Firebase) (*auth.Context, error) {
	authCtx, err := auth.NewContext(fb)
	if err != nil {
		return nil, err
	}
	if err := authCtx.Wait(ctx); err != nil {
		authCtx.Close()
		return nil, err
	}
	if authCtx.User() == nil {
		printInfo("Sign in to continue")
		if err := authCtx.Login(ctx); err != nil {
			authCtx.Close()
			return nil, err
		}
	}
	if authCtx.User() == nil {
		authCtx.Close()
		return nil, auth.ErrNotSignedIn
	}
	return authCtx, nil
}

// signIn resolves the Firebase session for commands that talk to the backend.
// It returns nil values when Firebase is not configured and sign-in is
// optional. The returned source asks Firebase for the ID token on every
// request so long sessions keep sending a fresh one.
func signIn(ctx context.Context, cfg config.Config) (provider.HeaderSource, *auth.Context, error) {
	fb, err := newFirebase(cfg, "")
	if errors.Is(err, errFirebaseNotConfigured) && !cfg.Auth.RequireUser {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	authCtx, err := signedInContext(ctx, fb)
	if err != nil {
		return nil, nil, err
	}
	return firebaseHeaders(fb), authCtx, nil
}

type idTokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

func firebaseHeaders(tokens idTokenSource) provider.HeaderSource {
	return func(ctx context.Context) (map[string]string, error) {
		token, err := tokens.IDToken(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{auth.TokenHeader: token}, nil
	}
}

// signedInRouter signs in when needed and builds a router whose requests carry
// the current ID token. Callers close the returned context when it is non-nil.
func signedInRouter(ctx context.Context, cfg config.Config) (*router.Router, *auth.Context, error) {
	headers, authCtx, err := signIn(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	rt, err := newRouter(cfg, headers)
	if err != nil {
		if authCtx != nil {
			authCtx.Close()
		}
		return nil, nil, err
	}
	return rt, authCtx, nil
}

// imageDataURL reads an image file into a base64 data URL.
func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %q: %w", path, err)
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%q is not an image (%s)", path, contentType)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
