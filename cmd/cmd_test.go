package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allenchat/internal/auth"
	"allenchat/internal/config"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "chat", "usage", "models", "login", "logout", "whoami"}, names)
}

func TestExecuteRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  platform: carrier-pigeon\n"), 0o600))

	err := Execute(context.Background(), []string{"models", "--config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client.platform")
}

func TestExecuteUnknownCommand(t *testing.T) {
	assert.Error(t, Execute(context.Background(), []string{"teleport"}))
}

func TestLoginWithoutFirebaseConfig(t *testing.T) {
	t.Setenv("FIREBASE_API_KEY", "")
	err := Execute(context.Background(), []string{"logout", "--env", writeEnv(t, "")})
	assert.ErrorIs(t, err, errFirebaseNotConfigured)
}

func TestImageDataURL(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "pixel.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000"), 0o600))

	url, err := imageDataURL(png)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"), url)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain text"), 0o600))
	_, err = imageDataURL(txt)
	assert.Error(t, err)

	_, err = imageDataURL(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestAssistantName(t *testing.T) {
	assert.Equal(t, "Allen", assistantName(config.PlatformAllen))
	assert.Equal(t, "Assistant", assistantName(config.PlatformOpenAI))
}

type rotatingTokens struct {
	issued int
	err    error
}

func (r *rotatingTokens) IDToken(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.issued++
	return fmt.Sprintf("token-%d", r.issued), nil
}

func TestFirebaseHeadersResolveEachRequest(t *testing.T) {
	tokens := &rotatingTokens{}
	source := firebaseHeaders(tokens)

	first, err := source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{auth.TokenHeader: "token-1"}, first)

	second, err := source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", second[auth.TokenHeader])

	tokens.err = auth.ErrNotSignedIn
	_, err = source(context.Background())
	assert.ErrorIs(t, err, auth.ErrNotSignedIn)
}

func TestSignInAnonymousWithoutFirebase(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Firebase.APIKey = ""

	headers, authCtx, err := signIn(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, headers)
	assert.Nil(t, authCtx)

	cfg.Auth.RequireUser = true
	_, _, err = signIn(context.Background(), cfg)
	assert.ErrorIs(t, err, errFirebaseNotConfigured)
}

func TestUsageRequiresFirebaseWhenUserRequired(t *testing.T) {
	t.Setenv("FIREBASE_API_KEY", "")
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  require_user: true\n  firebase:\n    project_id: demo\n"), 0o600))

	err := Execute(context.Background(), []string{"usage", "--config", path, "--env", writeEnv(t, "")})
	assert.ErrorIs(t, err, errFirebaseNotConfigured)
}

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
