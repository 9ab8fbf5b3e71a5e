package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, PlatformAllen, cfg.Client.Platform)
	assert.Equal(t, 60*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Model.Model)
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  origin: http://localhost:9090
access:
  use_custom_config: true
  provider: azure
  azure_url: https://example.openai.azure.com/openai/deployments/gpt
  azure_api_key: secret
client:
  platform: openai
  request_timeout: 15s
providers:
  allen:
    base_url: https://allen.example.com
    headers:
      X-Team: tutors
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Access.IsAzure())
	assert.True(t, cfg.Access.IsValidAzure())
	assert.Equal(t, 15*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, "tutors", cfg.Providers.Allen.Headers["X-Team"])
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ALLEN_URL", "https://allen.env")
	t.Setenv("CODE", "alpha, beta")
	t.Setenv("VERCEL", "1")
	t.Setenv("PORT", "7000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "https://allen.env", cfg.Providers.Allen.BaseURL)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Auth.AccessCodes)
	assert.True(t, cfg.Analytics.Vercel)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"port":     func(c *Config) { c.Server.Port = 0 },
		"provider": func(c *Config) { c.Access.Provider = "anthropic" },
		"platform": func(c *Config) { c.Client.Platform = "gemini" },
		"timeout":  func(c *Config) { c.Client.RequestTimeout = 0 },
		"header":   func(c *Config) { c.Providers.Allen.Headers = Headers{"Bad Header": "x"} },
		"firebase": func(c *Config) { c.Auth.RequireUser = true },
		"origin": func(c *Config) {
			c.Server.Origin = ""
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsValidAzureRequiresAllFields(t *testing.T) {
	a := AccessConfig{Provider: ProviderAzure, AzureURL: "https://x", AzureAPIVersion: "2023"}
	assert.False(t, a.IsValidAzure())
	a.AzureAPIKey = "k"
	assert.True(t, a.IsValidAzure())
}
