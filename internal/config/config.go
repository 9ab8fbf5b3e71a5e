package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"allenchat/internal/models"
)

// Service providers selectable under custom config.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Chat platforms the client can talk to.
const (
	PlatformAllen  = "allen"
	PlatformOpenAI = "openai"
)

const (
	defaultPort            = 8080
	defaultAPIHost         = "https://api.nextchat.dev"
	defaultOpenAIURL       = "https://api.openai.com"
	defaultAzureAPIVersion = "2023-08-01-preview"
	defaultRequestTimeout  = 60 * time.Second
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Access    AccessConfig       `yaml:"access"`
	Client    ClientConfig       `yaml:"client"`
	Providers ProvidersConfig    `yaml:"providers"`
	Model     models.ModelConfig `yaml:"model"`
	Auth      AuthConfig         `yaml:"auth"`
	Analytics AnalyticsConfig    `yaml:"analytics"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
	// Origin is where the proxy server is reachable from clients; the
	// same-origin proxy paths are resolved against it.
	Origin string `yaml:"origin"`
}

// AccessConfig mirrors the user's stored access settings.
type AccessConfig struct {
	UseCustomConfig bool   `yaml:"use_custom_config"`
	Provider        string `yaml:"provider"`
	OpenAIURL       string `yaml:"openai_url"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AzureURL        string `yaml:"azure_url"`
	AzureAPIKey     string `yaml:"azure_api_key"`
	AzureAPIVersion string `yaml:"azure_api_version"`
	AccessCode      string `yaml:"access_code"`
}

// IsAzure reports whether Azure is the selected provider.
func (a AccessConfig) IsAzure() bool {
	return a.Provider == ProviderAzure
}

// IsValidAzure reports whether every Azure field is filled in.
func (a AccessConfig) IsValidAzure() bool {
	return strings.TrimSpace(a.AzureURL) != "" &&
		strings.TrimSpace(a.AzureAPIKey) != "" &&
		strings.TrimSpace(a.AzureAPIVersion) != ""
}

// ClientConfig controls how the chat client reaches its backend.
type ClientConfig struct {
	IsApp              bool          `yaml:"is_app"`
	DefaultAPIHost     string        `yaml:"default_api_host"`
	Platform           string        `yaml:"platform"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	EnableModelListing bool          `yaml:"enable_model_listing"`
}

// ProvidersConfig catalogues the upstreams the proxy server forwards to.
type ProvidersConfig struct {
	OpenAI ProviderConfig `yaml:"openai"`
	Allen  ProviderConfig `yaml:"allen"`
}

// ProviderConfig captures authentication and routing info for an upstream.
type ProviderConfig struct {
	APIKey  string  `yaml:"api_key"`
	BaseURL string  `yaml:"base_url"`
	Headers Headers `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// AuthConfig configures the identity provider and proxy access control.
type AuthConfig struct {
	Firebase       FirebaseConfig `yaml:"firebase"`
	RequireUser    bool           `yaml:"require_user"`
	AccessCodes    []string       `yaml:"access_codes"`
	HideUserAPIKey bool           `yaml:"hide_user_api_key"`
	SessionFile    string         `yaml:"session_file"`
}

// FirebaseConfig is the public web configuration of a Firebase project.
type FirebaseConfig struct {
	APIKey     string `yaml:"api_key"`
	AuthDomain string `yaml:"auth_domain"`
	ProjectID  string `yaml:"project_id"`
}

// AnalyticsConfig toggles the analytics snippet on the page shell.
type AnalyticsConfig struct {
	Vercel bool `yaml:"vercel"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:   defaultPort,
			Origin: fmt.Sprintf("http://127.0.0.1:%d", defaultPort),
		},
		Access: AccessConfig{
			Provider:        ProviderOpenAI,
			AzureAPIVersion: defaultAzureAPIVersion,
		},
		Client: ClientConfig{
			DefaultAPIHost: defaultAPIHost,
			Platform:       PlatformAllen,
			RequestTimeout: defaultRequestTimeout,
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{BaseURL: defaultOpenAIURL},
		},
		Model: models.ModelConfig{
			Model:       "gpt-3.5-turbo",
			Temperature: 0.5,
			TopP:        1,
			MaxTokens:   4000,
		},
	}
}

// Load reads YAML configuration from disk, applies environment overrides and
// validates the result. An empty path yields the defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a dotenv file. A missing default .env is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil {
			slog.Debug("no .env file loaded, continuing with environment variables")
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

type envOverrides struct {
	Port               int      `env:"PORT"`
	OpenAIAPIKey       string   `env:"OPENAI_API_KEY"`
	BaseURL            string   `env:"BASE_URL"`
	AllenURL           string   `env:"ALLEN_URL"`
	AzureURL           string   `env:"AZURE_URL"`
	AzureAPIKey        string   `env:"AZURE_API_KEY"`
	AzureAPIVersion    string   `env:"AZURE_API_VERSION"`
	Codes              []string `env:"CODE" envSeparator:","`
	HideUserAPIKey     string   `env:"HIDE_USER_API_KEY"`
	Vercel             string   `env:"VERCEL"`
	FirebaseAPIKey     string   `env:"FIREBASE_API_KEY"`
	FirebaseAuthDomain string   `env:"FIREBASE_AUTH_DOMAIN"`
	FirebaseProjectID  string   `env:"FIREBASE_PROJECT_ID"`
}

// ApplyEnv overlays server-side environment variables on the configuration.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	setIfPresent(&c.Providers.OpenAI.APIKey, o.OpenAIAPIKey)
	setIfPresent(&c.Providers.OpenAI.BaseURL, o.BaseURL)
	setIfPresent(&c.Providers.Allen.BaseURL, o.AllenURL)
	setIfPresent(&c.Access.AzureURL, o.AzureURL)
	setIfPresent(&c.Access.AzureAPIKey, o.AzureAPIKey)
	setIfPresent(&c.Access.AzureAPIVersion, o.AzureAPIVersion)
	setIfPresent(&c.Auth.Firebase.APIKey, o.FirebaseAPIKey)
	setIfPresent(&c.Auth.Firebase.AuthDomain, o.FirebaseAuthDomain)
	setIfPresent(&c.Auth.Firebase.ProjectID, o.FirebaseProjectID)

	for _, code := range o.Codes {
		if code = strings.TrimSpace(code); code != "" {
			c.Auth.AccessCodes = append(c.Auth.AccessCodes, code)
		}
	}
	if o.HideUserAPIKey != "" {
		c.Auth.HideUserAPIKey = true
	}
	if o.Vercel != "" {
		c.Analytics.Vercel = true
	}
	return nil
}

func setIfPresent(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.Origin != "" {
		if _, err := url.ParseRequestURI(c.Server.Origin); err != nil {
			return fmt.Errorf("server.origin %q is not a valid URL: %w", c.Server.Origin, err)
		}
	}

	switch c.Access.Provider {
	case ProviderOpenAI, ProviderAzure:
	default:
		return fmt.Errorf("access.provider must be one of %q or %q, got %q", ProviderOpenAI, ProviderAzure, c.Access.Provider)
	}

	switch c.Client.Platform {
	case PlatformAllen, PlatformOpenAI:
	default:
		return fmt.Errorf("client.platform must be one of %q or %q, got %q", PlatformAllen, PlatformOpenAI, c.Client.Platform)
	}
	if c.Client.RequestTimeout <= 0 {
		return errors.New("client.request_timeout must be positive")
	}
	if !c.Client.IsApp && c.Server.Origin == "" && !c.Access.UseCustomConfig {
		return errors.New("server.origin is required unless client.is_app or access.use_custom_config is set")
	}

	providers := map[string]ProviderConfig{
		PlatformOpenAI: c.Providers.OpenAI,
		PlatformAllen:  c.Providers.Allen,
	}
	for name, provider := range providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	if c.Auth.RequireUser && strings.TrimSpace(c.Auth.Firebase.ProjectID) == "" {
		return errors.New("auth.firebase.project_id must be provided when auth.require_user is set")
	}

	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if provider.BaseURL != "" {
		if _, err := url.ParseRequestURI(provider.BaseURL); err != nil {
			return fmt.Errorf("provider %s: base_url %q is not a valid URL", name, provider.BaseURL)
		}
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
