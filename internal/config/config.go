// Package config loads genai-bridge's configuration from an optional JSON
// file plus environment-variable overrides, deferring validation so CLI
// flags applied by the caller can win before Validate runs. Grounded on
// toolbridge-api's internal/mcpserver/config/{config,loader,errors}.go —
// same DefaultConfig/Load/Validate shape, same "env overrides file" order,
// generalized from Auth0/workspace settings to the credential, backend,
// rate-limit, and budget knobs spec.md §6 names.
package config

import "github.com/genaibridge/genai-bridge/internal/authresolver"

// Backend selects which of the two upstream URL/auth shapes the bridge
// targets.
type Backend string

const (
	BackendDeveloper Backend = "developer"
	BackendVertex    Backend = "vertex"
)

// AuthMode mirrors authresolver.Mode at the config layer, kept as its own
// type so the JSON schema doesn't leak an internal package's type.
type AuthMode string

const (
	AuthModeAPIKeyOnly AuthMode = "api_key_only"
	AuthModeOAuthOnly  AuthMode = "oauth_only"
	AuthModeAuto       AuthMode = "auto"
)

// FallbackPolicy governs what happens when an OAuth-authenticated call is
// rejected and an API key is also configured.
type FallbackPolicy string

const (
	FallbackAuto   FallbackPolicy = "auto"
	FallbackPrompt FallbackPolicy = "prompt"
)

// ApprovalPolicy governs what happens when a reservation would exceed the
// daily token budget.
type ApprovalPolicy string

const (
	ApprovalNever  ApprovalPolicy = "never"
	ApprovalPrompt ApprovalPolicy = "prompt"
	ApprovalAuto   ApprovalPolicy = "auto"
)

// CredentialsConfig names where each credential source may be found, per
// spec.md §4.C's resolution chain.
type CredentialsConfig struct {
	APIKey                   string   `json:"apiKey,omitempty"`
	APIKeyFilePaths          []string `json:"apiKeyFilePaths,omitempty"`
	OAuthScopes              []string `json:"oauthScopes,omitempty"`
	ApplicationDefaultCredentialsPath string `json:"applicationDefaultCredentialsPath,omitempty"`
}

// VertexConfig holds the Vertex-only path components and quota project.
type VertexConfig struct {
	Project      string `json:"project,omitempty"`
	Location     string `json:"location,omitempty"`
	Publisher    string `json:"publisher,omitempty"`
	QuotaProject string `json:"quotaProject,omitempty"`
	APIBaseURL   string `json:"apiBaseUrl,omitempty"`
}

// RateLimitConfig configures the sliding-window admission component.
type RateLimitConfig struct {
	MaxPerMinute int `json:"maxPerMinute,omitempty"`
}

// BudgetConfig configures the daily token budget and its approval policy.
type BudgetConfig struct {
	MaxTokensPerDay int64          `json:"maxTokensPerDay,omitempty"`
	IncrementTokens int64          `json:"incrementTokens,omitempty"`
	ApprovalPolicy  ApprovalPolicy `json:"approvalPolicy,omitempty"`
	ApprovalPath    string         `json:"approvalPath,omitempty"`
}

// SharedStoreConfig configures the optional cross-process limit store.
type SharedStoreConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	URL     string `json:"url,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
}

// Config is genai-bridge's top-level configuration document.
type Config struct {
	Backend     Backend            `json:"backend"`
	BaseURL     string             `json:"baseUrl,omitempty"`
	AuthMode    AuthMode           `json:"authMode"`
	Fallback    FallbackPolicy     `json:"fallbackPolicy"`
	TimeoutMS   int                `json:"timeoutMs,omitempty"`
	Credentials CredentialsConfig  `json:"credentials"`
	Vertex      VertexConfig       `json:"vertex"`
	RateLimit   RateLimitConfig    `json:"rateLimit"`
	Budget      BudgetConfig       `json:"budget"`
	SharedStore SharedStoreConfig  `json:"sharedStore"`

	Debug    bool   `json:"debug,omitempty"`
	LogLevel string `json:"logLevel,omitempty"`
}

// DefaultConfig returns a configuration with the baseline values spec.md
// names where it specifies one (60/minute, never-approve budget policy)
// and otherwise a conservative default.
func DefaultConfig() *Config {
	return &Config{
		Backend:  BackendDeveloper,
		BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
		AuthMode: AuthModeAuto,
		Fallback: FallbackAuto,
		RateLimit: RateLimitConfig{
			MaxPerMinute: 60,
		},
		Budget: BudgetConfig{
			MaxTokensPerDay: 1_000_000,
			IncrementTokens: 100_000,
			ApprovalPolicy:  ApprovalNever,
		},
		LogLevel: "info",
	}
}

// Validate checks that the configuration is internally consistent,
// matching toolbridge-api's Validate pattern of one sentinel error per
// missing required field.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDeveloper:
		if c.BaseURL == "" {
			return ErrMissingBaseURL
		}
	case BackendVertex:
		if c.Vertex.Project == "" {
			return ErrMissingVertexProject
		}
		if c.Vertex.Location == "" {
			return ErrMissingVertexLocation
		}
	default:
		return ErrInvalidBackend
	}

	switch c.AuthMode {
	case AuthModeAPIKeyOnly, AuthModeOAuthOnly, AuthModeAuto:
	default:
		return ErrInvalidAuthMode
	}

	switch c.Budget.ApprovalPolicy {
	case ApprovalNever, ApprovalPrompt, ApprovalAuto, "":
	default:
		return ErrInvalidApprovalPolicy
	}

	return nil
}

// ResolverMode converts the config-layer AuthMode into authresolver.Mode.
func (c *Config) ResolverMode() authresolver.Mode {
	switch c.AuthMode {
	case AuthModeAPIKeyOnly:
		return authresolver.ModeAPIKeyOnly
	case AuthModeOAuthOnly:
		return authresolver.ModeOAuthOnly
	default:
		return authresolver.ModeAuto
	}
}
