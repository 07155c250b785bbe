package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Load loads configuration from a file path (if non-empty) and applies
// environment variable overrides. Validation is deferred so CLI flag
// overrides can be applied by the caller before Validate runs, mirroring
// toolbridge-api's Load/applyEnvironmentOverrides split.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		fileConfig, err := loadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = fileConfig
	}

	applyEnvironmentOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfigFormat, err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides maps the non-credential portion of the env var
// table in spec.md §6 onto cfg. The credential env vars themselves
// (GEMINI_API_KEY, GOOGLE_API_KEY, GEMINI_API_KEY_FILE, GEMINI_OAUTH_TOKEN
// (_ALT), GOOGLE_APPLICATION_CREDENTIALS) are deliberately NOT merged here:
// authresolver.Options already names each one (PrimaryEnvVar, AltEnvVar,
// KeyFileEnvVar, OAuthTokenPrimaryEnvVar/Alt,
// ApplicationDefaultCredentialsPathEnvVar) and re-checks the process
// environment itself on every Resolve call, which both avoids double
// resolution and keeps the resolver's own precedence chain — not a second
// copy of it — authoritative. See ResolverOptions in main.go's composition
// root for where those env var names are wired in.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("VERTEX_PROJECT"); v != "" {
		cfg.Vertex.Project = v
	}
	if v := os.Getenv("VERTEX_LOCATION"); v != "" {
		cfg.Vertex.Location = v
	}
	if v := os.Getenv("VERTEX_QUOTA_PROJECT"); v != "" {
		cfg.Vertex.QuotaProject = v
	}
	if v := os.Getenv("VERTEX_API_BASE_URL"); v != "" {
		cfg.Vertex.APIBaseURL = v
	}

	if v := os.Getenv("GEMINI_BACKEND"); v != "" {
		cfg.Backend = Backend(v)
	}
	if v := os.Getenv("GEMINI_AUTH_MODE"); v != "" {
		cfg.AuthMode = AuthMode(v)
	}
	if v := os.Getenv("GEMINI_AUTH_FALLBACK_POLICY"); v != "" {
		cfg.Fallback = FallbackPolicy(v)
	}

	if v := os.Getenv("GEMINI_MAX_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MaxPerMinute = n
		}
	}

	if v := os.Getenv("GEMINI_MAX_TOKENS_PER_DAY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Budget.MaxTokensPerDay = n
		}
	}
	if v := os.Getenv("GEMINI_BUDGET_INCREMENT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Budget.IncrementTokens = n
		}
	}
	if v := os.Getenv("GEMINI_BUDGET_APPROVAL_POLICY"); v != "" {
		cfg.Budget.ApprovalPolicy = ApprovalPolicy(v)
	}
	if v := os.Getenv("GEMINI_BUDGET_APPROVAL_PATH"); v != "" {
		cfg.Budget.ApprovalPath = v
	}

	if v := os.Getenv("GEMINI_SHARED_LIMITS_ENABLED"); v != "" {
		cfg.SharedStore.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GEMINI_SHARED_STORE_URL"); v != "" {
		cfg.SharedStore.URL = v
	}
	if v := os.Getenv("GEMINI_SHARED_STORE_PREFIX"); v != "" {
		cfg.SharedStore.Prefix = v
	}
}

// OAuthEnvOverrides builds the authresolver.Options.EnvOverrides map for
// the two OAuth-token env vars spec.md §6 names, so the resolver doesn't
// need to read the process environment a second time.
func OAuthEnvOverrides() map[string]string {
	overrides := make(map[string]string, 2)
	for _, name := range []string{"GEMINI_OAUTH_TOKEN", "GEMINI_OAUTH_TOKEN_ALT"} {
		overrides[name] = strings.TrimSpace(os.Getenv(name))
	}
	return overrides
}
