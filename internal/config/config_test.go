package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsVertexWithoutProject(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendVertex
	assert.Equal(t, ErrMissingVertexProject, cfg.Validate())

	cfg.Vertex.Project = "p"
	assert.Equal(t, ErrMissingVertexLocation, cfg.Validate())
}

func TestValidateRejectsUnknownAuthMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthMode = "bogus"
	assert.Equal(t, ErrInvalidAuthMode, cfg.Validate())
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend":"vertex","vertex":{"project":"p","location":"us-central1"},"rateLimit":{"maxPerMinute":10}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendVertex, cfg.Backend)
	assert.Equal(t, "p", cfg.Vertex.Project)
	assert.Equal(t, 10, cfg.RateLimit.MaxPerMinute)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsSentinel(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.json")
	assert.Error(t, err)
}

func TestEnvironmentOverridesBudgetAndRateLimit(t *testing.T) {
	t.Setenv("GEMINI_MAX_PER_MINUTE", "5")
	t.Setenv("GEMINI_MAX_TOKENS_PER_DAY", "2000")
	t.Setenv("GEMINI_BUDGET_APPROVAL_POLICY", "prompt")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.RateLimit.MaxPerMinute)
	assert.EqualValues(t, 2000, cfg.Budget.MaxTokensPerDay)
	assert.Equal(t, ApprovalPrompt, cfg.Budget.ApprovalPolicy)
}

func TestOAuthEnvOverridesReadsBothVars(t *testing.T) {
	t.Setenv("GEMINI_OAUTH_TOKEN", "primary-token")
	t.Setenv("GEMINI_OAUTH_TOKEN_ALT", "")

	overrides := OAuthEnvOverrides()
	assert.Equal(t, "primary-token", overrides["GEMINI_OAUTH_TOKEN"])
}
