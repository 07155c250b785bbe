package genaiclient

// Backend selects one of the two URL/auth shapes spec.md §4.G describes.
type Backend string

const (
	BackendDeveloper Backend = "developer"
	BackendVertex    Backend = "vertex"
)

// FallbackPolicy governs what the client does when an OAuth-authenticated
// call comes back 401/403 and an API key is also available.
type FallbackPolicy string

const (
	FallbackAuto   FallbackPolicy = "auto"
	FallbackPrompt FallbackPolicy = "prompt"
)

// Config enumerates every knob spec.md §4.G names.
type Config struct {
	Backend Backend
	BaseURL string

	APIKey      string
	AccessToken string

	APIKeyFallbackBaseURL string
	AllowAPIKeyFallback   bool
	APIKeyFallbackPolicy  FallbackPolicy

	TimeoutMS int

	QuotaProject string

	// Vertex-only path components.
	VertexProject  string
	VertexLocation string
	VertexPublisher string
}

func (c Config) publisher() string {
	if c.VertexPublisher != "" {
		return c.VertexPublisher
	}
	return "google"
}
