// Package redact strips secrets from strings and structured values before
// they reach a log sink or a tool caller. Every component on the
// outbound path (the tool pipeline, the auth resolver, the model HTTP
// client) runs its error messages and logged payloads through this
// package first.
package redact

import (
	"regexp"
	"strings"
)

const placeholder = "[redacted]"

// knownSecretKeys are JSON/map keys whose value is replaced outright,
// regardless of its shape. Drawn from the env var and ADC field names this
// codebase already treats as sensitive (api_key, client_secret,
// refresh_token, private_key, access_token, authorization, apiKey).
var knownSecretKeys = map[string]bool{
	"api_key":       true,
	"apiKey":        true,
	"client_secret": true,
	"refresh_token": true,
	"private_key":   true,
	"access_token":  true,
	"authorization": true,
	"token":         true,
	"id_token":      true,
}

var secretPatterns = []*regexp.Regexp{
	// Authorization: Bearer <token>
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]+`),
	// x-goog-api-key: <key> header form
	regexp.MustCompile(`(?i)x-goog-api-key:\s*[A-Za-z0-9._-]+`),
	// PEM private key blocks, any key type
	regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
	// JSON-encoded "key": "value" forms of the known secret keys
	regexp.MustCompile(`(?i)"(api_key|apiKey|client_secret|refresh_token|private_key|access_token|authorization|id_token)"\s*:\s*"[^"]*"`),
}

// String applies every secret pattern to s, in order, and returns the
// redacted result. It is pure and total: it never panics and always
// returns a string no longer than a small constant factor of the input.
func String(s string) string {
	out := s
	for _, pat := range secretPatterns {
		out = pat.ReplaceAllStringFunc(out, func(match string) string {
			// Preserve a short prefix (e.g. the header name, "Bearer ") so
			// the redacted message is still legible, but never emit any
			// substring of the secret itself.
			if idx := strings.IndexAny(match, ":"); idx >= 0 && strings.Contains(strings.ToLower(match[:idx]), "key") {
				return match[:idx+1] + " " + placeholder
			}
			if strings.HasPrefix(strings.ToLower(match), "bearer") {
				return "Bearer " + placeholder
			}
			return placeholder
		})
	}
	return out
}

// Meta recursively redacts a structured value (the result of
// json.Unmarshal into any, or a map/slice built by hand). Leaf strings are
// passed through String; values under a known secret key are replaced
// with the literal placeholder regardless of their content or type.
func Meta(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if knownSecretKeys[k] {
				out[k] = placeholder
				continue
			}
			out[k] = Meta(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Meta(inner)
		}
		return out
	case string:
		return String(val)
	default:
		return val
	}
}
