package genaiclient

import (
	"fmt"
	"net/url"
	"strings"
)

// Verb is one of the generative-model API operations spec.md §4.G names.
type Verb string

const (
	VerbGenerateContent       Verb = "generateContent"
	VerbStreamGenerateContent Verb = "streamGenerateContent"
	VerbCountTokens           Verb = "countTokens"
	VerbEmbedContent          Verb = "embedContent"
	VerbPredict               Verb = "predict"
)

// stripModelsPrefix accepts a model name with or without a leading
// "models/" and returns the bare name, mirroring the URL composition rule
// in §4.G and extract.Model's identical stripping logic.
func stripModelsPrefix(name string) string {
	return strings.TrimPrefix(name, "models/")
}

// developerURL composes <base>/models/<name>:<verb>.
func developerURL(baseURL, model string, verb Verb) string {
	name := url.PathEscape(stripModelsPrefix(model))
	return fmt.Sprintf("%s/models/%s:%s", strings.TrimRight(baseURL, "/"), name, verb)
}

// vertexURL composes the regional Vertex path. If global is true, the
// region-prefixed host is replaced with "aiplatform.googleapis.com" per
// the 404 fallback rewrite rule.
func vertexURL(cfg Config, model string, verb Verb, global bool) string {
	name := url.PathEscape(stripModelsPrefix(model))
	host := cfg.VertexLocation + "-aiplatform.googleapis.com"
	if global {
		host = "aiplatform.googleapis.com"
	}
	return fmt.Sprintf("https://%s/v1/projects/%s/locations/%s/publishers/%s/models/%s:%s",
		host, cfg.VertexProject, cfg.VertexLocation, cfg.publisher(), name, verb)
}

// listModelsURL composes the GET models listing endpoint for the
// developer backend, with optional pagination.
func listModelsURL(baseURL string, pageSize int, pageToken string) string {
	u := fmt.Sprintf("%s/models", strings.TrimRight(baseURL, "/"))
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", fmt.Sprintf("%d", pageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}
