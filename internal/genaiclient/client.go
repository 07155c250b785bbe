// Package genaiclient implements spec.md §4.G: dual-backend URL/header
// composition, JSON and streaming response parsing, automatic
// OAuth→API-key retry on 401/403, and a single regional→global retry for
// Vertex 404s. The retry loop's shape — clone the request, dispatch on
// status code, back off, retry up to a fixed count — is grounded on
// toolbridge-api's mcpserver/client/httpclient.go (cloneRequest,
// doWithRetry, parseRetryAfter); header/URL composition is grounded on
// j2h4u-Context-Gateway's external/llm.go (setAuthHeaders) and
// internal/adapters/gemini.go (ExtractModel's "models/" stripping).
package genaiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/redact"
)

// MaxRetries bounds the 429-backoff loop and the 401/403-fallback retry,
// mirroring MaxRetries in the teacher's httpclient.go.
const MaxRetries = 3

// Client is the stateful component: one per resolved credential set. It
// is not safe to reuse across tool calls with different credentials —
// the pipeline constructs a fresh Client (cheap: no persistent
// connections beyond the wrapped *http.Client) per invocation when the
// resolved credential differs from the previous call.
type Client struct {
	cfg        Config
	httpClient *http.Client
	notices    noticeQueue
	logger     zerolog.Logger
}

// New constructs a Client. If httpClient is nil, one is built from
// cfg.TimeoutMS (defaulting to 30s).
func New(cfg Config, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		timeout := 30 * time.Second
		if cfg.TimeoutMS > 0 {
			timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// DrainNotices returns and clears every Notice queued since the last
// drain, for the pipeline to surface as warnings (§4.H step 8).
func (c *Client) DrainNotices() []Notice {
	return c.notices.Drain()
}

// authMode tracks which header style the current attempt is using, so a
// 401/403 retry can rewrite from bearer to key.
type authMode int

const (
	authBearer authMode = iota
	authAPIKey
)

// buildRequest composes one HTTP request for the given verb/model under
// the given auth mode and (for Vertex) region scope.
func (c *Client) buildRequest(ctx context.Context, method string, verb Verb, model string, body []byte, mode authMode, global bool) (*http.Request, error) {
	var urlStr string
	var headers http.Header = make(http.Header)

	useVertex := c.cfg.Backend == BackendVertex && mode == authBearer
	if useVertex {
		urlStr = vertexURL(c.cfg, model, verb, global)
	} else {
		base := c.cfg.BaseURL
		if mode == authAPIKey && c.cfg.APIKeyFallbackBaseURL != "" {
			base = c.cfg.APIKeyFallbackBaseURL
		}
		urlStr = developerURL(base, model, verb)
	}

	switch mode {
	case authBearer:
		if c.cfg.AccessToken == "" {
			return nil, &apierr.ApiError{Status: 401, Message: "MissingAuth: no access token configured"}
		}
		headers.Set("Authorization", "Bearer "+c.cfg.AccessToken)
		if useVertex && c.cfg.QuotaProject != "" {
			headers.Set("X-Goog-User-Project", c.cfg.QuotaProject)
		}
	case authAPIKey:
		if c.cfg.APIKey == "" {
			return nil, &apierr.ApiError{Status: 401, Message: "MissingAuth: no api key configured"}
		}
		headers.Set("x-goog-api-key", c.cfg.APIKey)
	}
	headers.Set("Content-Type", "application/json")

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = headers
	return req, nil
}

// initialAuthMode picks the header style a fresh request should use:
// bearer whenever an access token is configured (matching spec.md's
// "Bearer path" precedence), key path otherwise.
func (c *Client) initialAuthMode() authMode {
	if c.cfg.AccessToken != "" {
		return authBearer
	}
	return authAPIKey
}

// Call executes one non-streaming generative-model request and returns
// the raw response body, retrying/falling back per spec.md §4.G.
func (c *Client) Call(ctx context.Context, method string, verb Verb, model string, body []byte) ([]byte, error) {
	if c.cfg.AccessToken == "" && c.cfg.APIKey == "" {
		return nil, &apierr.ApiError{Status: 401, Message: "MissingAuth: neither access token nor api key configured"}
	}

	mode := c.initialAuthMode()
	global := false
	fellBack := false

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		req, err := c.buildRequest(ctx, method, verb, model, body, mode, global)
		if err != nil {
			return nil, err
		}

		resp, respBody, err := c.do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &apierr.Cancelled{Cause: ctx.Err()}
			}
			return nil, &apierr.ApiError{Status: 0, Message: redact.String(err.Error())}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil

		case (resp.StatusCode == 401 || resp.StatusCode == 403) && mode == authBearer && !fellBack:
			if !c.cfg.AllowAPIKeyFallback || c.cfg.APIKey == "" {
				return nil, c.apiErrorFromBody(resp.StatusCode, respBody)
			}
			if c.cfg.APIKeyFallbackPolicy == FallbackPrompt {
				return nil, &apierr.ApiKeyFallbackPromptRequired{Status: resp.StatusCode}
			}
			c.notices.push(Notice{
				Type:    "auth_fallback",
				From:    "oauth",
				To:      "apiKey",
				Status:  resp.StatusCode,
				Message: redact.String(bodyMessage(respBody)),
			})
			mode = authAPIKey
			fellBack = true
			continue

		case resp.StatusCode == 404 && c.cfg.Backend == BackendVertex && !global:
			global = true
			continue

		case resp.StatusCode == 429:
			if attempt == MaxRetries {
				return nil, c.apiErrorFromBody(resp.StatusCode, respBody)
			}
			wait := retryAfter(resp.Header, attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, &apierr.Cancelled{Cause: ctx.Err()}
			}
			continue

		default:
			return nil, c.apiErrorFromBody(resp.StatusCode, respBody)
		}
	}

	return nil, &apierr.ApiError{Status: 0, Message: "exhausted retries"}
}

// ListModels issues a GET against the developer backend's models listing
// endpoint. Vertex does not expose an equivalent public listing endpoint
// through this client, so ListModels is developer-backend only.
func (c *Client) ListModels(ctx context.Context, pageSize int, pageToken string) ([]byte, error) {
	mode := c.initialAuthMode()
	urlStr := listModelsURL(c.cfg.BaseURL, pageSize, pageToken)

	headers := make(http.Header)
	switch mode {
	case authBearer:
		headers.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	case authAPIKey:
		headers.Set("x-goog-api-key", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header = headers

	resp, body, err := c.do(req)
	if err != nil {
		return nil, &apierr.ApiError{Message: redact.String(err.Error())}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiErrorFromBody(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	return resp, body, nil
}

func (c *Client) apiErrorFromBody(status int, body []byte) *apierr.ApiError {
	msg := bodyMessage(body)
	return &apierr.ApiError{Status: status, Body: redact.String(string(body)), Message: redact.String(msg)}
}

// bodyMessage extracts {"error":{"message": "..."}} when present, else
// returns the fixed string "Non-JSON response from Gemini API" per
// spec.md §4.G/§7's error mapping. The raw (clipped) body is carried
// separately in ApiError.Body — Message never duplicates it.
func bodyMessage(body []byte) string {
	type errShape struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	var e errShape
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return "Non-JSON response from Gemini API"
}

// retryAfter honors a Retry-After header (seconds or HTTP-date) when
// present, else falls back to cenkalti/backoff's exponential policy —
// replacing the teacher's hand-rolled DefaultBackoff*2^retryCount with a
// maintained implementation of the same idea.
func retryAfter(h http.Header, attempt int) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

