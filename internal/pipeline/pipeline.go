// Package pipeline implements spec.md §4.H: the fixed per-tool-invocation
// sequence every generative-model tool executes — validate, rate-check,
// reserve, authenticate, call, extract, commit/release, format. It is the
// one place that binds the other eight components together.
//
// Grounded on toolbridge-api's mcpserver/tools/registry.go (thread-safe
// registration) and mcpserver/tools/context.go (ToolContext threading
// per-call state), generalized from CRUD entity calls to generative-model
// calls; mcpserver/tools/errors.go's ToolError/WrapClientError pattern is
// adapted wholesale into Format's error translation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/authresolver"
	"github.com/genaibridge/genai-bridge/internal/budget"
	"github.com/genaibridge/genai-bridge/internal/genaiclient"
	"github.com/genaibridge/genai-bridge/internal/genaiclient/extract"
	"github.com/genaibridge/genai-bridge/internal/ratelimit"
	"github.com/genaibridge/genai-bridge/internal/redact"
)

// Limits are the two concurrency governors every call passes through.
// Both fields are interfaces so a cross-process deployment can swap in
// ratelimit.SharedChecker / budget.SharedBudget without the pipeline
// caring which implementation it holds (see cmd/genaibridge/main.go).
type Limits struct {
	RateLimiter ratelimit.Checker
	Budget      budget.Governor
	// RateKey partitions the rate limiter's sliding window; the bridge
	// runs one process per credential chain, so a fixed key is enough,
	// but multi-key deployments can vary it per caller.
	RateKey string
}

// AuthConfig bundles the inputs the pipeline needs to resolve credentials
// and then build a genaiclient.Client from whichever credential wins.
type AuthConfig struct {
	Resolver *authresolver.Resolver
	Mode     authresolver.Mode
	Options  authresolver.Options

	Backend                genaiclient.Backend
	BaseURL                string
	APIKeyFallbackBaseURL  string
	AllowAPIKeyFallback    bool
	APIKeyFallbackPolicy   genaiclient.FallbackPolicy
	TimeoutMS              int
	QuotaProject           string
	VertexProject          string
	VertexLocation         string
}

// ValidationLimits bound a single request's size, per spec.md §4.H step 1.
type ValidationLimits struct {
	MaxOutputTokens int
	MaxInputChars   int
}

// Pipeline is the stateful component gluing the governors, the resolver,
// and the model client together. One Pipeline instance is shared by every
// registered MCP tool handler.
type Pipeline struct {
	Limits     Limits
	Auth       AuthConfig
	Validation ValidationLimits
	Logger     zerolog.Logger
}

// Request is one tool invocation's input, already unmarshaled and
// tool-specific-validated by the caller; Pipeline only applies the
// cross-cutting checks in step 1.
type Request struct {
	ToolName        string
	Model           string
	MaxOutputTokens int
	InputChars      int
	Verb            genaiclient.Verb
	Method          string
	Body            []byte
}

// Result is what Format hands back to the MCP tool handler.
type Result struct {
	Body     []byte
	Usage    budget.Usage
	Notices  []genaiclient.Notice
	Warnings []string
	// Text is only populated by RunStream, where Body is the final
	// chunk's raw JSON (the one carrying finishReason/usageMetadata) and
	// the caller-visible text is instead the concatenation of every
	// chunk's extracted text.
	Text string
}

// Run executes the full sequence in spec.md §4.H. countsAsZero lets
// callers like count_tokens commit zero tokens regardless of what the
// upstream response reports, since counting tokens does not consume the
// daily budget.
func (p *Pipeline) Run(ctx context.Context, req Request, countsAsZero bool) (Result, error) {
	if err := p.validate(req); err != nil {
		return Result{}, err
	}
	if err := p.Limits.RateLimiter.CheckOrThrow(ctx, p.Limits.RateKey, time.Now()); err != nil {
		return Result{}, err
	}

	estimate := int64(req.MaxOutputTokens) + int64((req.InputChars+3)/4)
	reservation, err := p.Limits.Budget.Reserve(ctx, estimate)
	if err != nil {
		return Result{}, err
	}

	released := false
	release := func() {
		if !released {
			p.Limits.Budget.Release(ctx, reservation)
			released = true
		}
	}
	defer release()

	cred, err := p.Auth.Resolver.Resolve(ctx, p.Auth.Mode, p.Auth.Options)
	if err != nil {
		return Result{}, err
	}

	clientCfg := p.buildClientConfig(cred)
	client := genaiclient.New(clientCfg, nil, p.Logger)

	body, err := client.Call(ctx, req.Method, req.Verb, req.Model, req.Body)
	if err != nil {
		if _, ok := err.(*apierr.Cancelled); ok {
			return Result{}, err // release runs via defer, never committed
		}
		return Result{}, err
	}

	actual := usageFromBody(body)
	if countsAsZero {
		actual = 0
	}

	released = true // commit replaces the release that would otherwise run
	p.Limits.Budget.Commit(ctx, req.ToolName, actual, nil, &reservation)

	notices := client.DrainNotices()
	warnings := make([]string, 0, len(notices))
	for _, n := range notices {
		warnings = append(warnings, fmt.Sprintf("Switched from OAuth/ADC to API key (status %d): %s", n.Status, redact.String(n.Message)))
	}

	// Step 6: a generateContent-family response with no text alongside a
	// finish or block reason is a structured error, not a silent
	// empty-text success. The call still consumed tokens, so the budget
	// commit above stands regardless.
	if isGenerateVerb(req.Verb) && extract.Text(body) == "" {
		finish := extract.FinishReason(body)
		block := extract.BlockReason(body)
		if finish != "" || block != "" {
			return Result{}, &apierr.ContentBlocked{FinishReason: finish, BlockReason: block}
		}
	}

	return Result{
		Body:     body,
		Usage:    p.Limits.Budget.GetUsage(ctx),
		Notices:  notices,
		Warnings: warnings,
	}, nil
}

// RunStream drives spec.md §4.H step 5's streaming path: the same
// validate/rate-check/reserve/authenticate preamble as Run, then a
// streamGenerateContent call whose chunks are handed to onChunk as they
// arrive. The reservation is committed from the final chunk's
// usageMetadata once the stream ends, mirroring Run's single commit —
// there is one reservation and one commit per tool call whether or not
// the underlying transport streamed.
func (p *Pipeline) RunStream(ctx context.Context, req Request, onChunk func(genaiclient.Chunk)) (Result, error) {
	if err := p.validate(req); err != nil {
		return Result{}, err
	}
	if err := p.Limits.RateLimiter.CheckOrThrow(ctx, p.Limits.RateKey, time.Now()); err != nil {
		return Result{}, err
	}

	estimate := int64(req.MaxOutputTokens) + int64((req.InputChars+3)/4)
	reservation, err := p.Limits.Budget.Reserve(ctx, estimate)
	if err != nil {
		return Result{}, err
	}

	released := false
	release := func() {
		if !released {
			p.Limits.Budget.Release(ctx, reservation)
			released = true
		}
	}
	defer release()

	cred, err := p.Auth.Resolver.Resolve(ctx, p.Auth.Mode, p.Auth.Options)
	if err != nil {
		return Result{}, err
	}

	clientCfg := p.buildClientConfig(cred)
	client := genaiclient.New(clientCfg, nil, p.Logger)

	chunkCh, errCh := client.Stream(ctx, req.Model, req.Body)

	var lastChunk genaiclient.Chunk
	var text string
	var sawChunk bool
	for c := range chunkCh {
		sawChunk = true
		lastChunk = c
		text += extract.Text(c.Data)
		if onChunk != nil {
			onChunk(c)
		}
	}
	if streamErr := <-errCh; streamErr != nil {
		if _, ok := streamErr.(*apierr.Cancelled); ok {
			return Result{}, streamErr // release runs via defer, never committed
		}
		return Result{}, streamErr
	}
	if !sawChunk {
		return Result{}, &apierr.ContentBlocked{}
	}

	actual := usageFromBody(lastChunk.Data)
	released = true // commit replaces the release that would otherwise run
	p.Limits.Budget.Commit(ctx, req.ToolName, actual, nil, &reservation)

	notices := client.DrainNotices()
	warnings := make([]string, 0, len(notices))
	for _, n := range notices {
		warnings = append(warnings, fmt.Sprintf("Switched from OAuth/ADC to API key (status %d): %s", n.Status, redact.String(n.Message)))
	}

	if text == "" {
		finish := extract.FinishReason(lastChunk.Data)
		block := extract.BlockReason(lastChunk.Data)
		if finish != "" || block != "" {
			return Result{}, &apierr.ContentBlocked{FinishReason: finish, BlockReason: block}
		}
	}

	return Result{
		Body:     lastChunk.Data,
		Text:     text,
		Usage:    p.Limits.Budget.GetUsage(ctx),
		Notices:  notices,
		Warnings: warnings,
	}, nil
}

// isGenerateVerb reports whether verb produces generateContent-shaped
// output (candidates/text), as opposed to countTokens/embedContent/predict
// responses the empty-text check does not apply to.
func isGenerateVerb(verb genaiclient.Verb) bool {
	return verb == genaiclient.VerbGenerateContent || verb == genaiclient.VerbStreamGenerateContent
}

func (p *Pipeline) validate(req Request) error {
	if p.Validation.MaxOutputTokens > 0 && req.MaxOutputTokens > p.Validation.MaxOutputTokens {
		return &apierr.ConfigError{Message: fmt.Sprintf("max_output_tokens %d exceeds configured maximum %d", req.MaxOutputTokens, p.Validation.MaxOutputTokens)}
	}
	if p.Validation.MaxInputChars > 0 && req.InputChars > p.Validation.MaxInputChars {
		return &apierr.ConfigError{Message: fmt.Sprintf("input of %d characters exceeds configured maximum %d", req.InputChars, p.Validation.MaxInputChars)}
	}
	return nil
}

func (p *Pipeline) buildClientConfig(cred authresolver.Credential) genaiclient.Config {
	cfg := genaiclient.Config{
		Backend:               p.Auth.Backend,
		BaseURL:               p.Auth.BaseURL,
		APIKeyFallbackBaseURL: p.Auth.APIKeyFallbackBaseURL,
		TimeoutMS:             p.Auth.TimeoutMS,
		QuotaProject:          p.Auth.QuotaProject,
		VertexProject:         p.Auth.VertexProject,
		VertexLocation:        p.Auth.VertexLocation,
	}

	switch c := cred.(type) {
	case authresolver.APIKeyCredential:
		cfg.APIKey = c.Value
	case authresolver.OAuthCredential:
		cfg.AccessToken = c.AccessToken
		// Auto mode also resolves an API key for fallback purposes when one
		// is configured; AllowAPIKeyFallback/-Policy are fixed per
		// deployment config, not per call.
		if p.Auth.Mode == authresolver.ModeAuto {
			if ak, err := bestEffortAPIKey(p.Auth.Resolver, p.Auth.Options); err == nil {
				cfg.APIKey = ak
				cfg.AllowAPIKeyFallback = p.Auth.AllowAPIKeyFallback
				cfg.APIKeyFallbackPolicy = p.Auth.APIKeyFallbackPolicy
			}
		}
	}
	return cfg
}

// bestEffortAPIKey resolves an API key without failing the whole call if
// none is configured — it exists purely to populate the fallback slot.
func bestEffortAPIKey(r *authresolver.Resolver, opts authresolver.Options) (string, error) {
	cred, err := r.Resolve(context.Background(), authresolver.ModeAPIKeyOnly, opts)
	if err != nil {
		return "", err
	}
	ak, ok := cred.(authresolver.APIKeyCredential)
	if !ok {
		return "", fmt.Errorf("unexpected credential kind")
	}
	return ak.Value, nil
}

func usageFromBody(body []byte) int64 {
	return int64(extract.UsageFromResponse(body).TotalTokens)
}
