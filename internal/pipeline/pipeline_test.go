package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/genaibridge/genai-bridge/internal/authresolver"
	"github.com/genaibridge/genai-bridge/internal/budget"
	"github.com/genaibridge/genai-bridge/internal/genaiclient"
	"github.com/genaibridge/genai-bridge/internal/ratelimit"
)

func newTestPipeline(t *testing.T, baseURL string, baseMaxPerDay int64) *Pipeline {
	t.Helper()
	rl := ratelimit.New(ratelimit.Config{MaxPerMinute: 60, IdleTTL: time.Hour, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	b := budget.New(budget.Config{BaseMaxPerDay: baseMaxPerDay, Policy: budget.PolicyNever})

	return &Pipeline{
		Limits: Limits{RateLimiter: ratelimit.LocalChecker{Limiter: rl}, Budget: budget.LocalGovernor{Budget: b}, RateKey: "default"},
		Auth: AuthConfig{
			Resolver: authresolver.New(zerolog.Nop(), nil, nil),
			Mode:     authresolver.ModeAPIKeyOnly,
			Options:  authresolver.Options{InlineAPIKey: "test-key"},
			Backend:  genaiclient.BackendDeveloper,
			BaseURL:  baseURL,
		},
		Validation: ValidationLimits{MaxOutputTokens: 8192, MaxInputChars: 1_000_000},
		Logger:     zerolog.Nop(),
	}
}

func TestRunCommitsActualUsageOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}`))
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 1000)
	res, err := p.Run(context.Background(), Request{
		ToolName:        "generate_content",
		Model:           "gemini-2.5-flash",
		MaxOutputTokens: 100,
		InputChars:      40,
		Verb:            genaiclient.VerbGenerateContent,
		Method:          "POST",
		Body:            []byte(`{}`),
	}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Usage.UsedTokens != 7 {
		t.Fatalf("expected committed usage of 7 tokens, got %d", res.Usage.UsedTokens)
	}
	if res.Usage.PerTool["generate_content"].Calls != 1 {
		t.Fatalf("expected one call recorded for generate_content, got %+v", res.Usage.PerTool)
	}
}

func TestRunReleasesReservationOnClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 1000)
	_, err := p.Run(context.Background(), Request{
		ToolName:        "generate_content",
		Model:           "gemini-2.5-flash",
		MaxOutputTokens: 100,
		InputChars:      40,
		Verb:            genaiclient.VerbGenerateContent,
		Method:          "POST",
		Body:            []byte(`{}`),
	}, false)
	if err == nil {
		t.Fatal("expected an error from the upstream 500")
	}
	if got := p.Limits.Budget.GetUsage(context.Background()).UsedTokens; got != 0 {
		t.Fatalf("expected reservation to be released back to zero, got %d", got)
	}
}

func TestRunCountTokensNeverConsumesBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalTokens":123}`))
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 1000)
	res, err := p.Run(context.Background(), Request{
		ToolName:        "count_tokens",
		Model:           "gemini-2.5-flash",
		MaxOutputTokens: 0,
		InputChars:      40,
		Verb:            genaiclient.VerbCountTokens,
		Method:          "POST",
		Body:            []byte(`{}`),
	}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Usage.UsedTokens != 0 {
		t.Fatalf("expected count_tokens to consume zero budget, got %d", res.Usage.UsedTokens)
	}
}

func TestRunRejectsOversizedRequestBeforeAnyNetworkCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 1000)
	_, err := p.Run(context.Background(), Request{
		ToolName:        "generate_content",
		Model:           "gemini-2.5-flash",
		MaxOutputTokens: 999999,
		InputChars:      40,
		Verb:            genaiclient.VerbGenerateContent,
		Method:          "POST",
		Body:            []byte(`{}`),
	}, false)
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if called {
		t.Fatal("expected the upstream server never to be contacted")
	}
}

func TestRunRejectsOverBudgetReservation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalTokens":1}`))
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 10)
	_, err := p.Run(context.Background(), Request{
		ToolName:        "generate_content",
		Model:           "gemini-2.5-flash",
		MaxOutputTokens: 100,
		InputChars:      40,
		Verb:            genaiclient.VerbGenerateContent,
		Method:          "POST",
		Body:            []byte(`{}`),
	}, false)
	if err == nil {
		t.Fatal("expected BudgetExceeded")
	}
}
