// Command genaibridge is the composition root: it loads configuration,
// wires the rate limiter, budget, shared store, auth resolver, and model
// client into one pipeline.Pipeline, registers the MCP tools against it,
// and serves either stdio or streamable-HTTP transport. Grounded on
// toolbridge-api's cmd/mcpbridge/main.go (flag set, loadConfig/setupLogging
// split, signal-driven graceful shutdown) and
// aezizhu-universal-model-registry's cmd/server/main.go (mcp.NewServer +
// mcp.AddTool wiring, chi-free net/http mux for the HTTP transport — this
// bridge uses chi instead since it is the teacher's own router).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/genaibridge/genai-bridge/internal/approvals"
	"github.com/genaibridge/genai-bridge/internal/authresolver"
	"github.com/genaibridge/genai-bridge/internal/budget"
	"github.com/genaibridge/genai-bridge/internal/config"
	"github.com/genaibridge/genai-bridge/internal/genaiclient"
	"github.com/genaibridge/genai-bridge/internal/mcptools"
	"github.com/genaibridge/genai-bridge/internal/pipeline"
	"github.com/genaibridge/genai-bridge/internal/ratelimit"
	"github.com/genaibridge/genai-bridge/internal/sharedstore"
)

const version = "0.1.0"

var (
	configPath  = flag.String("config", "", "Path to configuration file (JSON)")
	showVersion = flag.Bool("version", false, "Show version information")
	devMode     = flag.Bool("dev", false, "Enable development mode (verbose, unredacted-friendly logging)")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	transport   = flag.String("transport", "stdio", "Transport: stdio or http")
	httpAddr    = flag.String("http-addr", ":8090", "Listen address when -transport=http")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("genaibridge version %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("backend", string(cfg.Backend)).
		Str("authMode", string(cfg.AuthMode)).
		Bool("devMode", *devMode).
		Msg("Starting genai-bridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("genai-bridge failed")
		os.Exit(1)
	}

	log.Info().Msg("genai-bridge stopped gracefully")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	if *debugFlag {
		cfg.Debug = true
		if *logLevel == "info" {
			cfg.LogLevel = "debug"
		}
	}
	if *logLevel != "info" {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	level := parseLogLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	if cfg.Debug || *devMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if cfg.Debug {
		log.Logger = log.Logger.With().Caller().Logger()
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// run builds the pipeline and serves the selected transport until ctx is
// cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	logger := log.Logger

	var store sharedstore.Store
	if cfg.SharedStore.Enabled {
		s, err := sharedstore.NewRedisStore(ctx, cfg.SharedStore.URL, cfg.SharedStore.Prefix, 5*time.Second)
		if err != nil {
			logger.Warn().Err(err).Msg("shared limit store unavailable, falling back to local-only limits")
		} else {
			store = s
			defer s.Close()
		}
	}

	rl := ratelimit.New(ratelimit.Config{MaxPerMinute: cfg.RateLimit.MaxPerMinute})
	defer rl.Stop()

	approvalsStore := approvals.NewStore()
	b := budget.New(budget.Config{
		BaseMaxPerDay:   cfg.Budget.MaxTokensPerDay,
		IncrementTokens: cfg.Budget.IncrementTokens,
		Policy:          budget.ApprovalPolicy(cfg.Budget.ApprovalPolicy),
		Approvals:       approvalsStore,
		ApprovalsPath:   cfg.Budget.ApprovalPath,
	})

	// When the shared store connected, every process in the deployment
	// enforces the same rate limit and daily budget against it instead of
	// its own in-memory state; otherwise each falls back to the local
	// governors wrapped to satisfy the same interfaces.
	var rateChecker ratelimit.Checker = ratelimit.LocalChecker{Limiter: rl}
	var budgetGovernor budget.Governor = budget.LocalGovernor{Budget: b}
	if store != nil {
		rateChecker = ratelimit.NewSharedChecker(store, cfg.SharedStore.Prefix, cfg.RateLimit.MaxPerMinute)
		budgetGovernor = budget.NewSharedBudget(store, cfg.SharedStore.Prefix, budget.SharedConfig{
			BaseMaxPerDay:   cfg.Budget.MaxTokensPerDay,
			IncrementTokens: cfg.Budget.IncrementTokens,
			Policy:          budget.ApprovalPolicy(cfg.Budget.ApprovalPolicy),
			Approvals:       approvalsStore,
			ApprovalsPath:   cfg.Budget.ApprovalPath,
		})
	}

	resolver := authresolver.New(logger, nil, nil)

	authOpts := authresolver.Options{
		InlineAPIKey:                             cfg.Credentials.APIKey,
		PrimaryEnvVar:                             "GEMINI_API_KEY",
		AltEnvVar:                                 "GOOGLE_API_KEY",
		KeyFileEnvVar:                             "GEMINI_API_KEY_FILE",
		KeyFilePaths:                              cfg.Credentials.APIKeyFilePaths,
		OAuthScopes:                               cfg.Credentials.OAuthScopes,
		EnvOverrides:                              config.OAuthEnvOverrides(),
		OAuthTokenPrimaryEnvVar:                   "GEMINI_OAUTH_TOKEN",
		OAuthTokenAltEnvVar:                       "GEMINI_OAUTH_TOKEN_ALT",
		ApplicationDefaultCredentialsPathEnvVar:   "GOOGLE_APPLICATION_CREDENTIALS",
		ApplicationDefaultCredentialsDefaultPath:  cfg.Credentials.ApplicationDefaultCredentialsPath,
	}

	p := &pipeline.Pipeline{
		Limits: pipeline.Limits{RateLimiter: rateChecker, Budget: budgetGovernor, RateKey: "default"},
		Auth: pipeline.AuthConfig{
			Resolver:             resolver,
			Mode:                 cfg.ResolverMode(),
			Options:              authOpts,
			Backend:              genaiclient.Backend(cfg.Backend),
			BaseURL:              cfg.BaseURL,
			AllowAPIKeyFallback:  cfg.Credentials.APIKey != "" || cfg.Credentials.APIKeyFilePaths != nil,
			APIKeyFallbackPolicy: genaiclient.FallbackPolicy(cfg.Fallback),
			TimeoutMS:            cfg.TimeoutMS,
			QuotaProject:         cfg.Vertex.QuotaProject,
			VertexProject:        cfg.Vertex.Project,
			VertexLocation:       cfg.Vertex.Location,
		},
		Validation: pipeline.ValidationLimits{MaxOutputTokens: 32768, MaxInputChars: 5_000_000},
		Logger:     logger,
	}

	listModelsClient := genaiclient.New(genaiclient.Config{
		Backend: genaiclient.Backend(cfg.Backend),
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.Credentials.APIKey,
	}, nil, logger)

	server := mcp.NewServer(
		&mcp.Implementation{Name: "genai-bridge", Version: version},
		&mcp.ServerOptions{
			Instructions: "Generate content, count tokens, and compute embeddings against a Gemini-compatible model, subject to a per-minute rate limit and a daily token budget.",
		},
	)
	mcptools.Register(server, p, listModelsClient)

	switch *transport {
	case "http":
		return serveHTTP(ctx, server)
	default:
		logger.Info().Msg("Serving MCP over stdio")
		return server.Run(ctx, &mcp.StdioTransport{})
	}
}

func serveHTTP(ctx context.Context, server *mcp.Server) error {
	getServer := func(*http.Request) *mcp.Server { return server }

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	r.Mount("/mcp", mcp.NewStreamableHTTPHandler(getServer, nil))

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Accept", "Mcp-Session-Id", "Mcp-Protocol-Version"},
	}).Handler(r)

	srv := &http.Server{Addr: *httpAddr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", *httpAddr).Msg("Serving MCP over streamable HTTP")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
