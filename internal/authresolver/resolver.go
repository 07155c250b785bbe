// Package authresolver implements spec.md §4.C: chain-of-sources
// credential resolution producing either an API-key credential or a
// short-lived OAuth bearer, with JWT assertion signing and refresh-token
// exchange for the OAuth branch.
//
// Structurally grounded on toolbridge-api's mcpserver/auth/broker.go
// (cache-key composition, GetToken sequencing) and device_delegate.go
// (refresh-token exchange mechanics).
package authresolver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/redact"
	"github.com/genaibridge/genai-bridge/internal/tokencache"
)

// Resolver is the stateful component: it owns the token cache and the
// HTTP client used for token-endpoint exchanges. One Resolver is shared
// across all concurrent tool invocations.
type Resolver struct {
	cache      *tokencache.Cache
	httpClient httpClient
	logger     zerolog.Logger
}

// New constructs a Resolver. httpClient may be nil, in which case a
// default *http.Client with a 10s timeout is used.
func New(logger zerolog.Logger, cache *tokencache.Cache, client *http.Client) *Resolver {
	if cache == nil {
		cache = tokencache.New()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{cache: cache, httpClient: client, logger: logger}
}

// Resolve implements the sequencing in spec.md §4.C: try OAuth unless mode
// is api_key_only, falling through to API key on failure in auto mode;
// try API key otherwise; fail with MissingCredentials carrying both
// redacted errors if neither source produces a credential.
func (r *Resolver) Resolve(ctx context.Context, mode Mode, opts Options) (Credential, error) {
	var oauthErr, apiKeyErr error

	if mode != ModeAPIKeyOnly {
		cred, err := r.resolveOAuth(ctx, opts, time.Now())
		if err == nil {
			return cred, nil
		}
		oauthErr = err
		if mode == ModeOAuthOnly {
			return nil, &apierr.MissingCredentials{OAuthErr: redact.String(err.Error())}
		}
	}

	cred, err := resolveAPIKey(opts)
	if err == nil {
		return cred, nil
	}
	apiKeyErr = err

	oauthMsg := ""
	if oauthErr != nil {
		oauthMsg = redact.String(oauthErr.Error())
	}
	return nil, &apierr.MissingCredentials{
		OAuthErr:  oauthMsg,
		APIKeyErr: redact.String(apiKeyErr.Error()),
	}
}

// resolveOAuth implements spec.md §4.C's OAuth resolution: direct env
// token override, else locate+parse the ADC file and dispatch on "type".
func (r *Resolver) resolveOAuth(ctx context.Context, opts Options, now time.Time) (OAuthCredential, error) {
	if v := strings.TrimSpace(opts.lookupEnv(opts.OAuthTokenPrimaryEnvVar)); v != "" {
		return OAuthCredential{AccessToken: v, Source: OAuthSourceEnvToken}, nil
	}
	if v := strings.TrimSpace(opts.lookupEnv(opts.OAuthTokenAltEnvVar)); v != "" {
		return OAuthCredential{AccessToken: v, Source: OAuthSourceEnvToken}, nil
	}

	path := locateADCPath(opts)
	if path == "" {
		return OAuthCredential{}, &apierr.MissingCredentials{OAuthErr: "no application default credentials path configured"}
	}

	f, err := loadADCFile(path)
	if err != nil {
		return OAuthCredential{}, &apierr.MissingCredentials{OAuthErr: err.Error()}
	}

	switch f.Type {
	case adcTypeAuthorizedUser:
		return r.refreshAuthorizedUser(ctx, path, f, now)
	case adcTypeServiceAccount:
		return r.exchangeServiceAccount(ctx, path, f, opts.OAuthScopes, now)
	default:
		return OAuthCredential{}, &apierr.UnsupportedCredentialType{Type: string(f.Type)}
	}
}

// Invalidate evicts the cache entry for (path, kind, scopes), used when
// the model HTTP client observes a 401 against an OAuth-backed call.
func (r *Resolver) Invalidate(path, kind string, scopes []string) {
	r.cache.Evict(tokencache.Key(path, kind, scopes))
}
