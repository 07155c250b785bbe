package authresolver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/redact"
)

// tokenEndpointResponse is the standard OAuth2 token endpoint success body.
type tokenEndpointResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// httpClient is satisfied by *http.Client; tests substitute a fake that
// points at an httptest.Server.
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// exchangeForm POSTs form-encoded values to tokenURI and parses the
// standard token-endpoint JSON response, mirroring
// device_delegate.go's refreshAccessToken/attemptTokenExchange shape.
func exchangeForm(ctx context.Context, cl httpClient, tokenURI string, form url.Values) (tokenEndpointResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenEndpointResponse{}, &apierr.TokenExchangeFailure{Body: redact.String(err.Error())}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := cl.Do(req)
	if err != nil {
		return tokenEndpointResponse{}, &apierr.TokenExchangeFailure{Body: redact.String(err.Error())}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return tokenEndpointResponse{}, &apierr.TokenExchangeFailure{
			Status: resp.StatusCode,
			Body:   redact.String(string(body)),
		}
	}

	var out tokenEndpointResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return tokenEndpointResponse{}, &apierr.TokenExchangeFailure{
			Status: resp.StatusCode,
			Body:   "non-JSON token endpoint response",
		}
	}
	return out, nil
}

func expiresAt(now time.Time, expiresIn int64) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(expiresIn) * time.Second)
}
