package authresolver

import (
	"context"
	"net/url"
	"time"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/tokencache"
)

// refreshAuthorizedUser implements spec.md §4.C's authorized_user branch:
// required fields, cache lookup, then a refresh_token grant exchange on a
// cache miss, grounded on device_delegate.go's refreshAccessToken.
func (r *Resolver) refreshAuthorizedUser(ctx context.Context, path string, f adcFile, now time.Time) (OAuthCredential, error) {
	if f.ClientID == "" || f.ClientSecret == "" || f.RefreshToken == "" {
		return OAuthCredential{}, &apierr.UnsupportedCredentialType{Type: "authorized_user (missing fields)"}
	}

	key := tokencache.Key(path, "authorized_user", nil)
	if cached, ok := r.cache.Get(key, now); ok {
		return OAuthCredential{AccessToken: cached.AccessToken, Source: OAuthSourceAuthorizedUser}, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", f.ClientID)
	form.Set("client_secret", f.ClientSecret)
	form.Set("refresh_token", f.RefreshToken)

	resp, err := exchangeForm(ctx, r.httpClient, f.TokenURI, form)
	if err != nil {
		return OAuthCredential{}, err
	}

	r.cache.Put(key, tokencache.Token{
		AccessToken: resp.AccessToken,
		ExpiresAt:   expiresAt(now, resp.ExpiresIn),
		Source:      "authorized_user",
	})

	return OAuthCredential{AccessToken: resp.AccessToken, Source: OAuthSourceAuthorizedUser}, nil
}
