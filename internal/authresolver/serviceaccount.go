package authresolver

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/genaibridge/genai-bridge/internal/apierr"
	"github.com/genaibridge/genai-bridge/internal/tokencache"
)

// serviceAccountAssertionTTL is the fixed lifetime of the signed JWT
// assertion per spec.md §4.C: exp = iat + 3600.
const serviceAccountAssertionTTL = time.Hour

// serviceAccountGrantType is the RFC 7523 grant type used to exchange a
// signed JWT assertion for an access token.
const serviceAccountGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// exchangeServiceAccount implements spec.md §4.C's service_account branch:
// build and sign an RS256 JWT assertion, then exchange it at the token
// endpoint. The claim shape and the two-step PEM parse (PKCS1 then PKCS8)
// are grounded on google_play_auth.go's signedJWT/parseGoogleRSAPrivateKey;
// signing itself uses golang-jwt/jwt/v5 instead of that file's hand-rolled
// base64/sha256/rsa.SignPKCS1v15 sequence.
func (r *Resolver) exchangeServiceAccount(ctx context.Context, path string, f adcFile, scopes []string, now time.Time) (OAuthCredential, error) {
	if f.ClientEmail == "" || f.PrivateKey == "" {
		return OAuthCredential{}, &apierr.UnsupportedCredentialType{Type: "service_account (missing fields)"}
	}
	if len(scopes) == 0 {
		return OAuthCredential{}, &apierr.UnsupportedCredentialType{Type: "service_account (no oauth_scopes configured)"}
	}

	key := tokencache.Key(path, "service_account", sortedCopy(scopes))
	if cached, ok := r.cache.Get(key, now); ok {
		return OAuthCredential{AccessToken: cached.AccessToken, Source: OAuthSourceServiceAccount}, nil
	}

	privKey, err := parseRSAPrivateKey(f.PrivateKey)
	if err != nil {
		return OAuthCredential{}, &apierr.TokenExchangeFailure{Body: "invalid service account private key"}
	}

	claims := jwt.MapClaims{
		"iss":   f.ClientEmail,
		"scope": strings.Join(scopes, " "),
		"aud":   f.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(serviceAccountAssertionTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if f.PrivateKeyID != "" {
		token.Header["kid"] = f.PrivateKeyID
	}
	assertion, err := token.SignedString(privKey)
	if err != nil {
		return OAuthCredential{}, &apierr.TokenExchangeFailure{Body: "failed to sign jwt assertion"}
	}

	form := url.Values{}
	form.Set("grant_type", serviceAccountGrantType)
	form.Set("assertion", assertion)

	resp, err := exchangeForm(ctx, r.httpClient, f.TokenURI, form)
	if err != nil {
		return OAuthCredential{}, err
	}

	r.cache.Put(key, tokencache.Token{
		AccessToken: resp.AccessToken,
		ExpiresAt:   expiresAt(now, resp.ExpiresIn),
		Source:      "service_account",
	})

	return OAuthCredential{AccessToken: resp.AccessToken, Source: OAuthSourceServiceAccount}, nil
}

// parseRSAPrivateKey decodes a PEM-encoded RSA private key, handling both
// PKCS1 and PKCS8 containers and the \n-escaped form some credential JSON
// files ship (a literal backslash-n inside the quoted string).
func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	pemData = strings.ReplaceAll(pemData, `\n`, "\n")
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errInvalidPEM
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errNotRSAKey
	}
	return rsaKey, nil
}

var (
	errInvalidPEM = &apierr.TokenExchangeFailure{Body: "no PEM block found in private key"}
	errNotRSAKey  = &apierr.TokenExchangeFailure{Body: "private key is not an RSA key"}
)

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
