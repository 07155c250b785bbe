package authresolver

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// adcCredentialType is the "type" discriminator inside an application
// default credentials JSON file.
type adcCredentialType string

const (
	adcTypeAuthorizedUser adcCredentialType = "authorized_user"
	adcTypeServiceAccount adcCredentialType = "service_account"
)

// adcFile mirrors the on-disk shape described in spec.md §6: a flat JSON
// object whose fields depend on "type". Both credential shapes are
// unmarshaled into one struct since Go lacks JSON tagged unions; fields
// irrelevant to the resolved type are simply left zero.
type adcFile struct {
	Type adcCredentialType `json:"type"`

	// authorized_user fields
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`

	// service_account fields
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	ProjectID    string `json:"project_id"`

	// shared, optional
	TokenURI string `json:"token_uri"`
}

func defaultTokenURI() string { return "https://oauth2.googleapis.com/token" }

// locateADCPath resolves the credentials file path per spec.md §4.C.2:
// the configured env var first, else a platform-default path.
func locateADCPath(opts Options) string {
	if path := opts.lookupEnv(opts.ApplicationDefaultCredentialsPathEnvVar); path != "" {
		return path
	}
	if opts.ApplicationDefaultCredentialsDefaultPath != "" {
		return opts.ApplicationDefaultCredentialsDefaultPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "genai-bridge", "application_default_credentials.json")
}

func loadADCFile(path string) (adcFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return adcFile{}, err
	}
	var f adcFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return adcFile{}, err
	}
	if f.TokenURI == "" {
		f.TokenURI = defaultTokenURI()
	}
	return f, nil
}
