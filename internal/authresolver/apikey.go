package authresolver

import (
	"os"
	"strings"

	"github.com/genaibridge/genai-bridge/internal/apierr"
)

// resolveAPIKey implements spec.md §4.C's API-key resolution order: first
// non-empty value wins, checked inline config, then the primary env var,
// then the alt env var, then the first existing file among KeyFilePaths,
// then the file named by KeyFileEnvVar.
func resolveAPIKey(opts Options) (APIKeyCredential, error) {
	if v := strings.TrimSpace(opts.InlineAPIKey); v != "" {
		return APIKeyCredential{Value: v, Source: APIKeySourceConfig}, nil
	}
	if v := strings.TrimSpace(opts.lookupEnv(opts.PrimaryEnvVar)); v != "" {
		return APIKeyCredential{Value: v, Source: APIKeySourceEnvMain}, nil
	}
	if v := strings.TrimSpace(opts.lookupEnv(opts.AltEnvVar)); v != "" {
		return APIKeyCredential{Value: v, Source: APIKeySourceEnvAlt}, nil
	}
	for _, path := range opts.KeyFilePaths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return readKeyFile(path)
		}
	}
	if path := opts.lookupEnv(opts.KeyFileEnvVar); path != "" {
		return readKeyFile(path)
	}
	return APIKeyCredential{}, &apierr.MissingCredentials{APIKeyErr: "no api key source produced a value"}
}

func readKeyFile(path string) (APIKeyCredential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return APIKeyCredential{}, &apierr.MissingCredentials{APIKeyErr: err.Error()}
	}
	v := strings.TrimSpace(string(raw))
	if v == "" {
		return APIKeyCredential{}, &apierr.EmptyKeyFile{Path: path}
	}
	return APIKeyCredential{Value: v, Source: APIKeySourceFile}, nil
}
