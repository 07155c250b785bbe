package authresolver

// Options configures one Resolve call. Field names mirror spec.md §4.C's
// enumerated option set; every field is optional, resolution simply skips
// a source whose corresponding option is empty.
type Options struct {
	InlineAPIKey  string
	PrimaryEnvVar string
	AltEnvVar     string
	KeyFileEnvVar string
	KeyFilePaths  []string

	OAuthScopes []string

	// EnvOverrides lets callers inject env var values directly (used by
	// tests and by the config loader, which has already parsed the
	// process environment once).
	EnvOverrides map[string]string

	// OAuthTokenPrimaryEnvVar / Alt name the env vars holding a direct
	// bearer override (spec.md §4.C.1).
	OAuthTokenPrimaryEnvVar string
	OAuthTokenAltEnvVar     string

	// ApplicationDefaultCredentialsPathEnvVar names the env var pointing at
	// the ADC JSON file; ApplicationDefaultCredentialsDefaultPath is the
	// platform-default fallback path.
	ApplicationDefaultCredentialsPathEnvVar  string
	ApplicationDefaultCredentialsDefaultPath string
}

func (o Options) lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	if o.EnvOverrides != nil {
		if v, ok := o.EnvOverrides[name]; ok {
			return v
		}
	}
	return envLookup(name)
}
