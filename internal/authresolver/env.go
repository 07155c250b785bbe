package authresolver

import "os"

// envLookup is a package-level indirection over os.LookupEnv so tests can
// stay hermetic via Options.EnvOverrides without mutating the real
// process environment.
func envLookup(name string) string {
	v, _ := os.LookupEnv(name)
	return v
}
