package config

import (
	"os"
	"strings"
)

// EnvCredentials resolves credentials from the process environment.
// Blank values count as absent.
type EnvCredentials struct{}

// Lookup returns the trimmed value of the environment variable name.
func (EnvCredentials) Lookup(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	v, ok := os.LookupEnv(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// StaticCredentials is a fixed credential set, handy for tests.
type StaticCredentials map[string]string

// Lookup returns the stored value for name.
func (s StaticCredentials) Lookup(name string) (string, bool) {
	v, ok := s[name]
	return v, ok && v != ""
}
