package loader

import (
	"os"
	"strings"
)

// Credential supplies the bearer token of the current session, if any
type Credential interface {
	Token() (string, bool)
}

// StaticCredential is a fixed token; the empty string means no credential
type StaticCredential string

func (c StaticCredential) Token() (string, bool) {
	return string(c), c != ""
}

// EnvCredential reads the token from the named environment variable on every request
type EnvCredential string

func (c EnvCredential) Token() (string, bool) {
	token := strings.TrimSpace(os.Getenv(string(c)))
	return token, token != ""
}

// FileCredential reads the token from a file on every request, so a rotated token is picked up
type FileCredential string

func (c FileCredential) Token() (string, bool) {
	if c == "" {
		return "", false
	}
	data, err := os.ReadFile(string(c))
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	return token, token != ""
}

// FirstCredential returns the first credential that has a token
type FirstCredential []Credential

func (c FirstCredential) Token() (string, bool) {
	for _, cred := range c {
		if cred == nil {
			continue
		}
		if token, ok := cred.Token(); ok {
			return token, true
		}
	}
	return "", false
}
