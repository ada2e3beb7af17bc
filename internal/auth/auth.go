// Package auth gates protected endpoints behind a shared API key.
package auth

import (
	"net/http"
	"strings"
)

// Realm is advertised in the WWW-Authenticate challenge.
const Realm = "MCP Server"

const bearerPrefix = "Bearer "

// Authorizer compares the credential carried by a request with a
// configured secret.
type Authorizer struct {
	expected string
}

// New returns an Authorizer for the given secret. An empty secret
// rejects every request.
func New(expectedKey string) *Authorizer {
	return &Authorizer{expected: expectedKey}
}

// IsAuthorized reports whether r carries the configured key.
//
// The comparison is plain string equality and is not constant time.
func (a *Authorizer) IsAuthorized(r *http.Request) bool {
	key := ExtractKey(r)
	return key != "" && key == a.expected
}

// Challenge returns the value of the WWW-Authenticate header sent with 401 responses.
func Challenge() string {
	return `Bearer realm="` + Realm + `"`
}

// ExtractKey returns the first non-empty credential found in, in order,
// the Authorization header (Bearer prefix removed), the X-API-Key header,
// the api-key header and the api_key query parameter.
func ExtractKey(r *http.Request) string {
	if v := strings.Replace(r.Header.Get("Authorization"), bearerPrefix, "", 1); v != "" {
		return v
	}
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	if v := r.Header.Get("api-key"); v != "" {
		return v
	}
	if r.URL != nil {
		return r.URL.Query().Get("api_key")
	}
	return ""
}
