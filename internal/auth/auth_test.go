package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKey(t *testing.T) {
	tcases := []struct {
		name    string
		target  string
		headers map[string]string
		exp     string
	}{
		{"none", "/mcp", nil, ""},
		{"bearer", "/mcp", map[string]string{"Authorization": "Bearer abc"}, "abc"},
		{"authorization without prefix", "/mcp", map[string]string{"Authorization": "abc"}, "abc"},
		{"x-api-key", "/mcp", map[string]string{"X-API-Key": "k1"}, "k1"},
		{"api-key", "/mcp", map[string]string{"api-key": "k2"}, "k2"},
		{"query", "/mcp?api_key=k3", nil, "k3"},
		{"bearer wins", "/mcp?api_key=k3", map[string]string{
			"Authorization": "Bearer a",
			"X-API-Key":     "b",
			"api-key":       "c",
		}, "a"},
		{"x-api-key before api-key", "/mcp?api_key=q", map[string]string{
			"X-API-Key": "b",
			"api-key":   "c",
		}, "b"},
		{"empty bearer falls through", "/mcp?api_key=q", map[string]string{"Authorization": "Bearer "}, "q"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.exp, ExtractKey(r))
		})
	}
}

func TestIsAuthorized(t *testing.T) {
	a := New("secret")

	r := httptest.NewRequest(http.MethodGet, "/sse?api_key=secret", nil)
	assert.True(t, a.IsAuthorized(r))

	r = httptest.NewRequest(http.MethodGet, "/sse?api_key=wrong", nil)
	assert.False(t, a.IsAuthorized(r))

	r = httptest.NewRequest(http.MethodGet, "/sse", nil)
	assert.False(t, a.IsAuthorized(r))

	r = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.Header.Set("Authorization", "Bearer secret")
	assert.True(t, a.IsAuthorized(r))

	// a wrong header is not rescued by a correct query parameter
	r = httptest.NewRequest(http.MethodPost, "/mcp?api_key=secret", nil)
	r.Header.Set("X-API-Key", "nope")
	assert.False(t, a.IsAuthorized(r))
}

func TestEmptySecretRejectsAll(t *testing.T) {
	a := New("")
	r := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	assert.False(t, a.IsAuthorized(r))

	r.Header.Set("Authorization", "Bearer ")
	assert.False(t, a.IsAuthorized(r))
}

func TestChallenge(t *testing.T) {
	assert.Equal(t, `Bearer realm="MCP Server"`, Challenge())
}
