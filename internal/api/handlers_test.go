package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mcpguard/toolgate/internal/auth"
	"github.com/mcpguard/toolgate/internal/server"
	"github.com/mcpguard/toolgate/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	api := New(auth.New(testKey), server.New(tools.New()))
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := noRedirects.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

// noRedirects reports redirects as responses instead of following them.
var noRedirects = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

var bearer = map[string]string{"Authorization": "Bearer " + testKey}

func TestUnknownPathIsNotFound(t *testing.T) {
	srv := newTestServer(t)

	for _, headers := range []map[string]string{nil, bearer, {"X-API-Key": "wrong"}} {
		for _, path := range []string{
			"/foo", "/mcp/", "/sse/other", "/sse/message/x",
			"//foo", "/./foo", "/foo/../bar", "//mcp", "/mcp/.", "/./sse", "/sse/../mcp",
		} {
			resp, body := do(t, http.MethodGet, srv.URL+path, "", headers)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
			assert.Empty(t, resp.Header.Get("Location"), path)
			assert.Equal(t, "Not found", body)
		}
	}
}

func TestProtectedPathsRequireKey(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/", "/mcp", "/sse", "/sse/message"} {
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			for _, headers := range []map[string]string{nil, {"Authorization": "Bearer nope"}, {"api-key": "nope"}} {
				resp, body := do(t, method, srv.URL+path, "{}", headers)
				assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", method, path)
				assert.Equal(t, `Bearer realm="MCP Server"`, resp.Header.Get("WWW-Authenticate"))
				assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
				assert.Equal(t, "Unauthorized: Invalid or missing API key", body)
			}
		}
	}
}

func TestStreamableCredentials(t *testing.T) {
	srv := newTestServer(t)
	ping := `{"jsonrpc":"2.0","id":1,"method":"ping"}`

	for name, tc := range map[string]struct {
		query   string
		headers map[string]string
	}{
		"bearer":    {headers: bearer},
		"x-api-key": {headers: map[string]string{"X-API-Key": testKey}},
		"api-key":   {headers: map[string]string{"api-key": testKey}},
		"query":     {query: "?api_key=" + testKey},
	} {
		t.Run(name, func(t *testing.T) {
			for _, path := range []string{"/", "/mcp"} {
				resp, body := do(t, http.MethodPost, srv.URL+path+tc.query, ping, tc.headers)
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, body)
			}
		})
	}

	resp, _ := do(t, http.MethodPost, srv.URL+"/mcp?api_key=wrong", ping, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamableToolCall(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/mcp",
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"calculate","arguments":{"operation":"multiply","a":-1.5,"b":4}}}`,
		bearer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":5,"result":{"content":[{"type":"text","text":"-6"}]}}`, body)
}

func TestStreamableInitializeAssignsSession(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, bearer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(SessionHeader))

	resp, _ = do(t, http.MethodPost, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, bearer)
	assert.Empty(t, resp.Header.Get(SessionHeader))
}

func TestStreamableNotificationAndMethods(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/mcp", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, bearer)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, body)

	resp, _ = do(t, http.MethodGet, srv.URL+"/mcp", "", bearer)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "POST, DELETE", resp.Header.Get("Allow"))

	resp, _ = do(t, http.MethodDelete, srv.URL+"/mcp", "", bearer)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/mcp", `not json`, bearer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"code":-32700`)
}

func TestStreamableBatch(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/mcp", `[
		{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add","arguments":{"a":1,"b":2}}},
		{"jsonrpc":"2.0","method":"notifications/initialized"},
		{"jsonrpc":"2.0","id":2,"method":"nope"}
	]`, bearer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Len(t, out, 2)
	assert.Equal(t, float64(1), out[0]["id"])
	assert.Contains(t, out[0], "result")
	assert.Equal(t, float64(2), out[1]["id"])
	assert.Contains(t, out[1], "error")

	resp, _ = do(t, http.MethodPost, srv.URL+"/mcp", `[{"jsonrpc":"2.0","method":"notifications/initialized"}]`, bearer)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, body = do(t, http.MethodPost, srv.URL+"/mcp", `[]`, bearer)
	assert.Contains(t, body, `"code":-32600`)
}

func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestSSESession(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse?api_key="+testKey, nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()

	assert.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	events := bufio.NewReader(stream.Body)
	event, endpoint := readEvent(t, events)
	assert.Equal(t, "endpoint", event)
	require.True(t, strings.HasPrefix(endpoint, "/sse/message?sessionId="), endpoint)

	resp, body := do(t, http.MethodPost, srv.URL+endpoint,
		`{"jsonrpc":"2.0","id":"x","method":"tools/call","params":{"name":"add","arguments":{"a":0.5,"b":0.25}}}`,
		map[string]string{"X-API-Key": testKey})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "Accepted", body)

	event, data := readEvent(t, events)
	assert.Equal(t, "message", event)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"x","result":{"content":[{"type":"text","text":"0.75"}]}}`, data)

	// notifications produce no event; the next response still arrives in order
	resp, _ = do(t, http.MethodPost, srv.URL+endpoint, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, bearer)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+endpoint, `{"jsonrpc":"2.0","id":2,"method":"ping"}`, bearer)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, data = readEvent(t, events)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":{}}`, data)
}

func TestSSEMessageErrors(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/sse/message", "{}", bearer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing sessionId parameter", body)

	resp, body = do(t, http.MethodPost, srv.URL+"/sse/message?sessionId=unknown", "{}", bearer)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Session not found", body)

	resp, _ = do(t, http.MethodGet, srv.URL+"/sse/message?sessionId=unknown", "", bearer)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/sse", "", bearer)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
