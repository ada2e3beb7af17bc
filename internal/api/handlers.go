package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcpguard/toolgate/internal/auth"
	"github.com/mcpguard/toolgate/internal/jsonrpc"
	"github.com/mcpguard/toolgate/internal/mcp"
)

var logger = xlog.NewPackageLogger("github.com/mcpguard/toolgate/internal", "api")

// Paths served by the router.
const (
	PathRoot       = "/"
	PathMCP        = "/mcp"
	PathSSE        = "/sse"
	PathSSEMessage = "/sse/message"
)

// SessionHeader carries the session assigned on initialize.
const SessionHeader = "Mcp-Session-Id"

const maxRequestBytes = 4 << 20

// Handler answers parsed JSON-RPC requests.
type Handler interface {
	Parse(raw []byte) (*jsonrpc.Request, *jsonrpc.Response)
	Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response
}

// Session represents an active SSE connection
type Session struct {
	id     string
	events chan []byte
	done   chan struct{}
}

type API struct {
	authorizer *auth.Authorizer
	handler    Handler
	sessions   sync.Map
}

func New(authorizer *auth.Authorizer, handler Handler) *API {
	return &API{
		authorizer: authorizer,
		handler:    handler,
	}
}

// Router returns the HTTP handler serving every endpoint. Protected
// paths are checked for the API key before anything else, unknown paths
// get 404 without any key check.
func (api *API) Router() http.Handler {
	router := mux.NewRouter()
	// paths are matched as sent; unclean paths are not redirected
	router.SkipClean(true)
	router.NotFoundHandler = http.HandlerFunc(notFound)

	router.HandleFunc(PathRoot, api.Streamable)
	router.HandleFunc(PathMCP, api.Streamable)
	router.HandleFunc(PathSSE, api.SSE)
	router.HandleFunc(PathSSEMessage, api.HandleMessage)
	router.Use(api.requireKey)

	return withLogging(router)
}

func (api *API) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.authorizer.IsAuthorized(r) {
			logger.ContextKV(r.Context(), xlog.WARNING, "path", r.URL.Path, "remote", r.RemoteAddr, "err", "unauthorized")
			w.Header().Set("WWW-Authenticate", auth.Challenge())
			writeText(w, http.StatusUnauthorized, "Unauthorized: Invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusNotFound, "Not found")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// Streamable serves the request/response endpoint: each POST carries a
// JSON-RPC message or batch and gets the answer in the HTTP response.
func (api *API) Streamable(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodDelete:
		// sessions hold no state, there is nothing to tear down
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.Header().Set("Allow", "POST, DELETE")
		writeText(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeText(w, http.StatusRequestEntityTooLarge, "Error reading request body")
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		api.streamableBatch(w, r, trimmed)
		return
	}

	req, errResp := api.handler.Parse(trimmed)
	if errResp != nil {
		writeJSON(w, http.StatusOK, errResp)
		return
	}

	resp := api.handler.Dispatch(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if req.Method == mcp.MethodInitialize && resp.Error == nil {
		w.Header().Set(SessionHeader, uuid.NewString())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (api *API) streamableBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil || len(batch) == 0 {
		writeJSON(w, http.StatusOK, jsonrpc.NewErrorResponse(nil,
			jsonrpc.NewError(jsonrpc.InvalidRequest, "Invalid Request")))
		return
	}

	var responses []*jsonrpc.Response
	for _, raw := range batch {
		req, errResp := api.handler.Parse(raw)
		if errResp != nil {
			responses = append(responses, errResp)
			continue
		}
		if resp := api.handler.Dispatch(r.Context(), req); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.KV(xlog.ERROR, "reason", "marshal", "err", err.Error())
		writeText(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// SSE opens an event stream. The first event names the endpoint the
// client posts its messages to; responses arrive as message events.
func (api *API) SSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeText(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeText(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	session := &Session{
		id:     uuid.NewString(),
		events: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	api.sessions.Store(session.id, session)
	defer func() {
		api.sessions.Delete(session.id)
		close(session.done)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: %s?sessionId=%s\n\n", PathSSEMessage, session.id)
	flusher.Flush()

	logger.ContextKV(r.Context(), xlog.DEBUG, "session", session.id, "status", "open")

	for {
		select {
		case <-r.Context().Done():
			logger.ContextKV(r.Context(), xlog.DEBUG, "session", session.id, "status", "closed")
			return
		case event := <-session.events:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", event)
			flusher.Flush()
		}
	}
}

// HandleMessage accepts a message posted for an open SSE session and
// delivers the response on that session's stream.
func (api *API) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeText(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeText(w, http.StatusBadRequest, "Missing sessionId parameter")
		return
	}

	value, ok := api.sessions.Load(sessionID)
	if !ok {
		writeText(w, http.StatusNotFound, "Session not found")
		return
	}
	session := value.(*Session)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeText(w, http.StatusRequestEntityTooLarge, "Error reading request body")
		return
	}

	req, resp := api.handler.Parse(body)
	if resp == nil {
		resp = api.handler.Dispatch(r.Context(), req)
	}

	if resp != nil {
		b, err := json.Marshal(resp)
		if err != nil {
			writeText(w, http.StatusInternalServerError, "Failed to marshal response")
			return
		}
		select {
		case session.events <- b:
		case <-session.done:
			writeText(w, http.StatusGone, "Session closed")
			return
		case <-r.Context().Done():
			return
		}
	}

	writeText(w, http.StatusAccepted, "Accepted")
}
