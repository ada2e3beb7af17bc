// Package server answers MCP JSON-RPC requests with the tools of a Toolbox.
package server

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mcpguard/toolgate/internal/detection"
	"github.com/mcpguard/toolgate/internal/jsonrpc"
	"github.com/mcpguard/toolgate/internal/mcp"
	"github.com/mcpguard/toolgate/internal/tools"
)

var logger = xlog.NewPackageLogger("github.com/mcpguard/toolgate/internal", "server")

// DefaultInfo identifies the server to clients.
var DefaultInfo = mcp.Implementation{
	Name:    "Authless Calculator",
	Version: "1.0.0",
}

// Toolbox runs named tools.
type Toolbox interface {
	Definitions() []mcp.Tool
	Call(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error)
}

// Detector finds secrets in tool call arguments.
type Detector interface {
	Detect(params mcp.CallToolParams) []detection.Result
}

type Server struct {
	info     mcp.Implementation
	toolbox  Toolbox
	detector Detector
}

// Option configures a Server.
type Option func(*Server)

// WithInfo overrides the advertised implementation name and version.
func WithInfo(info mcp.Implementation) Option {
	return func(s *Server) {
		s.info = info
	}
}

// WithDetector rejects tool calls whose arguments contain secrets.
func WithDetector(d Detector) Option {
	return func(s *Server) {
		s.detector = d
	}
}

func New(toolbox Toolbox, opts ...Option) *Server {
	s := &Server{
		info:    DefaultInfo,
		toolbox: toolbox,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Parse decodes a JSON-RPC message. A non-nil response is the error to
// send back when the message is malformed.
func (s *Server) Parse(raw []byte) (*jsonrpc.Request, *jsonrpc.Response) {
	var req jsonrpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, jsonrpc.NewErrorResponse(nil, jsonrpc.NewError(jsonrpc.ParseError, "Parse error: %s", err.Error()))
	}
	if req.JSONRPC != jsonrpc.Version || req.Method == "" {
		return nil, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.InvalidRequest, "Invalid Request"))
	}
	return &req, nil
}

// Dispatch runs a parsed request. It returns nil for notifications.
func (s *Server) Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	result, rpcErr := s.dispatch(ctx, req)

	if req.IsNotification() {
		if rpcErr != nil && rpcErr.Code != jsonrpc.MethodNotFound {
			logger.ContextKV(ctx, xlog.WARNING, "notification", req.Method, "err", rpcErr.Message)
		}
		return nil
	}
	if rpcErr != nil {
		logger.ContextKV(ctx, xlog.DEBUG, "method", req.Method, "code", rpcErr.Code, "err", rpcErr.Message)
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}
	return jsonrpc.NewResult(req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	switch req.Method {
	case mcp.MethodInitialize:
		return s.initialize(req.Params)
	case mcp.MethodInitialized:
		return nil, nil
	case mcp.MethodPing:
		return struct{}{}, nil
	case mcp.MethodToolsList:
		return &mcp.ListToolsResult{Tools: s.toolbox.Definitions()}, nil
	case mcp.MethodToolsCall:
		return s.callTool(ctx, req.Params)
	default:
		return nil, jsonrpc.NewError(jsonrpc.MethodNotFound, "Method not found: %s", req.Method)
	}
}

func (s *Server) initialize(raw json.RawMessage) (any, *jsonrpc.Error) {
	var params mcp.InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "Invalid params: %s", err.Error())
		}
	}

	version := params.ProtocolVersion
	if version == "" {
		version = mcp.ProtocolVersion
	}
	logger.KV(xlog.INFO,
		"status", "initialize",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol", version,
	)

	return &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{},
		},
		ServerInfo: s.info,
	}, nil
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params mcp.CallToolParams
	if len(raw) == 0 {
		return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "Invalid params: missing tool name")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "Invalid params: %s", err.Error())
	}

	if s.detector != nil {
		if found := s.detector.Detect(params); len(found) > 0 {
			logger.ContextKV(ctx, xlog.WARNING, "tool", params.Name, "blocked", len(found))
			return nil, jsonrpc.NewError(jsonrpc.InternalError,
				"Blocked: tool arguments contain sensitive information. Details: %s", detection.Summary(found))
		}
	}

	res, err := s.toolbox.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		var verr *tools.ValidationError
		switch {
		case errors.Is(err, tools.ErrUnknownTool):
			return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "Unknown tool: %s", params.Name)
		case errors.As(err, &verr):
			return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "Invalid params: %s", verr.Error())
		default:
			logger.ContextKV(ctx, xlog.ERROR, "tool", params.Name, "err", err.Error())
			return nil, jsonrpc.NewError(jsonrpc.InternalError, "Internal error")
		}
	}
	return res, nil
}
