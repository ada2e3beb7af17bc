// Package tools implements the tools served over MCP: add, calculate,
// scrape_webpage and analyze_url.
//
// Problems met while running a tool, such as a failed fetch or a division
// by zero, are reported as the text of a successful result. Only unknown
// tool names and malformed arguments are returned as errors.
package tools

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mcpguard/toolgate/internal/mcp"
)

var logger = xlog.NewPackageLogger("github.com/mcpguard/toolgate/internal", "tools")

// Toolbox runs tool calls. It holds no per-call state and is safe for
// concurrent use.
type Toolbox struct {
	client       *http.Client
	maxBodyBytes int64
}

// Option configures a Toolbox.
type Option func(*Toolbox)

// WithHTTPClient sets the client used by the networked tools.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Toolbox) {
		t.client = c
	}
}

// WithTimeout bounds each outbound request. Zero leaves the client as is.
func WithTimeout(d time.Duration) Option {
	return func(t *Toolbox) {
		if d <= 0 {
			return
		}
		c := *t.client
		c.Timeout = d
		t.client = &c
	}
}

// WithMaxBodyBytes caps how much of a scraped body is read. Zero means
// no limit.
func WithMaxBodyBytes(n int64) Option {
	return func(t *Toolbox) {
		t.maxBodyBytes = n
	}
}

// New returns a Toolbox. Options are applied in order.
func New(opts ...Option) *Toolbox {
	t := &Toolbox{
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Call decodes arguments for the named tool and runs it.
func (t *Toolbox) Call(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	n := Name(name)
	args, err := Decode(n, arguments)
	if err != nil {
		return nil, err
	}

	logger.ContextKV(ctx, xlog.DEBUG, "tool", n, "status", "start")

	var res *mcp.CallToolResult
	switch a := args.(type) {
	case *AddArgs:
		res = t.add(a)
	case *CalculateArgs:
		res = t.calculate(a)
	case *ScrapeArgs:
		res = t.scrape(ctx, a)
	case *AnalyzeArgs:
		res = t.analyze(ctx, a)
	}

	logger.ContextKV(ctx, xlog.DEBUG, "tool", n, "status", "done")
	return res, nil
}

// ErrUnknownTool matches every UnknownToolError with errors.Is.
var ErrUnknownTool = errors.New("unknown tool")

// UnknownToolError is returned for a name outside the served set.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "unknown tool: " + e.Name
}

func (e *UnknownToolError) Is(target error) bool {
	return target == ErrUnknownTool
}
