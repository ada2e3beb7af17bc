package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mcpguard/toolgate/internal/mcp"
	"github.com/mcpguard/toolgate/internal/textextract"
)

func (t *Toolbox) scrape(ctx context.Context, a *ScrapeArgs) *mcp.CallToolResult {
	if a.Selector != nil {
		// TODO: scope extraction to the selected elements once a selector engine is wired in.
		logger.ContextKV(ctx, xlog.DEBUG, "tool", ScrapeWebpage, "selector_ignored", *a.Selector)
	}

	resp, err := t.do(ctx, http.MethodGet, a.URL, a.Agent())
	if err != nil {
		return scrapeFailed(ctx, a.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mcp.NewTextResult(fmt.Sprintf("HTTP Error: %d %s", resp.StatusCode, statusText(resp)))
	}

	html, err := t.readBody(resp.Body)
	if err != nil {
		return scrapeFailed(ctx, a.URL, err)
	}

	if a.WantText() {
		text := textextract.Extract(html)
		return mcp.NewTextResult(fmt.Sprintf("URL: %s\nLength: %d characters\n\nContent:\n%s",
			a.URL, textextract.Len(text), text))
	}
	return mcp.NewTextResult(fmt.Sprintf("URL: %s\nHTML Length: %d characters\n\nHTML:\n%s",
		a.URL, textextract.Len(html), html))
}

func scrapeFailed(ctx context.Context, url string, err error) *mcp.CallToolResult {
	logger.ContextKV(ctx, xlog.WARNING, "tool", ScrapeWebpage, "url", url, "err", err.Error())
	return mcp.NewTextResult(fmt.Sprintf("Error scraping %s: %s", url, err.Error()))
}

func (t *Toolbox) analyze(ctx context.Context, a *AnalyzeArgs) *mcp.CallToolResult {
	resp, err := t.do(ctx, http.MethodHead, a.URL, DefaultAnalyzeUserAgent)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "tool", AnalyzeURL, "url", a.URL, "err", err.Error())
		return mcp.NewTextResult(fmt.Sprintf("Error analyzing %s: %s", a.URL, err.Error()))
	}
	defer resp.Body.Close()

	return mcp.NewTextResult(fmt.Sprintf(
		"URL Analysis: %s\nStatus: %d %s\nContent-Type: %s\nContent-Length: %s\nServer: %s\nLast-Modified: %s",
		a.URL,
		resp.StatusCode, statusText(resp),
		headerOrUnknown(resp.Header, "Content-Type"),
		headerOrUnknown(resp.Header, "Content-Length"),
		headerOrUnknown(resp.Header, "Server"),
		headerOrUnknown(resp.Header, "Last-Modified"),
	))
}

func (t *Toolbox) do(ctx context.Context, method, url, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return t.client.Do(req)
}

func (t *Toolbox) readBody(r io.Reader) (string, error) {
	if t.maxBodyBytes <= 0 {
		b, err := io.ReadAll(r)
		return string(b), err
	}
	b, err := io.ReadAll(io.LimitReader(r, t.maxBodyBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(b)) > t.maxBodyBytes {
		return "", errors.Newf("response body exceeds %d bytes", t.maxBodyBytes)
	}
	return string(b), nil
}

// statusText returns the reason phrase sent by the server.
func statusText(resp *http.Response) string {
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}

// headerOrUnknown looks up a header case-insensitively.
func headerOrUnknown(h http.Header, key string) string {
	if v := h.Get(key); v != "" {
		return v
	}
	return "unknown"
}
