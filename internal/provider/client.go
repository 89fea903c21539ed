// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/paper-harvester/internal/httputil"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

const (
	// DefaultUserAgent identifies the harvester to publishers.
	DefaultUserAgent = "paper-harvester/0.1 (+https://github.com/pdiddy/paper-harvester)"

	defaultContentTimeout  = 120 * time.Second
	defaultMetadataTimeout = 60 * time.Second

	// maxErrorBody bounds how much of an error response is quoted in a reason.
	maxErrorBody = 200

	// pdfSniffLen is how far into a body the %PDF marker may appear.
	pdfSniffLen = 1024
)

// base holds the HTTP plumbing shared by every client. Each client owns its
// own http.Clients, so sessions are never shared across provider types.
type base struct {
	name      string
	userAgent string
	content   *http.Client
	meta      *http.Client
	throttle  *httputil.Throttle
	// premium clients report 402/403 as a subscription wall.
	premium bool
}

func newBase(name string, cfg types.HTTPConfig, interval time.Duration, premium bool) base {
	contentTimeout := cfg.Timeout
	if contentTimeout <= 0 {
		contentTimeout = defaultContentTimeout
	}
	metaTimeout := cfg.MetadataTimeout
	if metaTimeout <= 0 {
		metaTimeout = defaultMetadataTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return base{
		name:      name,
		userAgent: ua,
		content:   &http.Client{Timeout: contentTimeout},
		meta:      &http.Client{Timeout: metaTimeout},
		throttle:  httputil.NewThrottle(interval),
		premium:   premium,
	}
}

// Name returns the provider identifier.
func (b *base) Name() string { return b.name }

func (b *base) fail(kind Kind, err error, format string, args ...any) *FetchError {
	return newError(b.name, kind, err, format, args...)
}

// existing reports whether dest can be returned without a network call.
func existing(dest string, overwrite bool) bool {
	if overwrite {
		return false
	}
	info, err := os.Stat(dest)
	return err == nil && !info.IsDir()
}

// do waits for the throttle, sends req with 429 retries, and converts any
// non-200 response into a FetchError. The caller closes the body.
func (b *base) do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	if err := b.throttle.Wait(ctx); err != nil {
		return nil, b.fail(KindHTTP, err, "waiting for request slot")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", b.userAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, b.fail(KindHTTP, err, "%s %s", req.Method, req.URL.Path)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, b.statusError(req, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}

func (b *base) statusError(req *http.Request, status int, body string) *FetchError {
	kind := KindHTTP
	switch {
	case b.premium && (status == http.StatusPaymentRequired || status == http.StatusForbidden):
		kind = KindSubscriptionWall
	case status == http.StatusNotFound:
		kind = KindNoContent
	}
	reason := fmt.Sprintf("HTTP %d from %s", status, req.URL.Path)
	if kind == KindSubscriptionWall {
		reason += " (subscription required, needs manual access)"
	}
	if body != "" {
		reason += ": " + body
	}
	return b.fail(kind, nil, "%s", reason)
}

// getJSON fetches rawURL with the metadata client and decodes the body into v.
func (b *base) getJSON(ctx context.Context, rawURL string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return b.fail(KindHTTP, err, "creating request")
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := b.do(ctx, b.meta, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return b.fail(KindHTTP, err, "parsing response from %s", req.URL.Path)
	}
	return nil
}

// fetchFile streams rawURL into dest through a temporary file in the same
// directory and renames it on success, so a failed transfer never leaves a
// partial file behind.
func (b *base) fetchFile(ctx context.Context, rawURL string, header http.Header, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return b.fail(KindHTTP, err, "creating request")
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/pdf")
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return b.fail(KindHTTP, err, "creating directory")
	}

	resp, err := b.do(ctx, b.content, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := bufio.NewReaderSize(resp.Body, pdfSniffLen)
	head, _ := body.Peek(pdfSniffLen)
	if !looksLikePDF(resp.Header.Get("Content-Type"), head) {
		return b.fail(KindNoContent, nil, "%s returned %q, not a PDF", rawURL, resp.Header.Get("Content-Type"))
	}

	if err := httputil.WriteAtomic(body, dest); err != nil {
		return b.fail(KindHTTP, err, "writing %s", filepath.Base(dest))
	}
	return nil
}

// looksLikePDF accepts a body that carries the %PDF marker near its start
// or is declared as PDF by the server.
func looksLikePDF(contentType string, head []byte) bool {
	if len(head) == 0 {
		return false
	}
	if bytes.Contains(head, []byte("%PDF")) {
		return true
	}
	return strings.Contains(strings.ToLower(contentType), "pdf")
}

// tryURLs downloads the first candidate that succeeds. It returns the last
// failure when every candidate fails.
func (b *base) tryURLs(ctx context.Context, candidates []string, dest string) error {
	var last error
	for _, u := range candidates {
		err := b.fetchFile(ctx, u, nil, dest)
		if err == nil {
			return nil
		}
		last = err
	}
	return last
}

// dedupe drops empty and repeated URLs, keeping order.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
