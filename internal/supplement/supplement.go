// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package supplement discovers supplementary PDFs linked from a DOI landing
// page and downloads them next to the primary article.
package supplement

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-harvester/internal/httputil"
)

// resolverBase is prepended to the DOI to reach its landing page. Declared
// as a var so tests can substitute an httptest server.
var resolverBase = "https://doi.org/"

const (
	// DefaultUserAgent is a browser string; many landing pages refuse
	// non-browser clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	// DefaultMaxLinks caps the candidates fetched per DOI.
	DefaultMaxLinks = 10

	landingTimeout = 60 * time.Second
	assetTimeout   = 120 * time.Second
)

// keywords mark an anchor as supplementary. Multi-word phrases and long
// words match as substrings; "si" must be a whole token.
var (
	phraseKeywords = []string{"supplement", "supporting", "appendix", "additional file", "extended data", "dataset", "extra file"}
	tokenKeywords  = []string{"si"}
)

// anchorAttrs are the attributes folded into the keyword haystack.
var anchorAttrs = []string{"title", "aria-label", "data-title", "data-label", "data-track-label"}

var unsafeChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// Discoverer finds and fetches supplementary files. It never returns an
// error: failures are logged per candidate and skipped.
type Discoverer struct {
	// Client performs every request; nil uses a client with the asset timeout.
	Client *http.Client

	// UserAgent defaults to DefaultUserAgent.
	UserAgent string

	// MaxLinks defaults to DefaultMaxLinks.
	MaxLinks int

	Logger zerolog.Logger
}

// New returns a Discoverer with default client settings.
func New(maxLinks int, logger zerolog.Logger) *Discoverer {
	return &Discoverer{
		Client:   &http.Client{Timeout: assetTimeout},
		MaxLinks: maxLinks,
		Logger:   logger.With().Str("component", "supplement").Logger(),
	}
}

func (d *Discoverer) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: assetTimeout}
}

func (d *Discoverer) userAgent() string {
	if d.UserAgent != "" {
		return d.UserAgent
	}
	return DefaultUserAgent
}

func (d *Discoverer) maxLinks() int {
	if d.MaxLinks > 0 {
		return d.MaxLinks
	}
	return DefaultMaxLinks
}

// Discover loads the landing page for doi, picks supplementary candidates,
// and saves each PDF into the directory of primary. The primary's file name
// is never reused. It returns the saved paths, possibly none.
func (d *Discoverer) Discover(ctx context.Context, doi, primary string, overwrite bool) []string {
	if doi == "" {
		return nil
	}
	dir := filepath.Dir(primary)
	log := d.Logger.With().Str("doi", doi).Logger()

	pageURL, doc, err := d.landingPage(ctx, doi)
	if err != nil {
		log.Warn().Err(err).Msg("landing page unavailable")
		return nil
	}

	candidates := Candidates(doc, pageURL)
	if len(candidates) == 0 {
		log.Debug().Msg("no supplementary candidates")
		return nil
	}
	if len(candidates) > d.maxLinks() {
		candidates = candidates[:d.maxLinks()]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Msg("creating supplement directory")
		return nil
	}

	var saved []string
	used := map[string]struct{}{strings.ToLower(filepath.Base(primary)): {}}
	for i, candidate := range candidates {
		p, err := d.fetch(ctx, candidate, pageURL, dir, overwrite, used, fmt.Sprintf("supplementary_%d", i+1))
		if err != nil {
			log.Warn().Err(err).Str("url", candidate).Msg("supplementary download failed")
			continue
		}
		if p != "" {
			saved = append(saved, p)
		}
	}
	return saved
}

func (d *Discoverer) landingPage(ctx context.Context, doi string) (*url.URL, *goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, landingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolverBase+url.PathEscape(doi), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching landing page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("landing page returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing landing page: %w", err)
	}
	return resp.Request.URL, doc, nil
}

// Candidates returns the absolute URLs of anchors in doc that look like
// supplementary material, deduplicated in document order.
func Candidates(doc *goquery.Document, base *url.URL) []string {
	var out []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if _, ok := seen[abs]; ok {
			return
		}
		if !looksLikeSupplement(a, href, ref) {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out
}

func looksLikeSupplement(a *goquery.Selection, href string, ref *url.URL) bool {
	parts := []string{strings.Join(strings.Fields(a.Text()), " ")}
	for _, attr := range anchorAttrs {
		if v, ok := a.Attr(attr); ok {
			parts = append(parts, v)
		}
	}
	parts = append(parts, href)
	haystack := strings.ToLower(strings.Join(parts, " "))

	// The primary article PDF link is handled by the provider chain.
	if strings.Contains(haystack, "article") && strings.Contains(haystack, "pdf") && !strings.Contains(haystack, "supp") {
		return false
	}

	for _, k := range phraseKeywords {
		if strings.Contains(haystack, k) {
			return true
		}
	}
	tokens := strings.FieldsFunc(haystack, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, tok := range tokens {
		for _, k := range tokenKeywords {
			if tok == k {
				return true
			}
		}
	}

	return strings.EqualFold(path.Ext(ref.Path), ".pdf")
}

// fetch downloads one candidate. It returns "" with a nil error when the
// response is not a PDF.
func (d *Discoverer) fetch(ctx context.Context, rawURL string, referer *url.URL, dir string, overwrite bool, used map[string]struct{}, fallback string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent())
	req.Header.Set("Accept", "application/pdf")
	req.Header.Set("Referer", referer.String())

	resp, err := d.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if !strings.Contains(strings.ToLower(mediaType), "pdf") && !strings.EqualFold(path.Ext(u.Path), ".pdf") {
		d.Logger.Debug().Str("url", rawURL).Str("content_type", mediaType).Msg("ignoring non-PDF candidate")
		return "", nil
	}

	name := FileName(resp.Header.Get("Content-Disposition"), u, fallback, used)
	dest := filepath.Join(dir, name)
	if !overwrite {
		if info, err := os.Stat(dest); err == nil && !info.IsDir() {
			d.Logger.Debug().Str("path", dest).Msg("supplementary file exists")
			return dest, nil
		}
	}
	if err := httputil.WriteAtomic(resp.Body, dest); err != nil {
		return "", err
	}
	return dest, nil
}

var (
	dispositionStar  = regexp.MustCompile(`(?i)filename\*=UTF-8''([^;]+)`)
	dispositionPlain = regexp.MustCompile(`(?i)filename="?([^";]+)"?`)
)

// dispositionName extracts a filename from a Content-Disposition value.
func dispositionName(header string) string {
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	if m := dispositionStar.FindStringSubmatch(header); m != nil {
		if v, err := url.PathUnescape(m[1]); err == nil {
			return v
		}
		return m[1]
	}
	if m := dispositionPlain.FindStringSubmatch(header); m != nil {
		return m[1]
	}
	return ""
}

// FileName picks a collision-free .pdf name for a supplementary file from
// the Content-Disposition header, then the URL path, then fallback. used
// holds lower-cased names already taken in this directory and is updated.
func FileName(disposition string, u *url.URL, fallback string, used map[string]struct{}) string {
	name := dispositionName(disposition)
	if name == "" && u != nil {
		name = path.Base(u.Path)
		if name == "/" || name == "." {
			name = ""
		}
	}
	if name == "" {
		name = fallback
	}
	name = Sanitize(name)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".pdf"
	}

	stem, ext := strings.TrimSuffix(name, filepath.Ext(name)), filepath.Ext(name)
	candidate := name
	for n := 2; ; n++ {
		if _, taken := used[strings.ToLower(candidate)]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	used[strings.ToLower(candidate)] = struct{}{}
	return candidate
}

// Sanitize replaces filesystem-unsafe characters and trims dots and spaces.
func Sanitize(name string) string {
	cleaned := unsafeChars.ReplaceAllString(name, "_")
	cleaned = strings.Trim(strings.TrimSpace(cleaned), ".")
	if cleaned == "" {
		return "supplementary"
	}
	return cleaned
}
