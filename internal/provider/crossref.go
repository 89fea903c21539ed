// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// Crossref endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	crossrefAPIBase = "https://api.crossref.org"
	doiResolverBase = "https://doi.org/"
)

// DefaultCrossrefDelay is the courtesy delay before every Crossref call.
const DefaultCrossrefDelay = 3 * time.Second

// now is swapped in tests that exercise license start dates.
var now = time.Now

// Crossref resolves a DOI through Crossref work metadata, picks a content
// link, and downloads it. It falls back to Link headers on the DOI resolver
// when the metadata carries no usable link. Every outbound call, metadata
// included, waits for the courtesy throttle.
type Crossref struct {
	base
	mailto    string
	allowList []string
}

var (
	_ Provider = (*Crossref)(nil)
	_ Searcher = (*Crossref)(nil)
)

// NewCrossref returns a Crossref client, or a KindConfig error when no
// contact address is configured.
func NewCrossref(cfg types.HarvestConfig) (*Crossref, error) {
	mailto := cfg.Credentials.CrossrefMailto
	if mailto == "" {
		return nil, missingCredential(NameCrossref, "CROSSREF_MAILTO")
	}
	delay := cfg.Credentials.CrossrefDelay
	if delay <= 0 {
		delay = DefaultCrossrefDelay
	}
	return &Crossref{
		base:      newBase(NameCrossref, cfg.HTTPConfig, delay, false),
		mailto:    mailto,
		allowList: cfg.Credentials.LicenseAllowList,
	}, nil
}

type crossrefLink struct {
	URL                 string `json:"URL"`
	ContentType         string `json:"content-type"`
	ContentVersion      string `json:"content-version"`
	IntendedApplication string `json:"intended-application"`
}

type crossrefLicense struct {
	URL            string `json:"URL"`
	ContentVersion string `json:"content-version"`
	Start          struct {
		DateTime string `json:"date-time"`
	} `json:"start"`
}

type crossrefWork struct {
	DOI     string            `json:"DOI"`
	Title   []string          `json:"title"`
	URL     string            `json:"URL"`
	Link    []crossrefLink    `json:"link"`
	License []crossrefLicense `json:"license"`
}

type crossrefWorkResponse struct {
	Message crossrefWork `json:"message"`
}

// Download resolves rec.DOI to a content link and fetches it.
func (c *Crossref) Download(ctx context.Context, rec types.ArticleRecord, dest string, overwrite bool) (string, error) {
	if existing(dest, overwrite) {
		return dest, nil
	}
	if rec.DOI == "" {
		return "", c.fail(KindNoContent, nil, "no DOI for record %q", rec.Title)
	}

	var resp crossrefWorkResponse
	u := crossrefAPIBase + "/works/" + url.PathEscape(rec.DOI) + "?" + url.Values{"mailto": {c.mailto}}.Encode()
	if err := c.getJSON(ctx, u, nil, &resp); err != nil {
		return "", err
	}

	link, err := c.selectLink(resp.Message)
	if err != nil {
		return "", err
	}
	if link == "" {
		link, err = c.linkFromResolver(ctx, rec.DOI)
		if err != nil {
			return "", err
		}
	}
	if link == "" {
		return "", c.fail(KindNoContent, nil, "no PDF link in metadata or resolver headers for %s", rec.DOI)
	}

	if err := c.fetchFile(ctx, link, nil, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// applicationRank orders links: text-mining first, then similarity-checking,
// then anything else.
func applicationRank(app string) int {
	switch strings.ToLower(app) {
	case "text-mining":
		return 0
	case "similarity-checking":
		return 1
	default:
		return 2
	}
}

func isPDFLink(l crossrefLink) bool {
	ct := strings.ToLower(l.ContentType)
	if strings.Contains(ct, "pdf") {
		return true
	}
	if ct == "" || ct == "unspecified" {
		if u, err := url.Parse(l.URL); err == nil {
			return strings.EqualFold(path.Ext(u.Path), ".pdf")
		}
	}
	return false
}

// selectLink returns the preferred PDF link that passes the license
// allow-list. It returns "" with a nil error when the metadata has no PDF
// link at all, and a KindLicenseRejected error when links exist but the
// allow-list disqualifies every one of them.
func (c *Crossref) selectLink(w crossrefWork) (string, error) {
	var candidates []crossrefLink
	for rank := 0; rank <= 2; rank++ {
		for _, l := range w.Link {
			if l.URL != "" && applicationRank(l.IntendedApplication) == rank && isPDFLink(l) {
				candidates = append(candidates, l)
			}
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	if len(c.allowList) == 0 {
		return candidates[0].URL, nil
	}
	if len(w.License) == 0 {
		return "", c.fail(KindLicenseRejected, nil, "no license metadata for %s while an allow-list is configured", w.DOI)
	}
	for _, l := range candidates {
		if c.licensed(l, w.License) {
			return l.URL, nil
		}
	}
	return "", c.fail(KindLicenseRejected, nil, "no content link for %s carries an allowed, effective license", w.DOI)
}

// licensed reports whether any license associated with link is allowed and
// already in effect. A license is associated when its content version
// matches the link's, or when either side leaves the version unspecified.
func (c *Crossref) licensed(link crossrefLink, licenses []crossrefLicense) bool {
	for _, lic := range licenses {
		if !versionMatches(link.ContentVersion, lic.ContentVersion) {
			continue
		}
		if !c.allowedLicense(lic.URL) {
			continue
		}
		if licenseStarted(lic) {
			return true
		}
	}
	return false
}

func versionMatches(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" || b == "" || a == "unspecified" || b == "unspecified" {
		return true
	}
	return a == b
}

func (c *Crossref) allowedLicense(licenseURL string) bool {
	normalized := normalizeLicenseURL(licenseURL)
	for _, prefix := range c.allowList {
		if strings.HasPrefix(normalized, normalizeLicenseURL(prefix)) {
			return true
		}
	}
	return false
}

// normalizeLicenseURL drops scheme and case so http/https variants of the
// same license compare equal.
func normalizeLicenseURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	return strings.TrimPrefix(u, "www.")
}

// licenseStarted reports whether the license start date has passed. A
// missing or unparseable start is treated as already in effect.
func licenseStarted(lic crossrefLicense) bool {
	if lic.Start.DateTime == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, lic.Start.DateTime)
	if err != nil {
		return true
	}
	return !t.After(now())
}

// linkFromResolver sends a HEAD request to the DOI resolver and picks a PDF
// link from its Link headers. With an allow-list configured the fallback is
// skipped: header links carry no license to check.
func (c *Crossref) linkFromResolver(ctx context.Context, doi string) (string, error) {
	if len(c.allowList) > 0 {
		return "", nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, doiResolverBase+url.PathEscape(doi), nil)
	if err != nil {
		return "", c.fail(KindHTTP, err, "creating resolver request")
	}
	resp, err := c.do(ctx, c.meta, req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	return pdfFromLinkHeaders(resp.Header.Values("Link")), nil
}

type crossrefSearchResponse struct {
	Message struct {
		Items      []crossrefWork `json:"items"`
		NextCursor string         `json:"next-cursor"`
	} `json:"message"`
}

// Search runs a bibliographic query with deep paging cursors.
func (c *Crossref) Search(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	cursor := q.Cursor
	if cursor == "" {
		cursor = "*"
	}
	params := url.Values{
		"query":  {q.Query},
		"rows":   {strconv.Itoa(clampLimit(q.Limit, 20, 1000))},
		"cursor": {cursor},
		"mailto": {c.mailto},
	}

	var resp crossrefSearchResponse
	if err := c.getJSON(ctx, crossrefAPIBase+"/works?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	page := &SearchPage{}
	for _, w := range resp.Message.Items {
		rec := types.ArticleRecord{DOI: w.DOI, URL: w.URL, Publisher: types.PublisherCrossref}
		if len(w.Title) > 0 {
			rec.Title = w.Title[0]
		}
		page.Records = append(page.Records, rec)
	}
	if len(resp.Message.Items) > 0 {
		page.Next = resp.Message.NextCursor
	}
	return page, nil
}
