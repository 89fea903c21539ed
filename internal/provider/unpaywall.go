// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// unpaywallAPIBase is the Unpaywall API root. Declared as a var so tests can
// substitute an httptest server.
var unpaywallAPIBase = "https://api.unpaywall.org"

// unpaywallPageSize is the fixed page size of the Unpaywall search endpoint.
const unpaywallPageSize = 50

// Unpaywall resolves open-access copies through the Unpaywall database.
type Unpaywall struct {
	base
	email string
}

var (
	_ Provider = (*Unpaywall)(nil)
	_ Searcher = (*Unpaywall)(nil)
)

// NewUnpaywall returns an Unpaywall client, or a KindConfig error when no
// email is configured.
func NewUnpaywall(cfg types.HarvestConfig) (*Unpaywall, error) {
	email := cfg.Credentials.UnpaywallEmail
	if email == "" {
		return nil, missingCredential(NameUnpaywall, "UNPAYWALL_EMAIL")
	}
	return &Unpaywall{
		base:  newBase(NameUnpaywall, cfg.HTTPConfig, 0, false),
		email: email,
	}, nil
}

type unpaywallLocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
	HostType  string `json:"host_type"`
}

type unpaywallRecord struct {
	DOI            string              `json:"doi"`
	Title          string              `json:"title"`
	IsOA           bool                `json:"is_oa"`
	BestOALocation *unpaywallLocation  `json:"best_oa_location"`
	OALocations    []unpaywallLocation `json:"oa_locations"`
}

// Download looks up the DOI and tries the best location's PDF URL, then
// every other open-access location.
func (c *Unpaywall) Download(ctx context.Context, rec types.ArticleRecord, dest string, overwrite bool) (string, error) {
	if existing(dest, overwrite) {
		return dest, nil
	}
	if rec.DOI == "" {
		return "", c.fail(KindNoContent, nil, "no DOI for record %q", rec.Title)
	}

	var r unpaywallRecord
	u := unpaywallAPIBase + "/v2/" + url.PathEscape(rec.DOI) + "?" + url.Values{"email": {c.email}}.Encode()
	if err := c.getJSON(ctx, u, nil, &r); err != nil {
		return "", err
	}
	if !r.IsOA {
		return "", c.fail(KindNotOpenAccess, nil, "%s is not open access", rec.DOI)
	}

	var candidates []string
	if r.BestOALocation != nil {
		candidates = append(candidates, r.BestOALocation.URLForPDF)
	}
	for _, loc := range r.OALocations {
		candidates = append(candidates, loc.URLForPDF)
	}
	candidates = dedupe(candidates)
	if len(candidates) == 0 {
		return "", c.fail(KindNoContent, nil, "no PDF location for %s", rec.DOI)
	}

	if err := c.tryURLs(ctx, candidates, dest); err != nil {
		return "", err
	}
	return dest, nil
}

type unpaywallSearchResponse struct {
	Results []struct {
		Response unpaywallRecord `json:"response"`
	} `json:"results"`
}

// Search queries titles. The cursor is the 1-based page number; the
// endpoint has a fixed page size, so q.Limit is ignored.
func (c *Unpaywall) Search(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	pageNum := 1
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil || n < 1 {
			return nil, c.fail(KindHTTP, err, "invalid cursor %q", q.Cursor)
		}
		pageNum = n
	}
	params := url.Values{
		"query": {q.Query},
		"page":  {strconv.Itoa(pageNum)},
		"email": {c.email},
	}

	var resp unpaywallSearchResponse
	if err := c.getJSON(ctx, unpaywallAPIBase+"/v2/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	page := &SearchPage{}
	for _, r := range resp.Results {
		rec := types.ArticleRecord{
			Title:     r.Response.Title,
			DOI:       r.Response.DOI,
			Publisher: types.PublisherCrossref,
		}
		if r.Response.BestOALocation != nil {
			rec.URL = r.Response.BestOALocation.URLForPDF
		}
		page.Records = append(page.Records, rec)
	}
	if len(resp.Results) == unpaywallPageSize {
		page.Next = strconv.Itoa(pageNum + 1)
	}
	return page, nil
}
