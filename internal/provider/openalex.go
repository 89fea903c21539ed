// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// openAlexAPIBase is the OpenAlex API root. Declared as a var so tests can
// substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org"

// OpenAlex resolves open-access PDF locations from OpenAlex work records.
type OpenAlex struct {
	base
	mailto string
}

var (
	_ Provider = (*OpenAlex)(nil)
	_ Searcher = (*OpenAlex)(nil)
)

// NewOpenAlex returns an OpenAlex client, or a KindConfig error when no
// contact address is configured.
func NewOpenAlex(cfg types.HarvestConfig) (*OpenAlex, error) {
	mailto := cfg.Credentials.OpenAlexMailto
	if mailto == "" {
		return nil, missingCredential(NameOpenAlex, "OPENALEX_MAILTO")
	}
	return &OpenAlex{
		base:   newBase(NameOpenAlex, cfg.HTTPConfig, 0, false),
		mailto: mailto,
	}, nil
}

type openAlexLocation struct {
	PDFURL         string `json:"pdf_url"`
	LandingPageURL string `json:"landing_page_url"`
	IsOA           bool   `json:"is_oa"`
}

type openAlexWork struct {
	ID         string `json:"id"`
	DOI        string `json:"doi"`
	Title      string `json:"display_name"`
	OpenAccess struct {
		IsOA  bool   `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
	BestOALocation *openAlexLocation  `json:"best_oa_location"`
	Locations      []openAlexLocation `json:"locations"`
}

// Download looks up the work by DOI and tries its PDF locations in order,
// best open-access location first.
func (c *OpenAlex) Download(ctx context.Context, rec types.ArticleRecord, dest string, overwrite bool) (string, error) {
	if existing(dest, overwrite) {
		return dest, nil
	}
	if rec.DOI == "" {
		return "", c.fail(KindNoContent, nil, "no DOI for record %q", rec.Title)
	}

	var w openAlexWork
	u := openAlexAPIBase + "/works/https://doi.org/" + url.PathEscape(rec.DOI) + "?" + url.Values{"mailto": {c.mailto}}.Encode()
	if err := c.getJSON(ctx, u, nil, &w); err != nil {
		return "", err
	}
	if !w.OpenAccess.IsOA {
		return "", c.fail(KindNotOpenAccess, nil, "%s is not open access", rec.DOI)
	}

	var candidates []string
	if w.BestOALocation != nil {
		candidates = append(candidates, w.BestOALocation.PDFURL)
	}
	for _, loc := range w.Locations {
		candidates = append(candidates, loc.PDFURL)
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

type openAlexSearchResponse struct {
	Results []openAlexWork `json:"results"`
	Meta    struct {
		NextCursor string `json:"next_cursor"`
	} `json:"meta"`
}

// Search runs a full-text works search with cursor paging.
func (c *OpenAlex) Search(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	cursor := q.Cursor
	if cursor == "" {
		cursor = "*"
	}
	params := url.Values{
		"search":   {q.Query},
		"per-page": {strconv.Itoa(clampLimit(q.Limit, 25, 200))},
		"cursor":   {cursor},
		"mailto":   {c.mailto},
	}

	var resp openAlexSearchResponse
	if err := c.getJSON(ctx, openAlexAPIBase+"/works?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	page := &SearchPage{Next: resp.Meta.NextCursor}
	for _, w := range resp.Results {
		rec := types.ArticleRecord{
			Title:     w.Title,
			DOI:       bareDOI(w.DOI),
			URL:       w.OpenAccess.OAURL,
			Publisher: types.PublisherCrossref,
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// bareDOI strips the resolver prefix OpenAlex puts on DOIs.
func bareDOI(s string) string {
	for _, p := range []string{"https://doi.org/", "http://doi.org/"} {
		if strings.HasPrefix(strings.ToLower(s), p) {
			return s[len(p):]
		}
	}
	return s
}
