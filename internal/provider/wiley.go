// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// wileyBaseURL is the Wiley TDM API root. Declared as a var so tests can
// substitute an httptest server.
var wileyBaseURL = "https://onlinelibrary.wiley.com/api/tdm/v1"

// Wiley is the Wiley Text & Data Mining client. Requests carry the TDM
// token as a bearer token.
type Wiley struct {
	base
	token string
}

var (
	_ Provider = (*Wiley)(nil)
	_ Searcher = (*Wiley)(nil)
)

// NewWiley returns a Wiley client, or a KindConfig error when the token is
// not configured.
func NewWiley(cfg types.HarvestConfig) (*Wiley, error) {
	token := cfg.Credentials.WileyToken
	if token == "" {
		return nil, missingCredential(NameWiley, "WILEY_TDM_TOKEN")
	}
	return &Wiley{
		base:  newBase(NameWiley, cfg.HTTPConfig, cfg.Credentials.WileyDelay, true),
		token: token,
	}, nil
}

func (c *Wiley) header(accept string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	h.Set("Accept", accept)
	return h
}

// Download fetches the PDF for rec.DOI from the single TDM content endpoint.
func (c *Wiley) Download(ctx context.Context, rec types.ArticleRecord, dest string, overwrite bool) (string, error) {
	if existing(dest, overwrite) {
		return dest, nil
	}
	if rec.DOI == "" {
		return "", c.fail(KindNoContent, nil, "no DOI for record %q", rec.Title)
	}
	u := wileyBaseURL + "/articles/" + url.PathEscape(rec.DOI) + "/pdf"
	if err := c.fetchFile(ctx, u, c.header("application/pdf"), dest); err != nil {
		return "", err
	}
	return dest, nil
}

type wileySearchResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Identifiers struct {
			DOI  string `json:"doi"`
			PII  string `json:"pii"`
			PMID string `json:"pmid"`
		} `json:"identifiers"`
	} `json:"items"`
}

// Search queries Wiley Online Library with a Lucene-style query. The cursor
// is the next offset.
func (c *Wiley) Search(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	limit := clampLimit(q.Limit, 20, 100)
	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return nil, c.fail(KindHTTP, err, "invalid cursor %q", q.Cursor)
		}
		offset = n
	}
	params := url.Values{
		"q":      {q.Query},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}

	var resp wileySearchResponse
	if err := c.getJSON(ctx, wileyBaseURL+"/articles?"+params.Encode(), c.header("application/json"), &resp); err != nil {
		return nil, err
	}

	page := &SearchPage{}
	for _, it := range resp.Items {
		page.Records = append(page.Records, types.ArticleRecord{
			Title:     it.Title,
			DOI:       it.Identifiers.DOI,
			PII:       it.Identifiers.PII,
			PMID:      it.Identifiers.PMID,
			URL:       it.Link,
			Publisher: types.PublisherWiley,
		})
	}
	if len(resp.Items) == limit {
		page.Next = strconv.Itoa(offset + limit)
	}
	return page, nil
}
