// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// Springer Nature endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	springerAPIBase     = "https://api.springernature.com"
	springerContentBase = "https://link.springer.com"
)

// Springer is the Springer Nature client. The API key is sent as the
// api_key query parameter.
type Springer struct {
	base
	apiKey string
}

var (
	_ Provider = (*Springer)(nil)
	_ Searcher = (*Springer)(nil)
)

// NewSpringer returns a Springer client, or a KindConfig error when the API
// key is not configured.
func NewSpringer(cfg types.HarvestConfig) (*Springer, error) {
	key := cfg.Credentials.SpringerAPIKey
	if key == "" {
		return nil, missingCredential(NameSpringer, "SPRINGER_API_KEY")
	}
	return &Springer{
		base:   newBase(NameSpringer, cfg.HTTPConfig, 0, true),
		apiKey: key,
	}, nil
}

// Download fetches {content}/content/pdf/{doi}.pdf.
func (c *Springer) Download(ctx context.Context, rec types.ArticleRecord, dest string, overwrite bool) (string, error) {
	if existing(dest, overwrite) {
		return dest, nil
	}
	if rec.DOI == "" {
		return "", c.fail(KindNoContent, nil, "no DOI for record %q", rec.Title)
	}
	u := springerContentBase + "/content/pdf/" + rec.DOI + ".pdf?" + url.Values{"api_key": {c.apiKey}}.Encode()
	if err := c.fetchFile(ctx, u, nil, dest); err != nil {
		return "", err
	}
	return dest, nil
}

type springerSearchResponse struct {
	Result []struct {
		Total      string `json:"total"`
		Start      string `json:"start"`
		PageLength string `json:"pageLength"`
	} `json:"result"`
	Records []struct {
		Title string `json:"title"`
		DOI   string `json:"doi"`
		URL   []struct {
			Format string `json:"format"`
			Value  string `json:"value"`
		} `json:"url"`
	} `json:"records"`
}

// Search queries the metadata API. The cursor is the next 1-based start index.
func (c *Springer) Search(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	limit := clampLimit(q.Limit, 25, 100)
	start := 1
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return nil, c.fail(KindHTTP, err, "invalid cursor %q", q.Cursor)
		}
		start = n
	}
	params := url.Values{
		"q":       {q.Query},
		"s":       {strconv.Itoa(start)},
		"p":       {strconv.Itoa(limit)},
		"api_key": {c.apiKey},
	}

	var resp springerSearchResponse
	if err := c.getJSON(ctx, springerAPIBase+"/meta/v2/json?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	page := &SearchPage{}
	for _, r := range resp.Records {
		rec := types.ArticleRecord{Title: r.Title, DOI: r.DOI, Publisher: types.PublisherSpringer}
		for _, u := range r.URL {
			if u.Format == "pdf" || rec.URL == "" {
				rec.URL = u.Value
			}
		}
		page.Records = append(page.Records, rec)
	}
	if len(resp.Result) > 0 {
		total, _ := strconv.Atoi(resp.Result[0].Total)
		next := start + len(resp.Records)
		if len(resp.Records) > 0 && next <= total {
			page.Next = strconv.Itoa(next)
		}
	}
	return page, nil
}
