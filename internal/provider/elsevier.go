// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// elsevierBaseURL is the Elsevier API root. Declared as a var so tests can
// substitute an httptest server.
var elsevierBaseURL = "https://api.elsevier.com"

// Elsevier is the Elsevier TDM client. Articles are addressed by DOI, or by
// PII when the record has no DOI.
type Elsevier struct {
	base
	apiKey string
}

var (
	_ Provider = (*Elsevier)(nil)
	_ Searcher = (*Elsevier)(nil)
)

// NewElsevier returns an Elsevier client, or a KindConfig error when the
// API key is not configured.
func NewElsevier(cfg types.HarvestConfig) (*Elsevier, error) {
	key := cfg.Credentials.ElsevierAPIKey
	if key == "" {
		return nil, missingCredential(NameElsevier, "ELSEVIER_API_KEY")
	}
	return &Elsevier{
		base:   newBase(NameElsevier, cfg.HTTPConfig, 0, true),
		apiKey: key,
	}, nil
}

func (c *Elsevier) header(accept string) http.Header {
	h := http.Header{}
	h.Set("X-ELS-APIKey", c.apiKey)
	h.Set("Accept", accept)
	return h
}

// Download fetches the article PDF by DOI, or by PII when DOI is empty.
func (c *Elsevier) Download(ctx context.Context, rec types.ArticleRecord, dest string, overwrite bool) (string, error) {
	if existing(dest, overwrite) {
		return dest, nil
	}
	idType, id := "doi", rec.DOI
	if id == "" {
		idType, id = "pii", rec.PII
	}
	if id == "" {
		return "", c.fail(KindNoContent, nil, "no DOI or PII for record %q", rec.Title)
	}
	u := elsevierBaseURL + "/content/article/" + idType + "/" + url.PathEscape(id) + "?httpAccept=application%2Fpdf"
	if err := c.fetchFile(ctx, u, c.header("application/pdf"), dest); err != nil {
		return "", err
	}
	return dest, nil
}

type elsevierSearchResponse struct {
	SearchResults struct {
		Entry []struct {
			Title    string `json:"dc:title"`
			DOI      string `json:"prism:doi"`
			PII      string `json:"pii"`
			DCID     string `json:"dc:identifier"`
			PubmedID string `json:"pubmed-id"`
			Link     []struct {
				Href string `json:"@href"`
			} `json:"link"`
		} `json:"entry"`
		Cursor struct {
			Next string `json:"@next"`
		} `json:"cursor"`
	} `json:"search-results"`
}

// Search queries ScienceDirect. The first page uses cursor "*"; later pages
// pass the returned @next cursor.
func (c *Elsevier) Search(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	cursor := q.Cursor
	if cursor == "" {
		cursor = "*"
	}
	params := url.Values{
		"query":  {q.Query},
		"count":  {strconv.Itoa(clampLimit(q.Limit, 25, 25))},
		"cursor": {cursor},
	}

	var resp elsevierSearchResponse
	u := elsevierBaseURL + "/content/search/sciencedirect?" + params.Encode()
	if err := c.getJSON(ctx, u, c.header("application/json"), &resp); err != nil {
		return nil, err
	}

	page := &SearchPage{}
	for _, e := range resp.SearchResults.Entry {
		pii := e.PII
		if pii == "" {
			pii = e.DCID
		}
		rec := types.ArticleRecord{
			Title:     e.Title,
			DOI:       e.DOI,
			PII:       pii,
			PMID:      e.PubmedID,
			Publisher: types.PublisherElsevier,
		}
		if len(e.Link) > 0 {
			rec.URL = e.Link[0].Href
		}
		page.Records = append(page.Records, rec)
	}
	if len(resp.SearchResults.Entry) > 0 && resp.SearchResults.Cursor.Next != cursor {
		page.Next = resp.SearchResults.Cursor.Next
	}
	return page, nil
}
