// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/pdiddy/paper-harvester/internal/doi"
	"github.com/pdiddy/paper-harvester/internal/provider"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

// NewSearcher builds the named provider and returns its search endpoint.
func NewSearcher(cfg types.HarvestConfig, name string) (provider.Searcher, error) {
	build, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %v)", name, ProviderNames())
	}
	p, err := build(cfg)
	if err != nil {
		return nil, err
	}
	s, ok := p.(provider.Searcher)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support search", name)
	}
	return s, nil
}

// ProviderNames returns every buildable provider name in sorted order.
func ProviderNames() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SearchRecords pages through s lazily, yielding at most limit records
// (0 means no limit). Records are classified by DOI. A page error is
// yielded once and ends the sequence.
func SearchRecords(ctx context.Context, s provider.Searcher, query string, pageSize, limit int) iter.Seq2[types.ArticleRecord, error] {
	return func(yield func(types.ArticleRecord, error) bool) {
		cursor := ""
		n := 0
		for {
			page, err := s.Search(ctx, provider.SearchQuery{Query: query, Limit: pageSize, Cursor: cursor})
			if err != nil {
				yield(types.ArticleRecord{}, err)
				return
			}
			for _, rec := range page.Records {
				if limit > 0 && n >= limit {
					return
				}
				n++
				if rec.DOI != "" {
					rec.Publisher = doi.Classify(rec.DOI)
				}
				if !yield(rec, nil) {
					return
				}
			}
			if page.Next == "" || page.Next == cursor || len(page.Records) == 0 {
				return
			}
			cursor = page.Next
		}
	}
}
