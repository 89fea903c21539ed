// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package doi

import (
	"strings"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// prefixTable maps one premium publisher to the DOI registrant prefixes it
// owns. Tables are disjoint, so the check order only matters for speed.
type prefixTable struct {
	publisher types.Publisher
	prefixes  []string
}

var premiumTables = []prefixTable{
	{types.PublisherWiley, []string{"10.1002", "10.1111"}},
	// 10.1011 is rare but reserved by Elsevier.
	{types.PublisherElsevier, []string{"10.1016", "10.1011"}},
	{types.PublisherSpringer, []string{"10.1007", "10.1038", "10.1186"}},
}

// Classify maps a DOI to its publisher label. Any DOI outside the premium
// tables is classified as Crossref, so the function never returns "".
func Classify(doi string) types.Publisher {
	lowered := strings.ToLower(strings.TrimSpace(doi))
	for _, t := range premiumTables {
		for _, p := range t.prefixes {
			if strings.HasPrefix(lowered, p+"/") || lowered == p {
				return t.publisher
			}
		}
	}
	return types.PublisherCrossref
}

// Records builds one ArticleRecord per DOI with its classification.
func Records(dois []string) []types.ArticleRecord {
	records := make([]types.ArticleRecord, 0, len(dois))
	for _, d := range dois {
		records = append(records, types.ArticleRecord{
			Title:     "DOI " + d,
			DOI:       d,
			Publisher: Classify(d),
		})
	}
	return records
}
