// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"net/url"
	"path"
	"strings"

	"github.com/tomnomnom/linkheader"
)

// pdfFromLinkHeaders picks a PDF link: an explicit application/pdf type
// first, then a rel="item" link whose path ends in .pdf.
func pdfFromLinkHeaders(values []string) string {
	links := linkheader.ParseMultiple(values)
	for _, l := range links {
		if strings.Contains(strings.ToLower(l.Param("type")), "pdf") {
			return l.URL
		}
	}
	for _, l := range links.FilterByRel("item") {
		if u, err := url.Parse(l.URL); err == nil && strings.EqualFold(path.Ext(u.Path), ".pdf") {
			return l.URL
		}
	}
	return ""
}
