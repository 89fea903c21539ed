// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package doi extracts, normalizes, and classifies Digital Object Identifiers.
package doi

import (
	"crypto/sha256"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// scanPattern finds DOI-shaped tokens in free text: "10.<4-9 digits>/"
// followed by visible ASCII.
var scanPattern = regexp.MustCompile(`10\.\d{4,9}/[\x21-\x7E]+`)

// fullPattern validates a single normalized DOI.
var fullPattern = regexp.MustCompile(`^10\.\d{4,9}/[\x21-\x7E]+$`)

// resolverPrefixes are stripped from user-supplied identifiers, longest first.
var resolverPrefixes = []string{
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"https://doi.org/",
	"http://doi.org/",
	"doi:",
}

// Extract returns every DOI found in text, in first-seen order, without
// duplicates. Trailing control characters are removed from each token.
func Extract(text string) []string {
	seen := make(map[string]struct{})
	var dois []string
	for _, m := range scanPattern.FindAllString(text, -1) {
		candidate := trimControl(strings.TrimSpace(m))
		if candidate == "" {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		dois = append(dois, candidate)
	}
	return dois
}

// ExtractReader reads r to EOF and extracts DOIs from its contents. Bytes
// are decoded as Latin-1, so legacy binary exports (e.g. Web of Science
// savedrecs.xls) never fail to decode.
func ExtractReader(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(r))
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return Extract(string(data)), nil
}

func trimControl(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool { return r < 32 })
}

// Normalize strips a resolver URL or "doi:" prefix from raw and validates
// the remainder.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty DOI entry")
	}
	lowered := strings.ToLower(s)
	for _, prefix := range resolverPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	s = trimControl(s)
	if !fullPattern.MatchString(s) {
		return "", fmt.Errorf("invalid DOI format: %q", raw)
	}
	return s, nil
}

// NormalizeAll normalizes every entry, dropping blanks and duplicates while
// keeping first-seen order. Invalid entries are reported in errs.
func NormalizeAll(raw []string) (dois []string, errs []error) {
	seen := make(map[string]struct{})
	for _, entry := range raw {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		d, err := Normalize(entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		dois = append(dois, d)
	}
	return dois, errs
}

// maxSlugLen caps directory names well under common filesystem limits.
const maxSlugLen = 120

// unsafeChars matches anything that is not portable in a path component.
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Slug returns a filesystem-safe, length-capped directory stem for an
// identifier. Stems that must be truncated get a short hash suffix so two
// long identifiers sharing a prefix do not collide.
func Slug(id string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(id), "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "unknown"
	}
	if len(s) <= maxSlugLen {
		return s
	}
	h := sha256.Sum256([]byte(id))
	suffix := fmt.Sprintf("-%x", h[:4])
	return s[:maxSlugLen-len(suffix)] + suffix
}
