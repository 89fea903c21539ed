// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider wraps the publisher and metadata APIs that can supply an
// article PDF behind one contract. Every failure is a *FetchError carrying a
// Kind from a closed set, so callers can branch on the condition without
// parsing messages.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// Provider names, also used as log fields and metric labels.
const (
	NameWiley     = "wiley"
	NameElsevier  = "elsevier"
	NameSpringer  = "springer"
	NameCrossref  = "crossref"
	NameOpenAlex  = "openalex"
	NameUnpaywall = "unpaywall"
)

// Provider downloads the primary PDF for one record.
type Provider interface {
	// Name returns the provider identifier (e.g. "openalex").
	Name() string

	// Download writes the record's PDF to dest and returns dest. If dest
	// already exists and overwrite is false it returns dest without any
	// network call. Every error is a *FetchError.
	Download(ctx context.Context, rec types.ArticleRecord, dest string, overwrite bool) (string, error)
}

// SearchQuery is one page request against a provider's search endpoint.
type SearchQuery struct {
	// Query is passed through in the provider's own query syntax.
	Query string
	// Limit is the page size; providers clamp it to their own maximum.
	Limit int
	// Cursor is the opaque continuation returned by a previous page; empty
	// requests the first page.
	Cursor string
}

// SearchPage is one page of search results.
type SearchPage struct {
	Records []types.ArticleRecord
	// Next is the cursor for the following page, or "" on the last page.
	Next string
}

// Searcher is implemented by providers that expose a paginated search.
type Searcher interface {
	Search(ctx context.Context, q SearchQuery) (*SearchPage, error)
}

// ErrDownloadFailed matches every provider failure via errors.Is.
var ErrDownloadFailed = errors.New("download failed")

// Kind classifies a provider failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig: a required credential is missing.
	KindConfig
	// KindHTTP: non-2xx response, anti-bot block, or network failure.
	KindHTTP
	// KindNoContent: no PDF link could be discovered.
	KindNoContent
	// KindLicenseRejected: links exist but none passes the license allow-list.
	KindLicenseRejected
	// KindNotOpenAccess: the aggregator reports the work as closed.
	KindNotOpenAccess
	// KindSubscriptionWall: the provider signals that manual access is needed.
	KindSubscriptionWall
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindHTTP:
		return "http"
	case KindNoContent:
		return "no_content"
	case KindLicenseRejected:
		return "license_rejected"
	case KindNotOpenAccess:
		return "not_open_access"
	case KindSubscriptionWall:
		return "subscription_wall"
	default:
		return "unknown"
	}
}

// Retryable reports whether a later attempt against the same provider could
// succeed. Only transport and status failures qualify.
func (k Kind) Retryable() bool {
	return k == KindHTTP
}

// FetchError is the single error type returned by provider clients.
type FetchError struct {
	Provider string
	Kind     Kind
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes ErrDownloadFailed and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDownloadFailed}
	}
	return []error{ErrDownloadFailed, e.Err}
}

// KindOf returns the Kind of the first FetchError in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func newError(provider string, kind Kind, err error, format string, args ...any) *FetchError {
	return &FetchError{
		Provider: provider,
		Kind:     kind,
		Reason:   fmt.Sprintf(format, args...),
		Err:      err,
	}
}

func missingCredential(provider, envKey string) *FetchError {
	return newError(provider, KindConfig, nil, "missing credential %s", envKey)
}
