// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data structures shared by the harvest pipeline:
// article records, publisher labels, per-publisher metrics, checkpoints, and
// run configuration.
package types

import (
	"sort"
	"time"
)

// Publisher is the classification label that selects a provider chain.
type Publisher string

const (
	PublisherWiley    Publisher = "Wiley"
	PublisherElsevier Publisher = "Elsevier"
	PublisherSpringer Publisher = "Springer"
	// PublisherCrossref is the generic open-resolver classification used
	// for every DOI outside the premium prefix tables.
	PublisherCrossref Publisher = "Crossref"
)

// Premium reports whether the label is served by a single licensed client.
func (p Publisher) Premium() bool {
	switch p {
	case PublisherWiley, PublisherElsevier, PublisherSpringer:
		return true
	default:
		return false
	}
}

// ArticleRecord identifies one unit of work. Values are treated as
// immutable once constructed.
type ArticleRecord struct {
	// Title is a display string (e.g. "DOI 10.1002/anie.202100001").
	Title string `json:"title" yaml:"title"`

	// DOI is the primary key when present.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// PII is Elsevier's Publisher Item Identifier.
	PII string `json:"pii,omitempty" yaml:"pii,omitempty"`

	// PMID is the PubMed identifier.
	PMID string `json:"pmid,omitempty" yaml:"pmid,omitempty"`

	// URL is an optional direct link returned by a search API.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Publisher is the classification label.
	Publisher Publisher `json:"publisher" yaml:"publisher"`
}

// Identifier returns the DOI, or the PII when the DOI is absent.
func (r ArticleRecord) Identifier() string {
	if r.DOI != "" {
		return r.DOI
	}
	return r.PII
}

// ProviderStats counts download attempts for one metrics bucket.
type ProviderStats struct {
	Attempted int `json:"attempted" yaml:"attempted"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
}

// Rate returns the success percentage, or 0 when nothing was attempted.
func (s ProviderStats) Rate() float64 {
	if s.Attempted == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Attempted) * 100
}

// Metrics maps a publisher label to its attempt counters.
type Metrics map[string]ProviderStats

// Attempt records one attempted record for label.
func (m Metrics) Attempt(label string) {
	s := m[label]
	s.Attempted++
	m[label] = s
}

// Succeed records one successful primary download for label.
func (m Metrics) Succeed(label string) {
	s := m[label]
	s.Succeeded++
	m[label] = s
}

// Merge adds every bucket of other into m.
func (m Metrics) Merge(other Metrics) {
	for label, s := range other {
		cur := m[label]
		cur.Attempted += s.Attempted
		cur.Succeeded += s.Succeeded
		m[label] = cur
	}
}

// Labels returns the bucket names in sorted order.
func (m Metrics) Labels() []string {
	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Clone returns an independent copy of m.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Checkpoint is the persisted progress marker of one input batch.
type Checkpoint struct {
	// LastCompletedIndex is the absolute index of the last processed record.
	LastCompletedIndex int `json:"last_completed_index" yaml:"last_completed_index"`

	// Timestamp is when the checkpoint was written.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// TotalDOIs is the size of the whole input batch.
	TotalDOIs int `json:"total_dois" yaml:"total_dois"`

	// RunWindow describes the [start,end) range of the run that wrote it.
	RunWindow string `json:"run_window" yaml:"run_window"`
}
