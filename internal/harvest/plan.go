// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// maxExamples bounds the example identifiers reported by a plan.
const maxExamples = 5

// Plan is the resolved routing of a batch, computed without network I/O.
type Plan struct {
	// Total is the number of records after per-publisher limiting.
	Total int `json:"total" yaml:"total"`

	// Counts is the number of routable records per publisher label.
	Counts map[types.Publisher]int `json:"counts" yaml:"counts"`

	// Examples holds the first few routable identifiers.
	Examples []string `json:"examples" yaml:"examples"`

	// Disabled maps each label that has no configured provider to the reason.
	Disabled map[types.Publisher]string `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// Routable are the records that have at least one provider.
	Routable []types.ArticleRecord `json:"-" yaml:"-"`

	// Dropped are the records disqualified before any network call.
	Dropped []types.ArticleRecord `json:"dropped,omitempty" yaml:"dropped,omitempty"`
}

// LimitPerPublisher keeps at most n records per publisher label, in input
// order. n <= 0 returns records unchanged.
func LimitPerPublisher(records []types.ArticleRecord, n int) []types.ArticleRecord {
	limited, _ := LimitPerPublisherIndexed(records, n)
	return limited
}

// LimitPerPublisherIndexed is LimitPerPublisher that also returns, for each
// kept record, its position in records.
func LimitPerPublisherIndexed(records []types.ArticleRecord, n int) ([]types.ArticleRecord, []int) {
	positions := make([]int, 0, len(records))
	if n <= 0 {
		for i := range records {
			positions = append(positions, i)
		}
		return records, positions
	}
	counts := make(map[string]int)
	limited := make([]types.ArticleRecord, 0, len(records))
	for i, rec := range records {
		key := strings.ToLower(string(rec.Publisher))
		if counts[key] >= n {
			continue
		}
		counts[key]++
		limited = append(limited, rec)
		positions = append(positions, i)
	}
	return limited, positions
}

// BuildPlan splits records into routable and dropped using reg.
func BuildPlan(records []types.ArticleRecord, reg *Registry) *Plan {
	p := &Plan{
		Total:    len(records),
		Counts:   make(map[types.Publisher]int),
		Disabled: reg.DisabledLabels(),
	}
	for _, rec := range records {
		if len(reg.Chain(rec.Publisher)) == 0 {
			p.Dropped = append(p.Dropped, rec)
			continue
		}
		p.Counts[rec.Publisher]++
		p.Routable = append(p.Routable, rec)
		if len(p.Examples) < maxExamples {
			p.Examples = append(p.Examples, rec.Identifier())
		}
	}
	return p
}

// Summary renders the per-publisher counts as "A=1, B=2".
func (p *Plan) Summary() string {
	labels := make([]string, 0, len(p.Counts))
	for label := range p.Counts {
		labels = append(labels, string(label))
	}
	sort.Strings(labels)
	parts := make([]string, len(labels))
	for i, label := range labels {
		parts[i] = fmt.Sprintf("%s=%d", label, p.Counts[types.Publisher(label)])
	}
	return strings.Join(parts, ", ")
}

// Log writes the plan at info level, with disabled labels as warnings.
func (p *Plan) Log(logger zerolog.Logger) {
	logger.Info().
		Int("total", len(p.Routable)).
		Str("publishers", p.Summary()).
		Msg("download plan")
	for label, reason := range p.Disabled {
		logger.Warn().Str("publisher", string(label)).Str("reason", reason).Msg("publisher skipped")
	}
	if len(p.Dropped) > 0 {
		logger.Warn().Int("count", len(p.Dropped)).Msg("records without a configured provider")
	}
	if len(p.Examples) > 0 {
		ev := logger.Info().Strs("examples", p.Examples)
		if len(p.Routable) > len(p.Examples) {
			ev = ev.Int("more", len(p.Routable)-len(p.Examples))
		}
		ev.Msg("example DOIs queued")
	}
}
