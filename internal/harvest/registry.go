// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package harvest routes classified records to their provider chains and
// downloads them one at a time, yielding saved paths as a lazy stream.
package harvest

import (
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-harvester/internal/provider"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

// chainNames lists, per publisher label, the providers to try in order.
// Premium labels get their single licensed client. The open resolver label
// tries the open-access aggregators before the metadata-driven resolver.
var chainNames = map[types.Publisher][]string{
	types.PublisherWiley:    {provider.NameWiley},
	types.PublisherElsevier: {provider.NameElsevier},
	types.PublisherSpringer: {provider.NameSpringer},
	types.PublisherCrossref: {provider.NameOpenAlex, provider.NameUnpaywall, provider.NameCrossref},
}

// constructors builds each provider from the shared configuration.
var constructors = map[string]func(types.HarvestConfig) (provider.Provider, error){
	provider.NameWiley:     func(c types.HarvestConfig) (provider.Provider, error) { return provider.NewWiley(c) },
	provider.NameElsevier:  func(c types.HarvestConfig) (provider.Provider, error) { return provider.NewElsevier(c) },
	provider.NameSpringer:  func(c types.HarvestConfig) (provider.Provider, error) { return provider.NewSpringer(c) },
	provider.NameCrossref:  func(c types.HarvestConfig) (provider.Provider, error) { return provider.NewCrossref(c) },
	provider.NameOpenAlex:  func(c types.HarvestConfig) (provider.Provider, error) { return provider.NewOpenAlex(c) },
	provider.NameUnpaywall: func(c types.HarvestConfig) (provider.Provider, error) { return provider.NewUnpaywall(c) },
}

// Registry maps publisher labels to configured provider chains. Labels
// whose chain is empty are disabled, with the reason kept for the plan.
type Registry struct {
	chains   map[types.Publisher][]provider.Provider
	disabled map[types.Publisher]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		chains:   make(map[types.Publisher][]provider.Provider),
		disabled: make(map[types.Publisher]string),
	}
}

// Set installs the chain for label, clearing any disabled reason.
func (r *Registry) Set(label types.Publisher, chain ...provider.Provider) {
	r.chains[label] = chain
	delete(r.disabled, label)
}

// Disable removes label's chain and records why.
func (r *Registry) Disable(label types.Publisher, reason string) {
	delete(r.chains, label)
	r.disabled[label] = reason
}

// Chain returns the providers for label in attempt order, or nil when the
// label has no configured provider.
func (r *Registry) Chain(label types.Publisher) []provider.Provider {
	return r.chains[label]
}

// Disabled returns the reason label is disabled, if it is.
func (r *Registry) Disabled(label types.Publisher) (string, bool) {
	reason, ok := r.disabled[label]
	return reason, ok
}

// DisabledLabels returns every disabled label and its reason.
func (r *Registry) DisabledLabels() map[types.Publisher]string {
	out := make(map[types.Publisher]string, len(r.disabled))
	for k, v := range r.disabled {
		out[k] = v
	}
	return out
}

// Build constructs only the clients needed for labels. A provider whose
// credentials are missing is skipped with a warning; a label is disabled
// only when none of its chain could be built.
func Build(cfg types.HarvestConfig, labels []types.Publisher, logger zerolog.Logger) *Registry {
	r := NewRegistry()
	built := make(map[string]provider.Provider)
	failed := make(map[string]string)

	for _, label := range uniqueLabels(labels) {
		names, ok := chainNames[label]
		if !ok {
			r.Disable(label, "unsupported publisher")
			continue
		}

		var chain []provider.Provider
		var reasons []string
		for _, name := range names {
			if p, ok := built[name]; ok {
				chain = append(chain, p)
				continue
			}
			if reason, ok := failed[name]; ok {
				reasons = append(reasons, reason)
				continue
			}
			p, err := constructors[name](cfg)
			if err != nil {
				failed[name] = err.Error()
				reasons = append(reasons, err.Error())
				logger.Warn().Str("provider", name).Str("publisher", string(label)).Err(err).Msg("provider disabled")
				continue
			}
			built[name] = p
			chain = append(chain, p)
		}

		if len(chain) == 0 {
			reason := strings.Join(reasons, "; ")
			r.Disable(label, reason)
			logger.Warn().Str("publisher", string(label)).Str("reason", reason).Msg("downloads disabled")
			continue
		}
		r.Set(label, chain...)
	}
	return r
}

func uniqueLabels(labels []types.Publisher) []types.Publisher {
	out := slices.Clone(labels)
	slices.Sort(out)
	return slices.Compact(out)
}

// Labels returns the distinct publisher labels of records in sorted order.
func Labels(records []types.ArticleRecord) []types.Publisher {
	labels := make([]types.Publisher, 0, len(records))
	for _, rec := range records {
		labels = append(labels, rec.Publisher)
	}
	return uniqueLabels(labels)
}
