// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-harvester/internal/doi"
	"github.com/pdiddy/paper-harvester/internal/provider"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

const (
	// DefaultDelay is the pause after each processed record.
	DefaultDelay = 1500 * time.Millisecond

	// MinDelay is the floor on the pause between records: publisher
	// contracts allow at most one content download per second.
	MinDelay = time.Second

	legacyFileName = "article.pdf"
)

// SupplementFinder saves supplementary files for a DOI next to its primary
// PDF without replacing it.
type SupplementFinder interface {
	Discover(ctx context.Context, doi, primary string, overwrite bool) []string
}

// Outcome is the terminal result of one record.
type Outcome struct {
	// Index is the record's position in the slice passed to Run.
	Index  int
	Record types.ArticleRecord

	// Path is the primary PDF on success.
	Path string

	// Supplements are the supplementary files saved on success.
	Supplements []string

	// Err is the failure, nil on success.
	Err error

	// Kind classifies Err.
	Kind provider.Kind

	// Skipped is set for subscription walls and records with no provider.
	Skipped bool
}

// Reason renders Err for ledgers.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return strings.ReplaceAll(o.Err.Error(), "\n", "; ")
}

// Hooks observe terminal outcomes in record order. Nil hooks are ignored.
type Hooks struct {
	OnSuccess func(Outcome)
	OnFailure func(Outcome)
}

// Options configures a run.
type Options struct {
	OutputDir string

	// Delay is the pause after each processed record.
	Delay time.Duration

	// MinDelay floors Delay. Zero disables the floor.
	MinDelay time.Duration

	Overwrite bool

	// FailFast stops the stream at the first hard failure. Subscription
	// walls and records with no provider never stop the stream.
	FailFast bool

	// Supplements enables supplementary discovery after each success.
	Supplements bool
}

// OptionsFromConfig derives run options from the batch configuration,
// applying the one-second floor.
func OptionsFromConfig(cfg types.HarvestConfig) Options {
	return Options{
		OutputDir:   cfg.OutputDir,
		Delay:       cfg.Delay,
		MinDelay:    MinDelay,
		Overwrite:   cfg.Overwrite,
		FailFast:    cfg.FailFast,
		Supplements: cfg.Supplements,
	}
}

// Orchestrator downloads records sequentially through their provider chains.
type Orchestrator struct {
	registry    *Registry
	opts        Options
	logger      zerolog.Logger
	supplements SupplementFinder
	collector   *Collector
	hooks       Hooks
	sleep       func(context.Context, time.Duration) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSupplements sets the supplementary file finder.
func WithSupplements(s SupplementFinder) Option {
	return func(o *Orchestrator) { o.supplements = s }
}

// WithCollector exports counters to Prometheus.
func WithCollector(c *Collector) Option {
	return func(o *Orchestrator) { o.collector = c }
}

// WithHooks installs outcome observers.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// New returns an Orchestrator over reg.
func New(reg *Registry, opts Options, logger zerolog.Logger, options ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		opts:     opts,
		logger:   logger.With().Str("component", "harvest").Logger(),
		sleep:    sleepContext,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// EffectiveDelay returns the pause applied between records.
func (o *Orchestrator) EffectiveDelay() time.Duration {
	return max(o.opts.Delay, o.opts.MinDelay)
}

// Run returns a stream over records. Nothing is downloaded until the
// stream's Paths sequence is consumed.
func (o *Orchestrator) Run(ctx context.Context, records []types.ArticleRecord) *Stream {
	if d := o.EffectiveDelay(); d > o.opts.Delay {
		o.logger.Warn().Dur("requested", o.opts.Delay).Dur("enforced", d).Msg("delay below one PDF per second; enforcing floor")
	}
	return &Stream{
		o:       o,
		ctx:     ctx,
		records: records,
		metrics: make(types.Metrics),
	}
}

// recordPaths returns the article directory and primary PDF path for rec.
func (o *Orchestrator) recordPaths(rec types.ArticleRecord) (dir, dest string) {
	slug := doi.Slug(rec.Identifier())
	dir = filepath.Join(o.opts.OutputDir, slug)
	return dir, filepath.Join(dir, slug+".pdf")
}

// migrateLegacy renames dir/article.pdf to dest when dest does not exist.
func (o *Orchestrator) migrateLegacy(dir, dest string) {
	legacy := filepath.Join(dir, legacyFileName)
	if legacy == dest {
		return
	}
	if _, err := os.Stat(legacy); err != nil {
		return
	}
	if _, err := os.Stat(dest); err == nil {
		return
	}
	if err := os.Rename(legacy, dest); err != nil {
		o.logger.Warn().Err(err).Str("path", legacy).Msg("legacy file migration failed")
		return
	}
	o.logger.Info().Str("from", legacy).Str("to", dest).Msg("migrated legacy file")
}

// process runs one record through its chain. The second result reports
// whether any network work was attempted, which decides pacing.
func (o *Orchestrator) process(ctx context.Context, idx int, rec types.ArticleRecord) (Outcome, bool) {
	out := Outcome{Index: idx, Record: rec}
	label := string(rec.Publisher)
	log := o.logger.With().Str("doi", rec.Identifier()).Str("publisher", label).Logger()

	chain := o.registry.Chain(rec.Publisher)
	if len(chain) == 0 {
		reason := "no configured provider"
		if r, ok := o.registry.Disabled(rec.Publisher); ok && r != "" {
			reason += ": " + r
		}
		out.Err, out.Kind, out.Skipped = errors.New(reason), provider.KindConfig, true
		o.collector.skipped(label)
		log.Warn().Str("reason", reason).Msg("record skipped")
		return out, false
	}
	if rec.Identifier() == "" {
		out.Err, out.Kind, out.Skipped = errors.New("record has no DOI or PII"), provider.KindNoContent, true
		o.collector.skipped(label)
		log.Warn().Str("title", rec.Title).Msg("record skipped")
		return out, false
	}

	dir, dest := o.recordPaths(rec)
	o.migrateLegacy(dir, dest)

	var errs []error
	for _, p := range chain {
		start := time.Now()
		path, err := p.Download(ctx, rec, dest, o.opts.Overwrite)
		o.collector.observe(p.Name(), time.Since(start))
		if err == nil {
			out.Path = path
			break
		}
		kind := provider.KindOf(err)
		o.collector.failure(p.Name(), kind.String())
		log.Warn().Str("provider", p.Name()).Str("kind", kind.String()).Err(err).Msg("provider attempt failed")
		errs = append(errs, err)
		out.Kind = kind
		if kind == provider.KindSubscriptionWall {
			out.Skipped = true
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	if out.Path == "" {
		out.Err = errors.Join(errs...)
		removeIfEmpty(dir)
		return out, true
	}

	out.Kind = provider.KindUnknown
	log.Info().Str("path", out.Path).Msg("saved")
	if o.opts.Supplements && o.supplements != nil && rec.DOI != "" {
		out.Supplements = o.supplements.Discover(ctx, rec.DOI, out.Path, o.opts.Overwrite)
		o.collector.supplements(len(out.Supplements))
		if len(out.Supplements) > 0 {
			log.Info().Int("count", len(out.Supplements)).Msg("saved supplementary files")
		}
	}
	return out, true
}

// removeIfEmpty deletes dir when it exists and holds no entries.
func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FailFastError stops a stream at the first hard record failure.
type FailFastError struct {
	Outcome Outcome
}

func (e *FailFastError) Error() string {
	return fmt.Sprintf("stopping after failure of %s: %s", e.Outcome.Record.Identifier(), e.Outcome.Reason())
}

func (e *FailFastError) Unwrap() error { return e.Outcome.Err }
