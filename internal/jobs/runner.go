// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-harvester/internal/checkpoint"
	"github.com/pdiddy/paper-harvester/internal/doi"
	"github.com/pdiddy/paper-harvester/internal/harvest"
	"github.com/pdiddy/paper-harvester/internal/supplement"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Request describes one download batch.
type Request struct {
	DOIs []string `json:"dois"`

	// OutputDir defaults to the runner's configured output root.
	OutputDir string `json:"output_dir,omitempty"`

	// DelaySeconds defaults to the configured delay. The one-second floor
	// still applies.
	DelaySeconds float64 `json:"delay_seconds,omitempty"`

	MaxPerPublisher int  `json:"max_per_publisher,omitempty"`
	Overwrite       bool `json:"overwrite,omitempty"`
	DryRun          bool `json:"dry_run,omitempty"`

	// NoSupplements turns off supplementary discovery for this job.
	NoSupplements bool `json:"no_supplements,omitempty"`

	// JobID, when given, is used as the job ID and as a subdirectory of
	// OutputDir, so repeated submissions reuse the same tree.
	JobID string `json:"job_id,omitempty"`
}

// Runner executes jobs in background goroutines. Jobs writing to the same
// output directory run one at a time.
type Runner struct {
	store    *Store
	creds    *CredentialStore
	base     types.HarvestConfig
	stateDir string
	logger   zerolog.Logger

	collector *harvest.Collector
	// build constructs the provider registry; tests replace it.
	build func(types.HarvestConfig, []types.Publisher, zerolog.Logger) *harvest.Registry
	// minDelay floors the inter-record delay; tests set it to zero.
	minDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	dirLocks map[string]*sync.Mutex
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithCollector exports job downloads to Prometheus.
func WithCollector(c *harvest.Collector) RunnerOption {
	return func(r *Runner) { r.collector = c }
}

// NewRunner returns a Runner that layers creds over base for every job and
// keeps per-batch ledgers under stateDir.
func NewRunner(store *Store, creds *CredentialStore, base types.HarvestConfig, stateDir string, logger zerolog.Logger, opts ...RunnerOption) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		store:    store,
		creds:    creds,
		base:     base,
		stateDir: stateDir,
		logger:   logger.With().Str("component", "jobs").Logger(),
		build:    harvest.Build,
		minDelay: harvest.MinDelay,
		ctx:      ctx,
		cancel:   cancel,
		dirLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit validates req, records a queued job, and starts it.
func (r *Runner) Submit(ctx context.Context, req Request) (*Job, error) {
	if len(req.DOIs) == 0 {
		return nil, fmt.Errorf("%w: no DOIs supplied", ErrInvalidRequest)
	}
	dois, errs := doi.NormalizeAll(req.DOIs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
	}
	if len(dois) == 0 {
		return nil, fmt.Errorf("%w: no DOIs supplied", ErrInvalidRequest)
	}
	if req.MaxPerPublisher < 0 || req.DelaySeconds < 0 {
		return nil, fmt.Errorf("%w: negative max_per_publisher or delay_seconds", ErrInvalidRequest)
	}

	id := req.JobID
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = r.base.OutputDir
	}
	if id != "" {
		if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
			return nil, fmt.Errorf("%w: job_id %q is not a plain name", ErrInvalidRequest, id)
		}
		outputDir = filepath.Join(outputDir, id)
	} else {
		id = newJobID()
	}
	if abs, err := filepath.Abs(outputDir); err == nil {
		outputDir = abs
	}

	job := &Job{
		ID:        id,
		OutputDir: outputDir,
		DOIs:      dois,
		DryRun:    req.DryRun,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Save(ctx, job); err != nil {
		return nil, err
	}

	// The caller gets its own copy; execute mutates job as it runs.
	snapshot := *job
	snapshot.DOIs = slices.Clone(job.DOIs)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(job, req)
	}()
	return &snapshot, nil
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops jobs between records and waits for them.
func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) dirLock(dir string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.dirLocks[dir]
	if !ok {
		l = &sync.Mutex{}
		r.dirLocks[dir] = l
	}
	return l
}

func (r *Runner) config(job *Job, req Request) types.HarvestConfig {
	cfg := r.base
	cfg.OutputDir = job.OutputDir
	cfg.Credentials = r.base.Credentials.Merge(r.creds.Snapshot())
	if req.DelaySeconds > 0 {
		cfg.Delay = time.Duration(req.DelaySeconds * float64(time.Second))
	}
	if cfg.Delay == 0 {
		cfg.Delay = harvest.DefaultDelay
	}
	cfg.MaxPerPublisher = req.MaxPerPublisher
	cfg.Overwrite = req.Overwrite
	cfg.DryRun = req.DryRun
	cfg.Supplements = cfg.Supplements && !req.NoSupplements
	return cfg
}

func (r *Runner) execute(job *Job, req Request) {
	log := r.logger.With().Str("job_id", job.ID).Logger()
	lock := r.dirLock(job.OutputDir)
	lock.Lock()
	defer lock.Unlock()

	job.Status = StatusRunning
	r.save(log, job)

	err := r.run(log, job, req)
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		log.Error().Err(err).Msg("job failed")
	} else {
		job.Status = StatusSucceeded
		log.Info().Int("files", len(job.Files)).Int("failures", job.Failures).Msg("job finished")
	}
	r.save(log, job)
}

func (r *Runner) save(log zerolog.Logger, job *Job) {
	if err := r.store.Save(context.Background(), job); err != nil {
		log.Error().Err(err).Msg("saving job")
	}
}

func (r *Runner) run(log zerolog.Logger, job *Job, req Request) error {
	cfg := r.config(job, req)
	records, positions := harvest.LimitPerPublisherIndexed(doi.Records(job.DOIs), cfg.MaxPerPublisher)

	reg := r.build(cfg, harvest.Labels(records), log)
	plan := harvest.BuildPlan(records, reg)
	plan.Log(log)
	job.Plan = plan
	job.Metrics = types.Metrics{}
	if cfg.DryRun {
		return nil
	}
	if len(plan.Routable) == 0 {
		return errors.New("no provider configured for any submitted DOI")
	}

	store := checkpoint.NewStore(r.stateDir, job.DOIs)
	tracker, err := checkpoint.NewTracker(store, 0, len(job.DOIs), len(job.DOIs), log)
	if err != nil {
		return err
	}
	defer tracker.Close()
	tracker.SetPositions(positions)
	job.FailureLog = store.FailurePath()

	opts := harvest.OptionsFromConfig(cfg)
	opts.MinDelay = r.minDelay
	options := []harvest.Option{harvest.WithHooks(tracker.Hooks()), harvest.WithCollector(r.collector)}
	if cfg.Supplements {
		options = append(options, harvest.WithSupplements(supplement.New(cfg.MaxSupplements, log)))
	}
	stream := harvest.New(reg, opts, log, options...).Run(r.ctx, records)
	for path := range stream.Paths() {
		job.Files = append(job.Files, path)
	}
	job.Metrics = stream.Metrics()
	job.Failures = len(stream.Failures())
	return stream.Err()
}
