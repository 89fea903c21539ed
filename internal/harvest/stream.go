// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"iter"
	"sync"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// Stream is a single-pass, finite sequence of saved paths. Records are
// processed only as Paths is consumed; stopping early leaves the remaining
// records untouched.
type Stream struct {
	o       *Orchestrator
	ctx     context.Context
	records []types.ArticleRecord

	mu       sync.Mutex
	metrics  types.Metrics
	failures []Outcome
	err      error
	consumed bool
}

// Paths yields each primary PDF path followed by its supplementary paths.
// A second call yields nothing.
func (s *Stream) Paths() iter.Seq[string] {
	return func(yield func(string) bool) {
		s.mu.Lock()
		if s.consumed {
			s.mu.Unlock()
			return
		}
		s.consumed = true
		s.mu.Unlock()

		last := len(s.records) - 1
		for i, rec := range s.records {
			if err := s.ctx.Err(); err != nil {
				s.setErr(err)
				return
			}

			out, networked := s.o.process(s.ctx, i, rec)
			if out.Err != nil && s.ctx.Err() != nil {
				// Interrupted mid-record: leave it unrecorded so a resume retries it.
				s.setErr(s.ctx.Err())
				return
			}
			s.record(out, networked)

			if out.Err != nil {
				if s.o.opts.FailFast && !out.Skipped {
					s.setErr(&FailFastError{Outcome: out})
					return
				}
			} else {
				if !yield(out.Path) {
					return
				}
				for _, p := range out.Supplements {
					if !yield(p) {
						return
					}
				}
			}

			if networked && i < last {
				if err := s.o.sleep(s.ctx, s.o.EffectiveDelay()); err != nil {
					s.setErr(err)
					return
				}
			}
		}
	}
}

// record updates metrics and failures, then fires hooks.
func (s *Stream) record(out Outcome, networked bool) {
	label := string(out.Record.Publisher)
	s.mu.Lock()
	if networked {
		s.metrics.Attempt(label)
		s.o.collector.attempt(label)
	}
	if out.Err == nil {
		s.metrics.Succeed(label)
		s.o.collector.success(label)
	} else {
		s.failures = append(s.failures, out)
	}
	s.mu.Unlock()

	if out.Err == nil {
		if s.o.hooks.OnSuccess != nil {
			s.o.hooks.OnSuccess(out)
		}
	} else if s.o.hooks.OnFailure != nil {
		s.o.hooks.OnFailure(out)
	}
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the error that stopped the stream early: cancellation or a
// fail-fast failure. Ordinary record failures are reported by Failures.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Metrics returns a snapshot of the per-publisher counters.
func (s *Stream) Metrics() types.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.Clone()
}

// Failures returns the failed records so far, in order.
func (s *Stream) Failures() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.failures...)
}
