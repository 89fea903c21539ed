// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-harvester/internal/harvest"
)

// Tracker records each outcome of a windowed run: a ledger line, then a
// checkpoint rewrite at the outcome's absolute index.
type Tracker struct {
	store  *Store
	ledger *Ledger
	logger zerolog.Logger

	// offset converts stream indices to absolute batch indices.
	offset int
	// positions, when set, maps stream indices to window positions for
	// runs that skip records inside the window.
	positions []int
	total     int
	window    string
}

// NewTracker opens the ledgers of store for a run over [start, end) of a
// batch of total records.
func NewTracker(store *Store, start, end, total int, logger zerolog.Logger) (*Tracker, error) {
	ledger, err := store.OpenLedger()
	if err != nil {
		return nil, err
	}
	return &Tracker{
		store:  store,
		ledger: ledger,
		logger: logger.With().Str("component", "checkpoint").Logger(),
		offset: start,
		total:  total,
		window: Label(start, end),
	}, nil
}

// SetPositions maps stream index i to window position positions[i].
func (t *Tracker) SetPositions(positions []int) {
	t.positions = positions
}

// Hooks returns orchestrator hooks that feed this tracker.
func (t *Tracker) Hooks() harvest.Hooks {
	return harvest.Hooks{
		OnSuccess: func(o harvest.Outcome) {
			if err := t.ledger.Success(o.Record.Identifier(), o.Path); err != nil {
				t.logger.Error().Err(err).Msg("writing success ledger")
			}
			t.save(o.Index)
		},
		OnFailure: func(o harvest.Outcome) {
			if err := t.ledger.Failure(o.Record.Identifier(), o.Reason()); err != nil {
				t.logger.Error().Err(err).Msg("writing failure ledger")
			}
			t.save(o.Index)
		},
	}
}

func (t *Tracker) save(index int) {
	if t.positions != nil && index < len(t.positions) {
		index = t.positions[index]
	}
	cp := checkpointAt(t.offset+index, t.total, t.window)
	if err := t.store.Save(cp); err != nil {
		t.logger.Error().Err(err).Msg("writing checkpoint")
	}
}

// Close closes the ledgers.
func (t *Tracker) Close() error {
	return t.ledger.Close()
}
