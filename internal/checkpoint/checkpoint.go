// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint persists batch progress so interrupted or sliced runs
// can resume where they stopped. State for one input batch lives in its own
// directory: a YAML checkpoint plus append-only success and failure ledgers.
package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-harvester/internal/httputil"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

const (
	checkpointFile = "checkpoint.yaml"
	successFile    = "success.log"
	failureFile    = "failures.log"

	keyLen = 16
)

// Key identifies a batch by the hash of its ordered DOIs.
func Key(dois []string) string {
	sum := sha256.Sum256([]byte(strings.Join(dois, "\n")))
	return hex.EncodeToString(sum[:])[:keyLen]
}

// Store is the state directory of one batch.
type Store struct {
	Dir string
}

// NewStore returns the store for dois under stateDir.
func NewStore(stateDir string, dois []string) *Store {
	return &Store{Dir: filepath.Join(stateDir, Key(dois))}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string { return filepath.Join(s.Dir, checkpointFile) }

// SuccessPath returns the success ledger path.
func (s *Store) SuccessPath() string { return filepath.Join(s.Dir, successFile) }

// FailurePath returns the failure ledger path.
func (s *Store) FailurePath() string { return filepath.Join(s.Dir, failureFile) }

// Load reads the checkpoint. A missing file returns an error matching
// fs.ErrNotExist.
func (s *Store) Load() (*types.Checkpoint, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return nil, err
	}
	var cp types.Checkpoint
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.Path(), err)
	}
	if cp.LastCompletedIndex < 0 {
		return nil, fmt.Errorf("parsing %s: negative last_completed_index %d", s.Path(), cp.LastCompletedIndex)
	}
	return &cp, nil
}

// LoadForResume returns the checkpoint, or nil when there is none or it
// cannot be read. An unreadable checkpoint is logged, not returned, so the
// run restarts from the beginning instead of failing.
func (s *Store) LoadForResume(logger zerolog.Logger) *types.Checkpoint {
	cp, err := s.Load()
	switch {
	case err == nil:
		return cp
	case errors.Is(err, fs.ErrNotExist):
		logger.Info().Str("path", s.Path()).Msg("no checkpoint; starting from the beginning")
	default:
		logger.Warn().Err(err).Msg("checkpoint unreadable; starting from index 0")
	}
	return nil
}

// Save writes cp through a temp file and rename.
func (s *Store) Save(cp types.Checkpoint) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := yaml.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := httputil.WriteAtomic(bytes.NewReader(data), s.Path()); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

// Window selects a slice of the batch.
type Window struct {
	// Resume starts after the checkpoint's last completed index.
	Resume bool

	// BatchSize is the window length; 0 selects the whole batch.
	BatchSize int

	// BatchIndex is the zero-based window number.
	BatchIndex int
}

// Bounds returns the half-open range [start, end) to process out of total
// records. The window fixes the range; with Resume and a checkpoint, the
// start moves to the record after the last completed one, never before the
// window start. A resumed start past the window end yields start == end.
func (w Window) Bounds(total int, cp *types.Checkpoint) (start, end int) {
	start, end = 0, total
	if w.BatchSize > 0 {
		start = min(w.BatchIndex*w.BatchSize, total)
		end = min(start+w.BatchSize, total)
	}
	if w.Resume && cp != nil {
		start = max(start, cp.LastCompletedIndex+1)
		start = min(start, end)
	}
	return start, end
}

// Label renders a range as "start-end" for the checkpoint's run window.
func Label(start, end int) string {
	return fmt.Sprintf("%d-%d", start, end)
}

// Validate rejects negative window settings.
func (w Window) Validate() error {
	if w.BatchSize < 0 {
		return fmt.Errorf("batch size must not be negative, got %d", w.BatchSize)
	}
	if w.BatchIndex < 0 {
		return fmt.Errorf("batch index must not be negative, got %d", w.BatchIndex)
	}
	if w.BatchIndex > 0 && w.BatchSize == 0 {
		return errors.New("batch index requires a batch size")
	}
	return nil
}

// stamp returns the current time for checkpoints; tests replace it.
var stamp = func() time.Time { return time.Now().UTC() }

func checkpointAt(index, total int, window string) types.Checkpoint {
	return types.Checkpoint{
		LastCompletedIndex: index,
		Timestamp:          stamp(),
		TotalDOIs:          total,
		RunWindow:          window,
	}
}
