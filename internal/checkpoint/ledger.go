// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Ledger appends one tab-separated line per outcome: "<doi>\t<path>" to the
// success log and "<doi>\t<reason>" to the failure log.
type Ledger struct {
	mu      sync.Mutex
	success *os.File
	failure *os.File
}

// OpenLedger opens both ledgers of s for appending.
func (s *Store) OpenLedger() (*Ledger, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	success, err := os.OpenFile(s.SuccessPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening success ledger: %w", err)
	}
	failure, err := os.OpenFile(s.FailurePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		success.Close()
		return nil, fmt.Errorf("opening failure ledger: %w", err)
	}
	return &Ledger{success: success, failure: failure}, nil
}

// Success records a saved primary PDF.
func (l *Ledger) Success(doi, path string) error {
	return l.append(l.success, doi, path)
}

// Failure records a failed or skipped record.
func (l *Ledger) Failure(doi, reason string) error {
	return l.append(l.failure, doi, reason)
}

func (l *Ledger) append(f *os.File, doi, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(f, "%s\t%s\n", field(doi), field(detail))
	return err
}

// field keeps a value on one line and inside its column.
func field(s string) string {
	return strings.NewReplacer("\t", " ", "\r", " ", "\n", "; ").Replace(s)
}

// Close closes both files.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Join(l.success.Close(), l.failure.Close())
}
