// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-harvester/internal/checkpoint"
	"github.com/pdiddy/paper-harvester/internal/doi"
	"github.com/pdiddy/paper-harvester/internal/harvest"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

// addInputFlags registers the DOI sources shared by download and plan.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("savedrecs", nil, "bibliographic export to scan for DOIs (repeatable)")
	cmd.Flags().StringArray("doi", nil, "DOI or DOI URL to download (repeatable)")
	cmd.Flags().String("doi-file", "", "text file with one DOI per line (# starts a comment)")
}

// addRunFlags registers the batch settings shared by download and plan.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-dir", "", "root directory for downloaded PDFs (default downloads/pdfs)")
	cmd.Flags().Int("max-per-publisher", 0, "download at most N DOIs per publisher (0 = no limit)")
	cmd.Flags().Bool("resume", false, "continue after the last checkpointed DOI")
	cmd.Flags().Int("batch-size", 0, "process the input in windows of N DOIs (0 = whole input)")
	cmd.Flags().Int("batch-index", 0, "zero-based window to process with --batch-size")
	cmd.Flags().String("state-dir", "", "directory for checkpoints and ledgers (default .paper-harvester)")
}

// collectDOIs gathers, normalizes, and deduplicates DOIs from every input.
// Unreadable input files are errors; malformed DOI entries are skipped
// with a warning.
func collectDOIs(cmd *cobra.Command, args []string) ([]string, error) {
	var raw []string

	files, _ := cmd.Flags().GetStringArray("savedrecs")
	for _, path := range files {
		found, err := extractFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("file", path).Int("dois", len(found)).Msg("scanned export")
		raw = append(raw, found...)
	}

	flagged, _ := cmd.Flags().GetStringArray("doi")
	raw = append(raw, flagged...)
	raw = append(raw, args...)

	if path, _ := cmd.Flags().GetString("doi-file"); path != "" {
		lines, err := readDOIFile(path)
		if err != nil {
			return nil, err
		}
		raw = append(raw, lines...)
	}

	dois, errs := doi.NormalizeAll(raw)
	for _, err := range errs {
		logger.Warn().Err(err).Msg("skipping DOI entry")
	}
	return dois, nil
}

func extractFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening export: %w", err)
	}
	defer f.Close()
	found, err := doi.ExtractReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return found, nil
}

func readDOIFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOI file: %w", err)
	}
	defer f.Close()
	return readDOILines(f)
}

func readDOILines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading DOI file: %w", err)
	}
	return lines, nil
}

// batch is a resolved run: the DOI window, the routed records, and where
// progress is recorded.
type batch struct {
	cfg   types.HarvestConfig
	dois  []string
	store *checkpoint.Store
	start int
	end   int

	records []types.ArticleRecord
	// positions maps each record to its offset inside the window.
	positions []int
	registry  *harvest.Registry
	plan      *harvest.Plan
}

// prepareBatch resolves inputs, flags, the resume window, and the provider
// registry. It performs no network I/O.
func prepareBatch(cmd *cobra.Command, args []string) (*batch, error) {
	dois, err := collectDOIs(cmd, args)
	if err != nil {
		return nil, err
	}
	if len(dois) == 0 {
		return nil, fmt.Errorf("no valid DOIs found in the inputs")
	}

	cfg := baseConfig()
	if v, _ := cmd.Flags().GetString("output-dir"); v != "" {
		cfg.OutputDir = v
	}
	cfg.MaxPerPublisher, _ = cmd.Flags().GetInt("max-per-publisher")
	if cfg.MaxPerPublisher < 0 {
		return nil, fmt.Errorf("--max-per-publisher must not be negative")
	}

	resume, _ := cmd.Flags().GetBool("resume")
	size, _ := cmd.Flags().GetInt("batch-size")
	index, _ := cmd.Flags().GetInt("batch-index")
	window := checkpoint.Window{Resume: resume, BatchSize: size, BatchIndex: index}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	stateDir, _ := cmd.Flags().GetString("state-dir")
	if stateDir == "" {
		stateDir = viper.GetString("state_dir")
	}
	store := checkpoint.NewStore(stateDir, dois)
	var cp *types.Checkpoint
	if resume {
		cp = store.LoadForResume(logger)
	}
	start, end := window.Bounds(len(dois), cp)

	b := &batch{cfg: cfg, dois: dois, store: store, start: start, end: end}
	b.records, b.positions = harvest.LimitPerPublisherIndexed(doi.Records(dois[start:end]), cfg.MaxPerPublisher)
	b.registry = harvest.Build(cfg, harvest.Labels(b.records), logger)
	b.plan = harvest.BuildPlan(b.records, b.registry)
	return b, nil
}

// printPlan writes the human-readable routing summary.
func printPlan(w io.Writer, b *batch) {
	fmt.Fprintf(w, "DOIs: %d total, window %s, %d after per-publisher limit\n",
		len(b.dois), checkpoint.Label(b.start, b.end), b.plan.Total)
	fmt.Fprintf(w, "Routable: %s\n", orNone(b.plan.Summary()))
	for _, ex := range b.plan.Examples {
		fmt.Fprintf(w, "  e.g. %s\n", ex)
	}
	labels := make([]string, 0, len(b.plan.Disabled))
	for label := range b.plan.Disabled {
		labels = append(labels, string(label))
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(w, "Disabled %s: %s\n", label, b.plan.Disabled[types.Publisher(label)])
	}
	if n := len(b.plan.Dropped); n > 0 {
		fmt.Fprintf(w, "Dropped: %d DOIs without a configured provider\n", n)
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
