// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvester/internal/checkpoint"
	"github.com/pdiddy/paper-harvester/internal/harvest"
	"github.com/pdiddy/paper-harvester/internal/supplement"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

var downloadCmd = &cobra.Command{
	Use:   "download [dois...]",
	Short: "Download article PDFs for a list of DOIs",
	Long: `Download collects DOIs from exports, flags, and a DOI file, routes each
to its publisher's provider chain, and saves one directory per DOI under
the output directory. Existing files are kept unless --overwrite is set.

Every processed DOI is appended to the success or failure ledger in the
state directory and advances the checkpoint, so an interrupted run can
continue with --resume.`,
	RunE: runDownload,
}

func init() {
	addInputFlags(downloadCmd)
	addRunFlags(downloadCmd)
	downloadCmd.Flags().Duration("delay", 0, "pause between DOIs (default 1.5s, minimum 1s)")
	downloadCmd.Flags().Bool("overwrite", false, "re-download files that already exist")
	downloadCmd.Flags().Bool("dry-run", false, "print the routing plan without downloading")
	downloadCmd.Flags().Bool("fail-fast", false, "stop at the first DOI that fails")
	downloadCmd.Flags().Bool("no-supplements", false, "skip supplementary file discovery")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	b, err := prepareBatch(cmd, args)
	if err != nil {
		return err
	}
	cfg := &b.cfg
	if d, _ := cmd.Flags().GetDuration("delay"); d > 0 {
		cfg.Delay = d
	}
	cfg.Overwrite, _ = cmd.Flags().GetBool("overwrite")
	cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
	cfg.FailFast, _ = cmd.Flags().GetBool("fail-fast")
	if skip, _ := cmd.Flags().GetBool("no-supplements"); skip {
		cfg.Supplements = false
	}

	out := cmd.OutOrStdout()
	b.plan.Log(logger)
	if cfg.DryRun {
		printPlan(out, b)
		return nil
	}
	if b.start >= b.end {
		fmt.Fprintf(out, "Nothing to do: window %s is already complete.\n", checkpoint.Label(b.start, b.end))
		return nil
	}
	if len(b.plan.Routable) == 0 {
		printPlan(out, b)
		return fmt.Errorf("no provider is configured for any input DOI")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, out, b)
}

// execute runs the batch and prints the per-publisher summary. The returned
// error is non-nil only for fail-fast or cancellation.
func execute(ctx context.Context, out io.Writer, b *batch) error {
	tracker, err := checkpoint.NewTracker(b.store, b.start, b.end, len(b.dois), logger)
	if err != nil {
		return err
	}
	defer tracker.Close()
	tracker.SetPositions(b.positions)

	options := []harvest.Option{harvest.WithHooks(tracker.Hooks())}
	if b.cfg.Supplements {
		options = append(options, harvest.WithSupplements(supplement.New(b.cfg.MaxSupplements, logger)))
	}
	o := harvest.New(b.registry, harvest.OptionsFromConfig(b.cfg), logger, options...)

	fmt.Fprintf(out, "Downloading %d DOIs (window %s, delay %s)\n",
		len(b.records), checkpoint.Label(b.start, b.end), o.EffectiveDelay())
	began := time.Now()
	stream := o.Run(ctx, b.records)
	for path := range stream.Paths() {
		fmt.Fprintf(out, "  saved %s\n", path)
	}

	printSummary(out, stream.Metrics(), len(stream.Failures()), b.store.FailurePath(), time.Since(began))
	return stream.Err()
}

// printSummary writes one success-rate line per publisher and where the
// failure ledger lives.
func printSummary(w io.Writer, m types.Metrics, failures int, ledger string, elapsed time.Duration) {
	fmt.Fprintln(w, "\nSummary")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, label := range m.Labels() {
		s := m[label]
		fmt.Fprintf(w, "  %s: %d/%d PDFs succeeded (%.1f%%)\n", label, s.Succeeded, s.Attempted, s.Rate())
	}
	fmt.Fprintf(w, "Elapsed: %s\n", elapsed.Round(time.Second))
	if failures > 0 {
		fmt.Fprintf(w, "%d DOIs failed; see %s\n", failures, ledger)
	}
}
