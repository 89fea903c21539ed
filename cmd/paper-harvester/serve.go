// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-harvester/internal/harvest"
	"github.com/pdiddy/paper-harvester/internal/jobs"
	"github.com/pdiddy/paper-harvester/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP job service",
	Long: `Serve exposes batch downloads over HTTP. Jobs run in the background and
their summaries are kept in a SQLite database; jobs writing to the same
output directory run one at a time. Credentials can be set at runtime and
are only ever echoed masked.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8080)")
	serveCmd.Flags().String("db", "", "job database path (default <state-dir>/jobs.db)")
	serveCmd.Flags().String("state-dir", "", "directory for checkpoints and ledgers (default .paper-harvester)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	stateDir, _ := cmd.Flags().GetString("state-dir")
	if stateDir == "" {
		stateDir = viper.GetString("state_dir")
	}
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = filepath.Join(stateDir, "jobs.db")
	}

	store, err := jobs.OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := harvest.NewCollector(reg)

	creds := &jobs.CredentialStore{}
	runner := jobs.NewRunner(store, creds, baseConfig(), stateDir, logger, jobs.WithCollector(collector))
	defer runner.Shutdown()

	cfg := server.DefaultConfig()
	if v := viper.GetString("server.address"); v != "" {
		cfg.Address = v
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Address = v
	}
	srv := server.New(cfg, runner, store, creds, reg, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
