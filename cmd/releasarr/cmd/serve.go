package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	internalhttp "github.com/jmylchreest/releasarr/internal/http"
	"github.com/jmylchreest/releasarr/internal/http/handlers"
	"github.com/jmylchreest/releasarr/internal/version"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the releasarr server",
	Long: `Start the releasarr HTTP server and scheduler.

The server provides:
- REST API for release ingestion, retention and purging
- Radarr/Sonarr library sync and per-release match status
- Health check endpoint
- OpenAPI documentation at /docs

Retention and library sync also run on their configured cron schedules.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	overrideString(cmd.Flags(), "host", &cfg.Server.Host)
	overrideInt(cmd.Flags(), "port", &cfg.Server.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger("serve")
	log.Info("starting releasarr", slog.String("version", version.Short()))

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("closing database", slog.String("error", err.Error()))
		}
	}()

	sched, err := newScheduler(a, logger("tasks"))
	if err != nil {
		return fmt.Errorf("registering tasks: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	// Prime library snapshots without waiting for the first scheduled run.
	if len(cfg.Library.Apps) > 0 {
		if err := sched.RunNow(ctx, taskLibrarySync); err != nil {
			log.Warn("initial library sync not started", slog.String("error", err.Error()))
		}
	}

	server := internalhttp.NewServer(cfg.Server, slog.Default(), version.Version)
	server.Register(
		handlers.NewHealthHandler(version.Version).
			WithDB(a.db).
			WithBreakers(a.arr).
			WithTasks(sched).
			WithIngestion(a.releases.States()),
		handlers.NewReleaseHandler(a.releases),
		handlers.NewSourceHandler(a.releases),
		handlers.NewLibraryHandler(a.library),
	)

	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	log.Info("releasarr stopped")
	return nil
}
