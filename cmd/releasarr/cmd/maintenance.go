package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/jmylchreest/releasarr/internal/database"
	"github.com/jmylchreest/releasarr/internal/database/migrations"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/retention"
	"github.com/jmylchreest/releasarr/internal/storage"
	"github.com/spf13/cobra"
)

var (
	retentionSource string
	syncApp         string
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Retention commands",
}

var retentionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Enforce retention caps now",
	Long: `Evict the oldest releases of each source above its per-category and
global caps, then remove poster files nothing references.

Use --source to limit the pass to one source.`,
	RunE: runRetention,
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Radarr/Sonarr library commands",
}

var librarySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync library snapshots now",
	Long: `Fetch the catalog of every enabled Radarr and Sonarr app and replace
its stored snapshot. An app that cannot be reached keeps its previous
snapshot.

Use --app to sync a single app.`,
	RunE: runLibrarySync,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending database migrations while holding the maintenance lock
exclusively. Fails if ingestion or a backup holds the lock.`,
	RunE: runMigrate(func(cmd *cobra.Command, m *migrations.Migrator) error {
		return m.Up(cmd.Context())
	}),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: runMigrate(func(cmd *cobra.Command, m *migrations.Migrator) error {
		return m.Down(cmd.Context())
	}),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: runMigrate(func(cmd *cobra.Command, m *migrations.Migrator) error {
		statuses, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tAPPLIED\tAPPLIED AT\tDESCRIPTION")
		for _, s := range statuses {
			appliedAt := "-"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", s.Version, s.Applied, appliedAt, s.Description)
		}
		return tw.Flush()
	}),
}

func init() {
	retentionRunCmd.Flags().StringVar(&retentionSource, "source", "", "source ID (ULID) or name to enforce")
	retentionCmd.AddCommand(retentionRunCmd)
	rootCmd.AddCommand(retentionCmd)

	librarySyncCmd.Flags().StringVar(&syncApp, "app", "", "library app ID (ULID) to sync")
	libraryCmd.AddCommand(librarySyncCmd)
	rootCmd.AddCommand(libraryCmd)

	migrateCmd.AddCommand(migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runRetention(cmd *cobra.Command, _ []string) error {
	log := logger("retention")
	a, err := newApp(cmd.Context(), appConfig, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	var results []*retention.Result
	if retentionSource != "" {
		source, err := a.releases.ResolveSource(cmd.Context(), retentionSource)
		if err != nil {
			return err
		}
		result, err := a.releases.EnforceRetention(cmd.Context(), source.ID)
		if err != nil {
			return err
		}
		results = append(results, result)
	} else {
		results, err = a.releases.EnforceAll(cmd.Context())
		if err != nil {
			return err
		}
	}

	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d releases, %d posters orphaned\n",
			r.SourceID, r.TotalBefore, r.TotalAfter, len(r.OrphanedPosters))
	}

	removed, err := a.releases.SweepPosters(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweeping posters: %w", err)
	}
	log.Info("retention finished", slog.Int("sources", len(results)), slog.Int("posters_swept", len(removed)))
	return nil
}

func runLibrarySync(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), appConfig, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	if syncApp != "" {
		id, err := models.ParseULID(syncApp)
		if err != nil {
			return fmt.Errorf("invalid --app: %w", err)
		}
		return a.library.SyncApp(cmd.Context(), id)
	}
	if err := a.library.SyncAll(cmd.Context()); err != nil {
		return err
	}

	statuses, err := a.library.Status(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "APP\tKIND\tMEDIA\tITEMS\tERROR")
	for _, st := range statuses {
		for _, s := range st.Syncs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", st.App.Name, st.App.Kind, s.MediaType, s.ItemCount, s.LastError)
		}
	}
	return tw.Flush()
}

// runMigrate opens the database without migrating it and runs fn under the
// exclusive maintenance lock.
func runMigrate(fn func(cmd *cobra.Command, m *migrations.Migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		log := logger("migrate")

		lock, err := storage.NewMaintenanceLock(appConfig.Storage.LockPath())
		if err != nil {
			return err
		}
		unlock, err := lock.TryExclusive()
		if err != nil {
			return fmt.Errorf("migrations need exclusive access: %w", err)
		}
		defer unlock()

		db, err := database.New(appConfig.Database, slog.Default())
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := fn(cmd, migrations.NewMigrator(db.DB, log)); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		return nil
	}
}
