package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/releasarr/internal/config"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/repository"
)

// SeedFromConfig creates or updates the sources and library apps declared
// in configuration. Rows not named in configuration are left alone.
func SeedFromConfig(
	ctx context.Context,
	cfg *config.Config,
	sources repository.SourceRepository,
	apps repository.LibraryAppRepository,
	logger *slog.Logger,
) error {
	for _, sc := range cfg.Sources {
		source := &models.Source{
			Name:             strings.TrimSpace(sc.Name),
			IndexerKey:       sc.IndexerKey,
			Enabled:          models.BoolPtr(sc.Enabled),
			PerCategoryLimit: sc.PerCategoryLimit,
			GlobalLimit:      sc.GlobalLimit,
		}
		if err := sources.UpsertByName(ctx, source); err != nil {
			return fmt.Errorf("seeding source %q: %w", sc.Name, err)
		}
		logger.Debug("seeded source",
			slog.String("name", source.Name),
			slog.String("id", source.ID.String()),
		)
	}

	for _, ac := range cfg.Library.Apps {
		kind := models.LibraryKind(strings.ToLower(ac.Kind))
		if kind != models.LibraryKindRadarr && kind != models.LibraryKindSonarr {
			return fmt.Errorf("seeding library app %q: %w", ac.Name, models.ErrInvalidLibraryKind)
		}
		app := &models.LibraryApp{
			Name:    strings.TrimSpace(ac.Name),
			Kind:    kind,
			BaseURL: strings.TrimRight(ac.BaseURL, "/"),
			APIKey:  ac.APIKey,
			Enabled: models.BoolPtr(ac.Enabled),
		}
		if err := apps.UpsertByName(ctx, app); err != nil {
			return fmt.Errorf("seeding library app %q: %w", ac.Name, err)
		}
		logger.Debug("seeded library app",
			slog.String("name", app.Name),
			slog.String("kind", string(app.Kind)),
		)
	}

	if n := len(cfg.Sources) + len(cfg.Library.Apps); n > 0 {
		logger.Info("configuration seeded",
			slog.Int("sources", len(cfg.Sources)),
			slog.Int("library_apps", len(cfg.Library.Apps)),
		)
	}
	return nil
}
