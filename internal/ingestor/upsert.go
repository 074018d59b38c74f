package ingestor

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Columns replaced by every re-poll, even with an empty value.
var overwriteColumns = []string{"title", "link", "published_at", "updated_at"}

// Columns only replaced when the incoming value is not NULL.
var coalesceColumns = []string{
	"size_bytes", "seeders", "leechers", "grabs", "info_hash", "download_url",
	"category_ids", "std_category_id", "spec_category_id",
	"title_clean", "year", "season", "episode", "resolution", "codec", "release_group", "media_type",
	"tmdb_id", "tvdb_id",
}

// releaseConflict is the ON CONFLICT clause of the release upsert. entity_id
// and poster_file are never touched by ingestion.
func releaseConflict() clause.OnConflict {
	set := clause.AssignmentColumns(overwriteColumns)
	for _, col := range coalesceColumns {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(fmt.Sprintf("COALESCE(excluded.%s, releases.%s)", col, col)),
		})
	}
	// A resolver fallback to Other never downgrades a known category.
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "category_key"},
		Value: gorm.Expr("CASE WHEN excluded.category_key = ? THEN releases.category_key ELSE excluded.category_key END",
			string(category.Other)),
	})

	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "guid"}},
		DoUpdates: set,
	}
}

// upsert writes rows with merge-preserving-non-null semantics.
func (e *Engine) upsert(tx *gorm.DB, rows []models.Release) error {
	if tx.Dialector.Name() == "mysql" {
		return upsertLocked(tx, rows)
	}
	if err := tx.Clauses(releaseConflict()).CreateInBatches(&rows, e.insertLen).Error; err != nil {
		return fmt.Errorf("upserting releases: %w", err)
	}
	return nil
}

// upsertLocked is the read-merge-write path for dialects without
// INSERT .. ON CONFLICT (MySQL). Rows are locked in guid order so two
// batches touching the same guids cannot deadlock.
func upsertLocked(tx *gorm.DB, rows []models.Release) error {
	ordered := slices.Clone(rows)
	slices.SortFunc(ordered, func(a, b models.Release) int { return strings.Compare(a.GUID, b.GUID) })

	for i := range ordered {
		incoming := &ordered[i]

		var stored models.Release
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("source_id = ? AND guid = ?", incoming.SourceID, incoming.GUID).
			Take(&stored).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(incoming).Error; err != nil {
				return fmt.Errorf("inserting release %q: %w", incoming.GUID, err)
			}
		case err != nil:
			return fmt.Errorf("locking release %q: %w", incoming.GUID, err)
		default:
			mergeRelease(&stored, incoming)
			if err := tx.Save(&stored).Error; err != nil {
				return fmt.Errorf("updating release %q: %w", incoming.GUID, err)
			}
		}
	}
	return nil
}

// mergeRelease applies in over dst using the same rules as releaseConflict.
func mergeRelease(dst, in *models.Release) {
	dst.Title = in.Title
	dst.Link = in.Link
	dst.PublishedAt = in.PublishedAt

	keep(&dst.SizeBytes, in.SizeBytes)
	keep(&dst.Seeders, in.Seeders)
	keep(&dst.Leechers, in.Leechers)
	keep(&dst.Grabs, in.Grabs)
	keep(&dst.InfoHash, in.InfoHash)
	keep(&dst.DownloadURL, in.DownloadURL)
	if in.CategoryIDs != nil {
		dst.CategoryIDs = in.CategoryIDs
	}
	keep(&dst.StdCategoryID, in.StdCategoryID)
	keep(&dst.SpecCategoryID, in.SpecCategoryID)
	keep(&dst.TitleClean, in.TitleClean)
	keep(&dst.Year, in.Year)
	keep(&dst.Season, in.Season)
	keep(&dst.Episode, in.Episode)
	keep(&dst.Resolution, in.Resolution)
	keep(&dst.Codec, in.Codec)
	keep(&dst.ReleaseGroup, in.ReleaseGroup)
	keep(&dst.MediaType, in.MediaType)
	keep(&dst.TmdbID, in.TmdbID)
	keep(&dst.TvdbID, in.TvdbID)

	if in.CategoryKey != string(category.Other) {
		dst.CategoryKey = in.CategoryKey
	}
}

func keep[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}
