package ingestor

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/titlenorm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// entityKey is the identity of a MediaEntity.
type entityKey struct {
	category string
	titleKey string
	year     int
}

func compareEntityKeys(a, b entityKey) int {
	return cmp.Or(
		cmp.Compare(a.category, b.category),
		cmp.Compare(a.titleKey, b.titleKey),
		cmp.Compare(a.year, b.year),
	)
}

type entityGroup struct {
	title      string
	tmdbID     *int
	tvdbID     *int
	releaseIDs []models.ULID
}

// bindEntities links every unbound, categorised release of the batch to its
// MediaEntity, creating entities as needed. Creation is an insert that
// ignores conflicts followed by a select, so concurrent batches from other
// sources converge on the same row.
func bindEntities(tx *gorm.DB, sourceID models.ULID, guids []string) (bound, created int, err error) {
	groups := make(map[entityKey]*entityGroup)

	for chunk := range slices.Chunk(guids, guidChunkSize) {
		var candidates []models.Release
		err := tx.Select("id", "category_key", "title_clean", "year", "tmdb_id", "tvdb_id").
			Where("source_id = ? AND guid IN ?", sourceID, chunk).
			Where("entity_id IS NULL AND category_key <> ?", string(category.Other)).
			Where("title_clean IS NOT NULL AND title_clean <> ''").
			Find(&candidates).Error
		if err != nil {
			return 0, 0, fmt.Errorf("loading unbound releases: %w", err)
		}

		for _, rel := range candidates {
			key := entityKey{category: rel.CategoryKey, titleKey: titlenorm.NormalizeStrict(*rel.TitleClean)}
			if key.titleKey == "" {
				continue
			}
			if rel.Year != nil {
				key.year = *rel.Year
			}
			g, ok := groups[key]
			if !ok {
				g = &entityGroup{title: *rel.TitleClean}
				groups[key] = g
			}
			if g.tmdbID == nil {
				g.tmdbID = rel.TmdbID
			}
			if g.tvdbID == nil {
				g.tvdbID = rel.TvdbID
			}
			g.releaseIDs = append(g.releaseIDs, rel.ID)
		}
	}

	// Fixed order keeps concurrent binders from deadlocking on the index.
	keys := make([]entityKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareEntityKeys)

	for _, key := range keys {
		g := groups[key]

		entity := models.MediaEntity{
			CategoryKey: key.category,
			TitleKey:    key.titleKey,
			Year:        key.year,
			Title:       g.title,
			TmdbID:      g.tmdbID,
			TvdbID:      g.tvdbID,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entity)
		if res.Error != nil {
			return 0, 0, fmt.Errorf("creating media entity %q: %w", key.titleKey, res.Error)
		}
		created += int(res.RowsAffected)

		var stored models.MediaEntity
		err := tx.Where("category_key = ? AND title_key = ? AND year = ?", key.category, key.titleKey, key.year).
			Take(&stored).Error
		if err != nil {
			return 0, 0, fmt.Errorf("loading media entity %q: %w", key.titleKey, err)
		}

		for chunk := range slices.Chunk(g.releaseIDs, guidChunkSize) {
			res := tx.Model(&models.Release{}).Where("id IN ?", chunk).Update("entity_id", stored.ID)
			if res.Error != nil {
				return 0, 0, fmt.Errorf("binding releases to entity: %w", res.Error)
			}
			bound += int(res.RowsAffected)
		}

		if stored.TmdbID == nil && g.tmdbID != nil {
			if err := tx.Model(&stored).Update("tmdb_id", *g.tmdbID).Error; err != nil {
				return 0, 0, fmt.Errorf("copying tmdb id to entity: %w", err)
			}
		}
		if stored.TvdbID == nil && g.tvdbID != nil {
			if err := tx.Model(&stored).Update("tvdb_id", *g.tvdbID).Error; err != nil {
				return 0, 0, fmt.Errorf("copying tvdb id to entity: %w", err)
			}
		}
	}

	return bound, created, nil
}
