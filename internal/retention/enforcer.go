// Package retention evicts releases beyond per-category and per-source caps.
package retention

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/observability"
	"gorm.io/gorm"
)

const idChunkSize = 500

// Policy holds the two caps applied to a source. A limit <= 0 disables
// its pass.
type Policy struct {
	PerCategory int `json:"per_category"`
	Global      int `json:"global"`
}

// Result reports one enforcement run. Posters listed in OrphanedPosters are
// no longer referenced by any release or entity; deleting the files is up
// to the caller.
type Result struct {
	SourceID        models.ULID      `json:"source_id"`
	Before          map[string]int64 `json:"before"`
	After           map[string]int64 `json:"after"`
	TotalBefore     int64            `json:"total_before"`
	TotalAfter      int64            `json:"total_after"`
	EvictedIDs      []models.ULID    `json:"evicted_ids"`
	OrphanedPosters []string         `json:"orphaned_posters"`
}

// PurgeResult reports an explicit purge.
type PurgeResult struct {
	Deleted         int64    `json:"deleted"`
	OrphanedPosters []string `json:"orphaned_posters"`
}

// Enforcer applies retention policies. It never touches the filesystem.
type Enforcer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewEnforcer creates a retention enforcer.
func NewEnforcer(db *gorm.DB) *Enforcer {
	return &Enforcer{db: db, logger: slog.Default()}
}

// WithLogger sets the logger.
func (e *Enforcer) WithLogger(logger *slog.Logger) *Enforcer {
	e.logger = observability.WithComponent(logger, "retention")
	return e
}

// candidate is the slice of a release needed to rank it.
type candidate struct {
	ID          models.ULID
	CategoryKey string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

func (c candidate) rankTime() time.Time {
	if c.PublishedAt != nil {
		return *c.PublishedAt
	}
	return c.CreatedAt
}

// byRecency orders most recent first, ties broken by id descending.
func byRecency(a, b candidate) int {
	return cmp.Or(
		b.rankTime().Compare(a.rankTime()),
		b.ID.Compare(a.ID),
	)
}

// Enforce applies policy to one source: the per-category pass over every
// fixed category (Other is exempt), then the global pass. Both run in one
// transaction and a release selected by both is evicted once.
func (e *Enforcer) Enforce(ctx context.Context, sourceID models.ULID, policy Policy) (*Result, error) {
	if sourceID.IsZero() {
		return nil, models.ErrSourceRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enforcing retention: %w", err)
	}

	result := &Result{SourceID: sourceID}

	err := e.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		var rows []candidate
		err := tx.Model(&models.Release{}).
			Select("id", "category_key", "published_at", "created_at").
			Where("source_id = ?", sourceID).
			Scan(&rows).Error
		if err != nil {
			return fmt.Errorf("loading releases: %w", err)
		}
		slices.SortFunc(rows, byRecency)

		result.Before = countByCategory(rows)
		result.TotalBefore = int64(len(rows))

		evict := selectEvictions(rows, policy)
		survivors := make([]candidate, 0, len(rows))
		for _, r := range rows {
			if _, gone := evict[r.ID]; !gone {
				survivors = append(survivors, r)
			}
		}
		result.After = countByCategory(survivors)
		result.TotalAfter = int64(len(survivors))

		if len(evict) == 0 {
			return nil
		}
		ids := make([]models.ULID, 0, len(evict))
		for id := range evict {
			ids = append(ids, id)
		}
		slices.SortFunc(ids, models.ULID.Compare)
		result.EvictedIDs = ids

		_, orphans, err := deleteReleases(tx, ids)
		if err != nil {
			return err
		}
		result.OrphanedPosters = orphans
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enforcing retention for source %s: %w", sourceID, err)
	}

	if len(result.EvictedIDs) > 0 {
		e.logger.Info("retention evicted releases",
			slog.String("source_id", sourceID.String()),
			slog.Int("evicted", len(result.EvictedIDs)),
			slog.Int64("before", result.TotalBefore),
			slog.Int64("after", result.TotalAfter),
			slog.Int("orphaned_posters", len(result.OrphanedPosters)),
		)
	} else {
		e.logger.Debug("retention within limits",
			slog.String("source_id", sourceID.String()),
			slog.Int64("total", result.TotalBefore),
		)
	}
	return result, nil
}

// selectEvictions returns the ids beyond either cap. rows must be sorted
// by recency.
func selectEvictions(rows []candidate, policy Policy) map[models.ULID]struct{} {
	evict := make(map[models.ULID]struct{})

	if policy.PerCategory > 0 {
		fixed := make(map[string]bool)
		for _, k := range category.Fixed() {
			fixed[string(k)] = true
		}
		seen := make(map[string]int)
		for _, r := range rows {
			if !fixed[r.CategoryKey] {
				continue
			}
			seen[r.CategoryKey]++
			if seen[r.CategoryKey] > policy.PerCategory {
				evict[r.ID] = struct{}{}
			}
		}
	}

	if policy.Global > 0 && len(rows) > policy.Global {
		for _, r := range rows[policy.Global:] {
			evict[r.ID] = struct{}{}
		}
	}
	return evict
}

func countByCategory(rows []candidate) map[string]int64 {
	counts := make(map[string]int64)
	for _, r := range rows {
		counts[r.CategoryKey]++
	}
	return counts
}

// Purge deletes the given releases with the same cascade as Enforce.
// Unknown ids are ignored, so repeating a purge is harmless.
func (e *Enforcer) Purge(ctx context.Context, ids []models.ULID) (*PurgeResult, error) {
	if len(ids) == 0 {
		return &PurgeResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("purging releases: %w", err)
	}

	result := &PurgeResult{}
	err := e.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		deleted, orphans, err := deleteReleases(tx, ids)
		if err != nil {
			return err
		}
		result.Deleted = deleted
		result.OrphanedPosters = orphans
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("purging releases: %w", err)
	}

	e.logger.Info("purged releases",
		slog.Int("requested", len(ids)),
		slog.Int64("deleted", result.Deleted),
		slog.Int("orphaned_posters", len(result.OrphanedPosters)),
	)
	return result, nil
}

// deleteReleases removes match statuses then releases, and returns the
// poster files left without any reference.
func deleteReleases(tx *gorm.DB, ids []models.ULID) (int64, []string, error) {
	posterSet := make(map[string]struct{})
	for chunk := range slices.Chunk(ids, idChunkSize) {
		var posters []string
		err := tx.Model(&models.Release{}).
			Where("id IN ? AND poster_file IS NOT NULL AND poster_file <> ''", chunk).
			Distinct().Pluck("poster_file", &posters).Error
		if err != nil {
			return 0, nil, fmt.Errorf("collecting posters: %w", err)
		}
		for _, p := range posters {
			posterSet[p] = struct{}{}
		}
	}

	var deleted int64
	for chunk := range slices.Chunk(ids, idChunkSize) {
		if err := tx.Where("release_id IN ?", chunk).Delete(&models.MatchStatus{}).Error; err != nil {
			return 0, nil, fmt.Errorf("deleting match statuses: %w", err)
		}
		res := tx.Where("id IN ?", chunk).Delete(&models.Release{})
		if res.Error != nil {
			return 0, nil, fmt.Errorf("deleting releases: %w", res.Error)
		}
		deleted += res.RowsAffected
	}

	if len(posterSet) == 0 {
		return deleted, nil, nil
	}

	posters := make([]string, 0, len(posterSet))
	for p := range posterSet {
		posters = append(posters, p)
	}
	slices.Sort(posters)

	referenced := make(map[string]struct{})
	for chunk := range slices.Chunk(posters, idChunkSize) {
		for _, model := range []any{&models.Release{}, &models.MediaEntity{}} {
			var used []string
			if err := tx.Model(model).Where("poster_file IN ?", chunk).Distinct().Pluck("poster_file", &used).Error; err != nil {
				return 0, nil, fmt.Errorf("checking poster references: %w", err)
			}
			for _, p := range used {
				referenced[p] = struct{}{}
			}
		}
	}

	orphans := slices.DeleteFunc(posters, func(p string) bool {
		_, ok := referenced[p]
		return ok
	})
	return deleted, orphans, nil
}
