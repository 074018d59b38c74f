package ingestor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/observability"
	"gorm.io/gorm"
)

// guidChunkSize bounds IN lists so SQLite stays under its variable limit.
const guidChunkSize = 500

// Engine ingests feed batches. Each batch is written in one transaction.
type Engine struct {
	db        *gorm.DB
	parser    TitleParser
	guids     GUIDPolicy
	maxBatch  int
	insertLen int
	logger    *slog.Logger
}

// NewEngine creates an ingestion engine.
func NewEngine(db *gorm.DB, parser TitleParser) *Engine {
	return &Engine{
		db:        db,
		parser:    parser,
		guids:     DefaultGUIDPolicy(),
		insertLen: 100,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = observability.WithComponent(logger, "ingestor")
	return e
}

// WithGUIDPolicy sets the bucket widths of the composite guid fallback.
func (e *Engine) WithGUIDPolicy(policy GUIDPolicy) *Engine {
	e.guids = policy
	return e
}

// WithMaxBatchSize rejects batches larger than n items. Zero disables the limit.
func (e *Engine) WithMaxBatchSize(n int) *Engine {
	e.maxBatch = n
	return e
}

// IngestBatch stores a batch for one source and binds its releases to
// media entities. The whole batch commits or rolls back as one unit.
//
// Cancellation is honoured until the transaction starts; once writing has
// begun the batch runs to completion.
func (e *Engine) IngestBatch(ctx context.Context, batch Batch) (*Result, error) {
	if batch.Source == nil || batch.Source.ID.IsZero() {
		return nil, models.ErrSourceRequired
	}
	if e.maxBatch > 0 && len(batch.Items) > e.maxBatch {
		return nil, models.ErrValidation{
			Field:   "items",
			Message: fmt.Sprintf("batch of %d items exceeds the limit of %d", len(batch.Items), e.maxBatch),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingesting batch: %w", err)
	}

	start := time.Now()
	sourceID := batch.Source.ID
	rows := e.prepare(batch)

	result := &Result{
		SourceID: sourceID,
		Received: len(batch.Items),
		Unique:   len(rows),
	}
	if len(rows) == 0 {
		return result, nil
	}

	guids := make([]string, len(rows))
	for i := range rows {
		guids[i] = rows[i].GUID
	}

	err := e.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		before, err := storedGUIDs(tx, sourceID, guids)
		if err != nil {
			return err
		}

		if err := e.upsert(tx, rows); err != nil {
			return err
		}

		after, err := storedGUIDs(tx, sourceID, guids)
		if err != nil {
			return err
		}
		for _, guid := range guids {
			if _, seen := before[guid]; seen {
				result.Updated++
				continue
			}
			id, ok := after[guid]
			if !ok {
				return fmt.Errorf("release %q missing after upsert", guid)
			}
			result.New++
			result.NewReleaseIDs = append(result.NewReleaseIDs, id)
		}

		bound, created, err := bindEntities(tx, sourceID, guids)
		if err != nil {
			return err
		}
		result.Bound = bound
		result.EntitiesCreated = created
		return nil
	})
	if err != nil {
		e.logger.Error("ingestion batch rolled back",
			slog.String("source_id", sourceID.String()),
			slog.String("source_name", batch.Source.Name),
			slog.Int("items", len(batch.Items)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ingesting batch for source %s: %w", batch.Source.Name, err)
	}

	slices.SortFunc(result.NewReleaseIDs, models.ULID.Compare)
	result.Duration = time.Since(start)

	e.logger.Info("ingestion batch stored",
		slog.String("source_id", sourceID.String()),
		slog.String("source_name", batch.Source.Name),
		slog.Int("received", result.Received),
		slog.Int("new", result.New),
		slog.Int("updated", result.Updated),
		slog.Int("bound", result.Bound),
		slog.Int("entities_created", result.EntitiesCreated),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// prepare resolves, parses and identifies every item, collapsing items that
// share a guid into one row.
func (e *Engine) prepare(batch Batch) []models.Release {
	rows := make([]models.Release, 0, len(batch.Items))
	index := make(map[string]int, len(batch.Items))

	for _, item := range batch.Items {
		row := e.buildRelease(batch.Source, item, batch.Mapping)
		if i, dup := index[row.GUID]; dup {
			mergeRelease(&rows[i], &row)
			continue
		}
		index[row.GUID] = len(rows)
		rows = append(rows, row)
	}
	return rows
}

func (e *Engine) buildRelease(source *models.Source, item FeedItem, mapping category.Mapping) models.Release {
	cat := category.Resolve(source.IndexerKey, item.StdCategoryID, item.SpecCategoryID, item.CategoryIDs, mapping)
	std, spec := category.ResolveStdSpec(item.StdCategoryID, item.SpecCategoryID, item.CategoryIDs)
	parsed := e.parser.Parse(item.Title, cat)

	row := models.Release{
		SourceID:       source.ID,
		GUID:           e.guids.GUID(item),
		Title:          strings.TrimSpace(item.Title),
		Link:           strings.TrimSpace(item.Link),
		SizeBytes:      item.SizeBytes,
		Seeders:        item.Seeders,
		Leechers:       item.Leechers,
		Grabs:          item.Grabs,
		InfoHash:       models.StringPtr(strings.ToLower(strings.TrimSpace(item.InfoHash))),
		DownloadURL:    models.StringPtr(strings.TrimSpace(item.DownloadURL)),
		StdCategoryID:  std,
		SpecCategoryID: spec,
		CategoryKey:    string(cat.Key),
		TitleClean:     parsed.TitleClean,
		Year:           parsed.Year,
		Season:         parsed.Season,
		Episode:        parsed.Episode,
		Resolution:     parsed.Resolution,
		Codec:          parsed.Codec,
		ReleaseGroup:   parsed.ReleaseGroup,
		MediaType:      parsed.MediaType,
		TmdbID:         item.TmdbID,
		TvdbID:         item.TvdbID,
	}
	if item.PublishedAt != nil {
		published := item.PublishedAt.UTC()
		row.PublishedAt = &published
	}
	if len(item.CategoryIDs) > 0 {
		row.CategoryIDs = models.IntList(slices.Clone(item.CategoryIDs))
	}
	return row
}

// storedGUIDs returns the ids of the releases of a source whose guid is
// among guids.
func storedGUIDs(tx *gorm.DB, sourceID models.ULID, guids []string) (map[string]models.ULID, error) {
	out := make(map[string]models.ULID, len(guids))
	for chunk := range slices.Chunk(guids, guidChunkSize) {
		var rows []struct {
			ID   models.ULID
			GUID string
		}
		err := tx.Model(&models.Release{}).
			Select("id", "guid").
			Where("source_id = ? AND guid IN ?", sourceID, chunk).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("reading stored guids: %w", err)
		}
		for _, r := range rows {
			out[r.GUID] = r.ID
		}
	}
	return out, nil
}
