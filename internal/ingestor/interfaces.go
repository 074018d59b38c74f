// Package ingestor turns batches of polled feed items into stored releases.
package ingestor

import (
	"time"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/titleparse"
)

// FeedItem is one item fetched from an indexer feed. Empty strings and nil
// pointers mean the feed did not provide the field.
type FeedItem struct {
	// ProviderID is an indexer-declared release id. Some feeds echo the
	// title here, which is ignored.
	ProviderID  string     `json:"provider_id,omitempty"`
	GUID        string     `json:"guid,omitempty"`
	Title       string     `json:"title"`
	Link        string     `json:"link,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	SizeBytes   *int64     `json:"size_bytes,omitempty"`
	Seeders     *int       `json:"seeders,omitempty"`
	Leechers    *int       `json:"leechers,omitempty"`
	Grabs       *int       `json:"grabs,omitempty"`
	InfoHash    string     `json:"info_hash,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`

	CategoryIDs    []int `json:"category_ids,omitempty"`
	StdCategoryID  *int  `json:"std_category_id,omitempty"`
	SpecCategoryID *int  `json:"spec_category_id,omitempty"`

	TmdbID *int `json:"tmdb_id,omitempty"`
	TvdbID *int `json:"tvdb_id,omitempty"`
}

// Batch is one poll of one source.
type Batch struct {
	Source  *models.Source
	Items   []FeedItem
	Mapping category.Mapping
}

// Result summarizes an ingested batch.
type Result struct {
	SourceID models.ULID `json:"source_id"`
	Received int         `json:"received"`
	// Unique is the number of distinct guids in the batch.
	Unique  int `json:"unique"`
	New     int `json:"new"`
	Updated int `json:"updated"`
	// Bound counts releases linked to an entity by this batch.
	Bound           int           `json:"bound"`
	EntitiesCreated int           `json:"entities_created"`
	NewReleaseIDs   []models.ULID `json:"new_release_ids"`
	Duration        time.Duration `json:"duration"`
}

// TitleParser extracts structured fields from a raw release title. It must
// be a pure function.
type TitleParser interface {
	Parse(raw string, hint category.Category) titleparse.Parsed
}

var _ TitleParser = (*titleparse.Parser)(nil)
