package models

import (
	"time"
)

// Release is one item polled from a source. (SourceID, GUID) is unique.
//
// Pointer columns are optional: ingestion only overwrites them when the
// incoming value is non-nil, so a re-poll that omits a field keeps the
// previously stored value.
type Release struct {
	BaseModel

	SourceID ULID   `gorm:"type:varchar(26);not null;uniqueIndex:idx_release_source_guid,priority:1;index:idx_release_source_category,priority:1" json:"source_id"`
	GUID     string `gorm:"size:512;not null;uniqueIndex:idx_release_source_guid,priority:2" json:"guid"`

	Title       string     `gorm:"size:1024;not null" json:"title"`
	Link        string     `gorm:"size:2048" json:"link,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	SizeBytes   *int64  `json:"size_bytes,omitempty"`
	Seeders     *int    `json:"seeders,omitempty"`
	Leechers    *int    `json:"leechers,omitempty"`
	Grabs       *int    `json:"grabs,omitempty"`
	InfoHash    *string `gorm:"size:64" json:"info_hash,omitempty"`
	DownloadURL *string `gorm:"size:2048" json:"download_url,omitempty"`

	// CategoryIDs holds the raw indexer ids as a JSON array.
	CategoryIDs    IntList `json:"category_ids,omitempty"`
	StdCategoryID  *int    `json:"std_category_id,omitempty"`
	SpecCategoryID *int    `json:"spec_category_id,omitempty"`
	CategoryKey    string  `gorm:"size:32;not null;default:'other';index:idx_release_source_category,priority:2" json:"category"`

	// Fields produced by the title parser.
	TitleClean   *string `gorm:"size:512" json:"title_clean,omitempty"`
	Year         *int    `json:"year,omitempty"`
	Season       *int    `json:"season,omitempty"`
	Episode      *int    `json:"episode,omitempty"`
	Resolution   *string `gorm:"size:32" json:"resolution,omitempty"`
	Codec        *string `gorm:"size:32" json:"codec,omitempty"`
	ReleaseGroup *string `gorm:"size:128" json:"release_group,omitempty"`
	MediaType    *string `gorm:"size:16" json:"media_type,omitempty"`

	TmdbID *int `gorm:"index" json:"tmdb_id,omitempty"`
	TvdbID *int `gorm:"index" json:"tvdb_id,omitempty"`

	// EntityID links the release to its MediaEntity once bound.
	EntityID *ULID `gorm:"type:varchar(26);index" json:"entity_id,omitempty"`

	PosterFile *string `gorm:"size:255" json:"poster_file,omitempty"`
}

// TableName returns the table name for Release.
func (Release) TableName() string {
	return "releases"
}

// Validate checks required fields.
func (r *Release) Validate() error {
	if r.SourceID.IsZero() {
		return ErrSourceRequired
	}
	if r.GUID == "" {
		return ErrGUIDRequired
	}
	return nil
}

// RankTime is the timestamp used for recency ordering: the publish time
// when known, else the time the row was first stored.
func (r *Release) RankTime() time.Time {
	if r.PublishedAt != nil {
		return *r.PublishedAt
	}
	return r.CreatedAt
}
