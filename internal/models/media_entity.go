package models

// MediaEntity anchors "the same work" across releases and sources.
// (CategoryKey, TitleKey, Year) is unique; Year 0 means unknown so the
// unique index never has to compare NULLs.
type MediaEntity struct {
	BaseModel

	CategoryKey string `gorm:"size:32;not null;uniqueIndex:idx_entity_identity,priority:1" json:"category"`
	// TitleKey is the strict-normalized clean title.
	TitleKey string `gorm:"size:512;not null;uniqueIndex:idx_entity_identity,priority:2" json:"title_key"`
	Year     int    `gorm:"not null;default:0;uniqueIndex:idx_entity_identity,priority:3" json:"year"`

	// Title is the clean title of the release that created the entity.
	Title string `gorm:"size:512;not null" json:"title"`

	TmdbID     *int    `json:"tmdb_id,omitempty"`
	TvdbID     *int    `json:"tvdb_id,omitempty"`
	PosterFile *string `gorm:"size:255" json:"poster_file,omitempty"`
}

// TableName returns the table name for MediaEntity.
func (MediaEntity) TableName() string {
	return "media_entities"
}
