package models

import (
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
)

// LibraryKind identifies the library manager behind a LibraryApp.
type LibraryKind string

const (
	LibraryKindRadarr LibraryKind = "radarr"
	LibraryKindSonarr LibraryKind = "sonarr"
)

// MediaType is the type of a library snapshot.
type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypeSeries MediaType = "series"
)

// Valid reports whether t is movie or series.
func (t MediaType) Valid() bool {
	return t == MediaTypeMovie || t == MediaTypeSeries
}

// MediaType returns the snapshot type served by the app kind.
func (k LibraryKind) MediaType() MediaType {
	if k == LibraryKindSonarr {
		return MediaTypeSeries
	}
	return MediaTypeMovie
}

// LibraryApp is one Radarr or Sonarr instance.
type LibraryApp struct {
	BaseModel

	Name    string      `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Kind    LibraryKind `gorm:"not null;size:16" json:"kind"`
	BaseURL string      `gorm:"not null;size:2048" json:"base_url"`
	APIKey  string      `gorm:"size:255" json:"-" masq:"secret"`
	Enabled *bool       `gorm:"default:true" json:"enabled"`
}

// TableName returns the table name for LibraryApp.
func (LibraryApp) TableName() string {
	return "library_apps"
}

// Validate checks required fields and the base URL.
func (a *LibraryApp) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrNameRequired
	}
	if a.Kind != LibraryKindRadarr && a.Kind != LibraryKindSonarr {
		return ErrInvalidLibraryKind
	}
	if a.BaseURL == "" {
		return ErrURLRequired
	}
	u, err := url.Parse(a.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// BeforeSave validates the app on create and update.
func (a *LibraryApp) BeforeSave(_ *gorm.DB) error {
	a.BaseURL = strings.TrimRight(a.BaseURL, "/")
	return a.Validate()
}

// LibraryItem mirrors one movie or series of a library app. The whole set
// for (AppID, MediaType) is replaced on every successful sync.
type LibraryItem struct {
	BaseModel

	AppID      ULID      `gorm:"type:varchar(26);not null;uniqueIndex:idx_library_item,priority:1;index:idx_library_item_norm,priority:1" json:"app_id"`
	MediaType  MediaType `gorm:"size:16;not null;uniqueIndex:idx_library_item,priority:2;index:idx_library_item_norm,priority:2" json:"type"`
	InternalID int       `gorm:"not null;uniqueIndex:idx_library_item,priority:3" json:"internal_id"`

	TmdbID *int `gorm:"index" json:"tmdb_id,omitempty"`
	TvdbID *int `gorm:"index" json:"tvdb_id,omitempty"`

	Title           string     `gorm:"size:512;not null" json:"title"`
	OriginalTitle   string     `gorm:"size:512" json:"original_title,omitempty"`
	TitleSlug       string     `gorm:"size:512" json:"title_slug,omitempty"`
	Year            int        `json:"year,omitempty"`
	AlternateTitles StringList `json:"alternate_titles,omitempty"`

	// TitleNormalized is the strict-normalized Title, computed at sync time.
	TitleNormalized string `gorm:"size:512;index:idx_library_item_norm,priority:3" json:"title_normalized"`
}

// TableName returns the table name for LibraryItem.
func (LibraryItem) TableName() string {
	return "library_items"
}

// LibrarySyncStatus records the last sync outcome per (app, type).
// A failed sync only sets LastError; the previous snapshot stays usable.
type LibrarySyncStatus struct {
	BaseModel

	AppID         ULID       `gorm:"type:varchar(26);not null;uniqueIndex:idx_library_sync,priority:1" json:"app_id"`
	MediaType     MediaType  `gorm:"size:16;not null;uniqueIndex:idx_library_sync,priority:2" json:"type"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	ItemCount     int        `gorm:"not null;default:0" json:"item_count"`
	LastError     string     `gorm:"size:4096" json:"last_error,omitempty"`
}

// TableName returns the table name for LibrarySyncStatus.
func (LibrarySyncStatus) TableName() string {
	return "library_sync_statuses"
}
