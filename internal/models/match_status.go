package models

import "time"

// MatchStatus caches the library reconciliation of one release. EntityID
// copies the release's entity so a fresh status can be reused by every
// release of the same work.
type MatchStatus struct {
	BaseModel

	ReleaseID ULID  `gorm:"type:varchar(26);not null;uniqueIndex" json:"release_id"`
	EntityID  *ULID `gorm:"type:varchar(26);index:idx_match_entity_checked,priority:1" json:"entity_id,omitempty"`

	InRadarr      bool   `gorm:"not null;default:false" json:"in_radarr"`
	RadarrMovieID *int   `json:"radarr_movie_id,omitempty"`
	RadarrURL     string `gorm:"size:2048" json:"radarr_url,omitempty"`
	RadarrLayer   string `gorm:"size:32" json:"radarr_layer,omitempty"`

	InSonarr       bool   `gorm:"not null;default:false" json:"in_sonarr"`
	SonarrSeriesID *int   `json:"sonarr_series_id,omitempty"`
	SonarrURL      string `gorm:"size:2048" json:"sonarr_url,omitempty"`
	SonarrLayer    string `gorm:"size:32" json:"sonarr_layer,omitempty"`

	TmdbID *int `json:"tmdb_id,omitempty"`
	TvdbID *int `json:"tvdb_id,omitempty"`

	CheckedAt time.Time `gorm:"not null;index:idx_match_entity_checked,priority:2" json:"checked_at"`
}

// TableName returns the table name for MatchStatus.
func (MatchStatus) TableName() string {
	return "match_statuses"
}

// Fresh reports whether the status was checked within ttl of now.
func (m *MatchStatus) Fresh(now time.Time, ttl time.Duration) bool {
	return !m.CheckedAt.IsZero() && now.Sub(m.CheckedAt) < ttl
}
