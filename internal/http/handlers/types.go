// Package handlers provides the HTTP API handlers for releasarr.
package handlers

import (
	"time"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/ingestor"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/retention"
	"github.com/jmylchreest/releasarr/internal/service"
)

// FeedItemRequest is one release pushed by an indexer feed.
type FeedItemRequest struct {
	GUID        string     `json:"guid,omitempty" maxLength:"4096" doc:"Indexer guid or permalink"`
	ProviderID  string     `json:"provider_id,omitempty" maxLength:"512" doc:"Indexer-declared release id"`
	Title       string     `json:"title" minLength:"1" maxLength:"1024" doc:"Raw release title"`
	Link        string     `json:"link,omitempty" maxLength:"4096"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	SizeBytes   *int64     `json:"size_bytes,omitempty" minimum:"0"`
	Seeders     *int       `json:"seeders,omitempty"`
	Leechers    *int       `json:"leechers,omitempty"`
	Grabs       *int       `json:"grabs,omitempty"`
	InfoHash    string     `json:"info_hash,omitempty" maxLength:"64"`
	DownloadURL string     `json:"download_url,omitempty" maxLength:"4096"`

	CategoryIDs    []int `json:"category_ids,omitempty" doc:"All category ids of the item, indexer and Newznab"`
	StdCategoryID  *int  `json:"std_category_id,omitempty" doc:"Newznab standard category id"`
	SpecCategoryID *int  `json:"spec_category_id,omitempty" doc:"Indexer-specific category id"`

	TmdbID *int `json:"tmdb_id,omitempty"`
	TvdbID *int `json:"tvdb_id,omitempty"`
}

// ToFeedItem converts the request into an ingestion item.
func (r FeedItemRequest) ToFeedItem() ingestor.FeedItem {
	return ingestor.FeedItem{
		ProviderID:     r.ProviderID,
		GUID:           r.GUID,
		Title:          r.Title,
		Link:           r.Link,
		PublishedAt:    r.PublishedAt,
		SizeBytes:      r.SizeBytes,
		Seeders:        r.Seeders,
		Leechers:       r.Leechers,
		Grabs:          r.Grabs,
		InfoHash:       r.InfoHash,
		DownloadURL:    r.DownloadURL,
		CategoryIDs:    r.CategoryIDs,
		StdCategoryID:  r.StdCategoryID,
		SpecCategoryID: r.SpecCategoryID,
		TmdbID:         r.TmdbID,
		TvdbID:         r.TvdbID,
	}
}

// IngestResponse summarizes an ingested batch.
type IngestResponse struct {
	BatchID         string             `json:"batch_id"`
	SourceID        models.ULID        `json:"source_id"`
	Received        int                `json:"received"`
	Unique          int                `json:"unique"`
	New             int                `json:"new"`
	Updated         int                `json:"updated"`
	Bound           int                `json:"bound"`
	EntitiesCreated int                `json:"entities_created"`
	NewReleaseIDs   []models.ULID      `json:"new_release_ids"`
	DurationMS      int64              `json:"duration_ms"`
	Retention       *RetentionResponse `json:"retention,omitempty"`
}

// IngestResponseFromResult converts a service result to a response.
func IngestResponseFromResult(r *service.IngestResult) IngestResponse {
	resp := IngestResponse{
		BatchID:         r.BatchID,
		SourceID:        r.SourceID,
		Received:        r.Received,
		Unique:          r.Unique,
		New:             r.New,
		Updated:         r.Updated,
		Bound:           r.Bound,
		EntitiesCreated: r.EntitiesCreated,
		NewReleaseIDs:   r.NewReleaseIDs,
		DurationMS:      r.Duration.Milliseconds(),
	}
	if resp.NewReleaseIDs == nil {
		resp.NewReleaseIDs = []models.ULID{}
	}
	if r.Retention != nil {
		ret := RetentionResponseFromResult(r.Retention)
		resp.Retention = &ret
	}
	return resp
}

// RetentionResponse reports one retention run.
type RetentionResponse struct {
	SourceID    models.ULID      `json:"source_id"`
	Before      map[string]int64 `json:"before"`
	After       map[string]int64 `json:"after"`
	TotalBefore int64            `json:"total_before"`
	TotalAfter  int64            `json:"total_after"`
	Evicted     int              `json:"evicted"`
	// PostersRemoved counts poster files that lost their last reference.
	PostersRemoved int `json:"posters_removed"`
}

// RetentionResponseFromResult converts an enforcement result to a response.
func RetentionResponseFromResult(r *retention.Result) RetentionResponse {
	return RetentionResponse{
		SourceID:       r.SourceID,
		Before:         r.Before,
		After:          r.After,
		TotalBefore:    r.TotalBefore,
		TotalAfter:     r.TotalAfter,
		Evicted:        len(r.EvictedIDs),
		PostersRemoved: len(r.OrphanedPosters),
	}
}

// LibraryAppResponse is a library app without its API key.
type LibraryAppResponse struct {
	ID      models.ULID        `json:"id"`
	Name    string             `json:"name"`
	Kind    models.LibraryKind `json:"kind"`
	BaseURL string             `json:"base_url"`
	Enabled bool               `json:"enabled"`
	Syncs   []SyncStatusDTO    `json:"syncs"`
}

// SyncStatusDTO is the sync state of one app snapshot.
type SyncStatusDTO struct {
	Type          models.MediaType `json:"type"`
	LastSyncAt    *time.Time       `json:"last_sync_at,omitempty"`
	LastAttemptAt *time.Time       `json:"last_attempt_at,omitempty"`
	ItemCount     int              `json:"item_count"`
	LastError     string           `json:"last_error,omitempty"`
}

// LibraryAppFromStatus converts a service app status to a response.
func LibraryAppFromStatus(s service.AppStatus) LibraryAppResponse {
	resp := LibraryAppResponse{
		ID:      s.App.ID,
		Name:    s.App.Name,
		Kind:    s.App.Kind,
		BaseURL: s.App.BaseURL,
		Enabled: models.BoolVal(s.App.Enabled),
		Syncs:   make([]SyncStatusDTO, 0, len(s.Syncs)),
	}
	for _, st := range s.Syncs {
		resp.Syncs = append(resp.Syncs, SyncStatusDTO{
			Type:          st.MediaType,
			LastSyncAt:    st.LastSyncAt,
			LastAttemptAt: st.LastAttemptAt,
			ItemCount:     st.ItemCount,
			LastError:     st.LastError,
		})
	}
	return resp
}

// MatchStatusResponse says whether a release is already in Radarr or Sonarr.
type MatchStatusResponse struct {
	ReleaseID      models.ULID  `json:"release_id"`
	EntityID       *models.ULID `json:"entity_id,omitempty"`
	InRadarr       bool         `json:"in_radarr"`
	RadarrMovieID  *int         `json:"radarr_movie_id,omitempty"`
	RadarrURL      string       `json:"radarr_url,omitempty"`
	RadarrLayer    string       `json:"radarr_layer,omitempty"`
	InSonarr       bool         `json:"in_sonarr"`
	SonarrSeriesID *int         `json:"sonarr_series_id,omitempty"`
	SonarrURL      string       `json:"sonarr_url,omitempty"`
	SonarrLayer    string       `json:"sonarr_layer,omitempty"`
	TmdbID         *int         `json:"tmdb_id,omitempty"`
	TvdbID         *int         `json:"tvdb_id,omitempty"`
	CheckedAt      time.Time    `json:"checked_at"`
}

// MatchStatusFromModel converts a stored match status to a response.
func MatchStatusFromModel(m *models.MatchStatus) MatchStatusResponse {
	return MatchStatusResponse{
		ReleaseID:      m.ReleaseID,
		EntityID:       m.EntityID,
		InRadarr:       m.InRadarr,
		RadarrMovieID:  m.RadarrMovieID,
		RadarrURL:      m.RadarrURL,
		RadarrLayer:    m.RadarrLayer,
		InSonarr:       m.InSonarr,
		SonarrSeriesID: m.SonarrSeriesID,
		SonarrURL:      m.SonarrURL,
		SonarrLayer:    m.SonarrLayer,
		TmdbID:         m.TmdbID,
		TvdbID:         m.TvdbID,
		CheckedAt:      m.CheckedAt,
	}
}

// CategoryMappingResponse is one admin category override.
type CategoryMappingResponse struct {
	ExternalID int    `json:"external_id"`
	GroupKey   string `json:"group_key"`
	GroupLabel string `json:"group_label"`
	Label      string `json:"label,omitempty"`
}

// CategoryMappingFromModel converts a stored mapping to a response.
func CategoryMappingFromModel(m *models.CategoryMapping) CategoryMappingResponse {
	return CategoryMappingResponse{
		ExternalID: m.ExternalID,
		GroupKey:   m.GroupKey,
		GroupLabel: category.Lookup(m.GroupKey).Label,
		Label:      m.Label,
	}
}
