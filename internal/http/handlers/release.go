package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/releasarr/internal/ingestor"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/retention"
	"github.com/jmylchreest/releasarr/internal/service"
)

// maxPosterBytes bounds a poster upload.
const maxPosterBytes = 8 << 20

// ReleaseService is the subset of service.ReleaseService used by the handler.
type ReleaseService interface {
	Ingest(ctx context.Context, sourceID models.ULID, items []ingestor.FeedItem) (*service.IngestResult, error)
	EnforceRetention(ctx context.Context, sourceID models.ULID) (*retention.Result, error)
	Purge(ctx context.Context, ids []models.ULID) (*retention.PurgeResult, error)
	SavePoster(ctx context.Context, releaseID models.ULID, contentType string, r io.Reader) (string, error)
}

// ReleaseHandler handles ingestion and retention endpoints.
type ReleaseHandler struct {
	releases ReleaseService
}

// NewReleaseHandler creates a release handler.
func NewReleaseHandler(releases ReleaseService) *ReleaseHandler {
	return &ReleaseHandler{releases: releases}
}

// Register registers the release routes with the API.
func (h *ReleaseHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "ingestReleases",
		Method:      http.MethodPost,
		Path:        "/api/v1/sources/{id}/releases",
		Summary:     "Ingest a batch",
		Description: "Stores one batch of feed items for a source. The batch commits or rolls back as a whole.",
		Tags:        []string{"Releases"},
	}, h.Ingest)

	huma.Register(api, huma.Operation{
		OperationID: "enforceRetention",
		Method:      http.MethodPost,
		Path:        "/api/v1/sources/{id}/retention",
		Summary:     "Run retention",
		Description: "Applies the per-category and global caps of a source now",
		Tags:        []string{"Releases"},
	}, h.EnforceRetention)

	huma.Register(api, huma.Operation{
		OperationID: "purgeReleases",
		Method:      http.MethodPost,
		Path:        "/api/v1/releases/purge",
		Summary:     "Purge releases",
		Description: "Deletes the given releases and their orphaned posters",
		Tags:        []string{"Releases"},
	}, h.Purge)

	huma.Register(api, huma.Operation{
		OperationID:  "uploadPoster",
		Method:       http.MethodPut,
		Path:         "/api/v1/releases/{id}/poster",
		Summary:      "Upload a poster",
		Description:  "Stores a JPEG, PNG or WebP poster for a release",
		Tags:         []string{"Releases"},
		MaxBodyBytes: maxPosterBytes,
	}, h.UploadPoster)
}

// IngestInput is the input for ingesting a batch.
type IngestInput struct {
	ID   string `path:"id" doc:"Source ID (ULID)"`
	Body struct {
		Items []FeedItemRequest `json:"items" doc:"Feed items in feed order"`
	}
}

// IngestOutput is the output for ingesting a batch.
type IngestOutput struct {
	Body IngestResponse
}

// Ingest stores a pushed batch.
func (h *ReleaseHandler) Ingest(ctx context.Context, input *IngestInput) (*IngestOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}

	items := make([]ingestor.FeedItem, 0, len(input.Body.Items))
	for _, it := range input.Body.Items {
		items = append(items, it.ToFeedItem())
	}

	result, err := h.releases.Ingest(ctx, id, items)
	if err != nil {
		return nil, serviceError(err, "failed to ingest batch")
	}
	return &IngestOutput{Body: IngestResponseFromResult(result)}, nil
}

// RetentionInput is the input for running retention.
type RetentionInput struct {
	ID string `path:"id" doc:"Source ID (ULID)"`
}

// RetentionOutput is the output for running retention.
type RetentionOutput struct {
	Body RetentionResponse
}

// EnforceRetention runs retention for one source.
func (h *ReleaseHandler) EnforceRetention(ctx context.Context, input *RetentionInput) (*RetentionOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	result, err := h.releases.EnforceRetention(ctx, id)
	if err != nil {
		return nil, serviceError(err, "failed to enforce retention")
	}
	return &RetentionOutput{Body: RetentionResponseFromResult(result)}, nil
}

// PurgeInput is the input for purging releases.
type PurgeInput struct {
	Body struct {
		IDs []string `json:"ids" minItems:"1" maxItems:"10000" doc:"Release IDs (ULID)"`
	}
}

// PurgeOutput is the output for purging releases.
type PurgeOutput struct {
	Body struct {
		Deleted        int64 `json:"deleted"`
		PostersRemoved int   `json:"posters_removed"`
	}
}

// Purge deletes releases by id.
func (h *ReleaseHandler) Purge(ctx context.Context, input *PurgeInput) (*PurgeOutput, error) {
	ids := make([]models.ULID, 0, len(input.Body.IDs))
	for _, raw := range input.Body.IDs {
		id, err := parseID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	result, err := h.releases.Purge(ctx, ids)
	if err != nil {
		return nil, serviceError(err, "failed to purge releases")
	}

	out := &PurgeOutput{}
	out.Body.Deleted = result.Deleted
	out.Body.PostersRemoved = len(result.OrphanedPosters)
	return out, nil
}

// UploadPosterInput is the input for uploading a poster.
type UploadPosterInput struct {
	ID          string `path:"id" doc:"Release ID (ULID)"`
	ContentType string `header:"Content-Type" doc:"image/jpeg, image/png or image/webp"`
	RawBody     []byte
}

// UploadPosterOutput is the output for uploading a poster.
type UploadPosterOutput struct {
	Body struct {
		File string `json:"file"`
	}
}

// UploadPoster stores a poster for a release.
func (h *ReleaseHandler) UploadPoster(ctx context.Context, input *UploadPosterInput) (*UploadPosterOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("empty poster body")
	}

	name, err := h.releases.SavePoster(ctx, id, input.ContentType, bytes.NewReader(input.RawBody))
	if err != nil {
		return nil, serviceError(err, "failed to save poster")
	}

	out := &UploadPosterOutput{}
	out.Body.File = name
	return out, nil
}
