package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/service"
)

// LibraryService is the subset of service.LibraryService used by the handler.
type LibraryService interface {
	SyncApp(ctx context.Context, id models.ULID) error
	Status(ctx context.Context) ([]service.AppStatus, error)
	MatchRelease(ctx context.Context, id models.ULID) (*models.MatchStatus, error)
	CachedMatch(ctx context.Context, id models.ULID) (*models.MatchStatus, error)
}

// LibraryHandler handles library sync and match endpoints.
type LibraryHandler struct {
	library LibraryService
}

// NewLibraryHandler creates a library handler.
func NewLibraryHandler(library LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// Register registers the library routes with the API.
func (h *LibraryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLibraryStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/library/status",
		Summary:     "Library sync status",
		Description: "Lists Radarr and Sonarr apps with the state of their last sync",
		Tags:        []string{"Library"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "syncLibraryApp",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/{id}/sync",
		Summary:     "Sync a library app",
		Description: "Fetches the catalog of one app and replaces its snapshot",
		Tags:        []string{"Library"},
	}, h.Sync)

	huma.Register(api, huma.Operation{
		OperationID: "getReleaseMatch",
		Method:      http.MethodGet,
		Path:        "/api/v1/releases/{id}/match",
		Summary:     "Release library status",
		Description: "Says whether a release is already in Radarr or Sonarr. With cached=true the last stored status is returned without resolving",
		Tags:        []string{"Library"},
	}, h.Match)
}

// LibraryStatusInput is the input for the library status endpoint.
type LibraryStatusInput struct{}

// LibraryStatusOutput is the output for the library status endpoint.
type LibraryStatusOutput struct {
	Body struct {
		Apps []LibraryAppResponse `json:"apps"`
	}
}

// Status lists library apps and their sync state.
func (h *LibraryHandler) Status(ctx context.Context, _ *LibraryStatusInput) (*LibraryStatusOutput, error) {
	statuses, err := h.library.Status(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get library status", err)
	}

	out := &LibraryStatusOutput{}
	out.Body.Apps = make([]LibraryAppResponse, 0, len(statuses))
	for _, st := range statuses {
		out.Body.Apps = append(out.Body.Apps, LibraryAppFromStatus(st))
	}
	return out, nil
}

// SyncLibraryInput is the input for syncing an app.
type SyncLibraryInput struct {
	ID string `path:"id" doc:"Library app ID (ULID)"`
}

// SyncLibraryOutput is the output for syncing an app.
type SyncLibraryOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Sync refreshes one app. An unreachable app is reported as 502; its
// previous snapshot stays in place.
func (h *LibraryHandler) Sync(ctx context.Context, input *SyncLibraryInput) (*SyncLibraryOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.library.SyncApp(ctx, id); err != nil {
		if errors.Is(err, models.ErrLibraryAppNotFound) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error502BadGateway("library sync failed", err)
	}

	out := &SyncLibraryOutput{}
	out.Body.Message = "library snapshot replaced"
	return out, nil
}

// MatchInput is the input for a release match lookup.
type MatchInput struct {
	ID     string `path:"id" doc:"Release ID (ULID)"`
	Cached bool   `query:"cached" doc:"Return the last stored status only"`
}

// MatchOutput is the output for a release match lookup.
type MatchOutput struct {
	Body MatchStatusResponse
}

// Match resolves the library status of one release.
func (h *LibraryHandler) Match(ctx context.Context, input *MatchInput) (*MatchOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	if input.Cached {
		status, err := h.library.CachedMatch(ctx, id)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to get match status", err)
		}
		if status == nil {
			return nil, huma.Error404NotFound("no stored match status for release")
		}
		return &MatchOutput{Body: MatchStatusFromModel(status)}, nil
	}

	status, err := h.library.MatchRelease(ctx, id)
	if err != nil {
		return nil, serviceError(err, "failed to resolve match status")
	}
	if status == nil {
		return nil, huma.Error500InternalServerError("no match status resolved")
	}
	return &MatchOutput{Body: MatchStatusFromModel(status)}, nil
}
