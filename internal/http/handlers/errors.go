package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/storage"
)

// serviceError maps service errors onto problem responses. msg is used for
// the 500 fallback.
func serviceError(err error, msg string) error {
	var verr models.ErrValidation
	switch {
	case errors.As(err, &verr):
		return huma.Error422UnprocessableEntity(verr.Error())
	case errors.Is(err, models.ErrSourceNotFound),
		errors.Is(err, models.ErrReleaseNotFound),
		errors.Is(err, models.ErrLibraryAppNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, models.ErrIngestionInProgress),
		errors.Is(err, models.ErrSourceDisabled):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, storage.ErrUnsupportedPoster):
		return huma.Error415UnsupportedMediaType(err.Error())
	case errors.Is(err, storage.ErrLocked),
		errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

func parseID(raw string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return models.ULID{}, huma.Error400BadRequest("invalid ID format", err)
	}
	return id, nil
}
