package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrURLRequired indicates a required URL field is empty.
	ErrURLRequired = errors.New("url is required")

	// ErrInvalidURL indicates a malformed URL.
	ErrInvalidURL = errors.New("invalid URL format")

	// ErrInvalidLibraryKind indicates a library app that is neither radarr nor sonarr.
	ErrInvalidLibraryKind = errors.New("invalid library kind: must be 'radarr' or 'sonarr'")

	// ErrInvalidMediaType indicates a library type other than movie or series.
	ErrInvalidMediaType = errors.New("invalid media type: must be 'movie' or 'series'")

	// ErrGUIDRequired indicates a release without a stable identity.
	ErrGUIDRequired = errors.New("guid is required")

	// ErrSourceRequired indicates a row missing its owning source.
	ErrSourceRequired = errors.New("source id is required")

	// ErrSourceNotFound is returned when an operation names an unknown source.
	ErrSourceNotFound = errors.New("source not found")

	// ErrSourceDisabled is returned when ingesting into a disabled source.
	ErrSourceDisabled = errors.New("source is disabled")
	// ErrReleaseNotFound is returned when an operation names an unknown release.
	ErrReleaseNotFound = errors.New("release not found")
	// ErrLibraryAppNotFound is returned when an operation names an unknown library app.
	ErrLibraryAppNotFound = errors.New("library app not found")

	// ErrIngestionInProgress is returned when a source is already being ingested.
	ErrIngestionInProgress = errors.New("ingestion already in progress")
)
