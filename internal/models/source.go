package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// SourceStatus is the outcome of the most recent ingestion.
type SourceStatus string

const (
	SourceStatusPending   SourceStatus = "pending"
	SourceStatusIngesting SourceStatus = "ingesting"
	SourceStatusSuccess   SourceStatus = "success"
	SourceStatusFailed    SourceStatus = "failed"
)

// Source is one configured feed indexer.
type Source struct {
	BaseModel

	// Name is unique across sources.
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`

	// IndexerKey selects built-in category heuristics (e.g. "ygg").
	IndexerKey string `gorm:"size:64" json:"indexer_key"`

	Enabled *bool `gorm:"default:true" json:"enabled"`

	// Retention overrides. Nil falls back to the configured defaults.
	PerCategoryLimit *int `json:"per_category_limit,omitempty"`
	GlobalLimit      *int `json:"global_limit,omitempty"`

	Status          SourceStatus `gorm:"not null;default:'pending';size:20" json:"status"`
	LastIngestionAt *time.Time   `json:"last_ingestion_at,omitempty"`
	LastError       string       `gorm:"size:4096" json:"last_error,omitempty"`
	ReleaseCount    int          `gorm:"default:0" json:"release_count"`
}

// TableName returns the table name for Source.
func (Source) TableName() string {
	return "sources"
}

// Validate checks required fields.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// BeforeCreate generates the id and validates the row.
func (s *Source) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	s.IndexerKey = strings.ToLower(strings.TrimSpace(s.IndexerKey))
	return s.Validate()
}
