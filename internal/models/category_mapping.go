package models

// CategoryMapping is an admin override mapping one raw indexer category id
// of a source to a canonical category key.
type CategoryMapping struct {
	BaseModel

	SourceID   ULID   `gorm:"type:varchar(26);not null;uniqueIndex:idx_category_mapping,priority:1" json:"source_id"`
	ExternalID int    `gorm:"not null;uniqueIndex:idx_category_mapping,priority:2" json:"external_id"`
	GroupKey   string `gorm:"size:32;not null" json:"group_key"`
	Label      string `gorm:"size:255" json:"label,omitempty"`
}

// TableName returns the table name for CategoryMapping.
func (CategoryMapping) TableName() string {
	return "category_mappings"
}
