package model

import "time"

// StagingProcessor is a pluggable processing step attachable to a transfer,
// e.g. metadata extraction after an ingest. Definitions are owned by the
// configuration layer; transfers only reference them.
type StagingProcessor struct {
	ID               int64  `json:"id"`
	UniqueIdentifier string `json:"unique_identifier" gorm:"uniqueIndex"`
	Name             string `json:"name"`
	GroupID          string `json:"group_id" gorm:"index"`
	Description      string `json:"description,omitempty"`

	SupportsIngest   bool `json:"supports_ingest"`
	SupportsDownload bool `json:"supports_download"`
	DefaultOn        bool `json:"default_on"`
	Disabled         bool `json:"disabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StagingProcessor) TableName() string {
	return "staging_processors"
}

// AppliesTo reports whether the processor can run for the given transfer
// direction.
func (p *StagingProcessor) AppliesTo(kind Kind) bool {
	switch kind {
	case KindIngest:
		return p.SupportsIngest
	case KindDownload:
		return p.SupportsDownload
	default:
		return false
	}
}
