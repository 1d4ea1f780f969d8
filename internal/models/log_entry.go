package models

import (
	"time"
)

const (
	LogTypeInfo     = "info"
	LogTypeWarning  = "warning"
	LogTypeError    = "error"
	LogTypeSecurity = "security"
)

// LogEntry is an append-only diagnostic record. Entries are never mutated
// after creation except for the Resolved flag and bulk deletion.
type LogEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	LogType  string `gorm:"index;default:info" json:"log_type"`
	ModuleID string `gorm:"index" json:"module_id,omitempty"`
	Message  string `gorm:"not null" json:"message"`
	Details  string `gorm:"type:text" json:"details,omitempty"`

	// Metadata is a JSON encoded map of structured context values.
	Metadata string `gorm:"type:text" json:"metadata,omitempty"`

	Resolved bool `gorm:"index;default:false" json:"resolved"`
}
