package models

import (
	"time"
)

const (
	ModuleStatusActive   = "active"
	ModuleStatusInactive = "inactive"
)

// Module represents an installed site module's registry row. The module id
// is an author supplied slug and doubles as the storage directory name
// under the modules root.
type Module struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"installed_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ModuleID    string `gorm:"uniqueIndex;not null" json:"module_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Version     string `json:"version"`
	Author      string `json:"author"`

	// FilePath is the module's main file relative to the modules root.
	FilePath string `gorm:"not null" json:"file_path"`

	Status string `gorm:"index;default:inactive" json:"status"`

	// Config is a JSON encoded key-value blob whose schema is defined by
	// the module author.
	Config string `gorm:"type:text" json:"config"`

	// Entrypoint is the optional symbol the module declared in its header
	// block. Empty means the module is an inert include-only module.
	Entrypoint string `json:"entrypoint,omitempty"`

	ExecutionCount int64      `gorm:"default:0" json:"execution_count"`
	LastExecuted   *time.Time `json:"last_executed,omitempty"`
}

// Active reports whether the module should be loaded at boot.
func (m *Module) Active() bool {
	return m.Status == ModuleStatusActive
}
