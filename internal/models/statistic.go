package models

import (
	"time"
)

// Statistic is a numeric or JSON sample recorded against a module, keyed
// by (module id, stat key, recorded at).
type Statistic struct {
	ID uint `gorm:"primarykey" json:"id"`

	ModuleID   string    `gorm:"index;not null" json:"module_id"`
	StatKey    string    `gorm:"index;not null" json:"stat_key"`
	StatValue  string    `gorm:"type:text" json:"stat_value"`
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
}
