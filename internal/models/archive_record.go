package models

import (
	"time"
)

const (
	ArchiveStatusArchived = "archived"
	ArchiveStatusRestored = "restored"
	ArchiveStatusExpired  = "expired"
)

const (
	DeleteTypeFilesOnly = "files_only"
	DeleteTypeComplete  = "complete"
)

// Item types recognized by the deletion archive.
const (
	ItemTypePlugin  = "plugin"
	ItemTypeTheme   = "theme"
	ItemTypePost    = "post"
	ItemTypePage    = "page"
	ItemTypeMedia   = "media"
	ItemTypeComment = "comment"
	ItemTypeUser    = "user"
)

// ArchiveRecord is a reversible snapshot of a destroyed host entity. The
// (ItemType, ItemID) pair is the logical key but is not unique across
// time; an entity can be deleted, restored, and deleted again.
type ArchiveRecord struct {
	ID uint `gorm:"primarykey" json:"id"`

	ItemType        string `gorm:"index;not null" json:"item_type"`
	ItemID          string `gorm:"not null" json:"item_id"`
	ItemName        string `gorm:"not null" json:"item_name"`
	ItemSlug        string `json:"item_slug,omitempty"`
	ItemVersion     string `json:"item_version,omitempty"`
	ItemAuthor      string `json:"item_author,omitempty"`
	ItemDescription string `gorm:"type:text" json:"item_description,omitempty"`

	// ArchivePath is the filesystem location of the byte-for-byte snapshot.
	// Empty when the entity had no binary payload (comments, users).
	ArchivePath  string `json:"archive_path,omitempty"`
	OriginalPath string `json:"original_path,omitempty"`
	FileSize     int64  `gorm:"default:0" json:"file_size"`
	FileCount    int    `gorm:"default:0" json:"file_count"`

	// DeletedData is a JSON encoded payload holding the entity's full row
	// plus the metadata and relations needed to reconstruct it.
	DeletedData string `gorm:"type:text" json:"-"`

	DeleteType string `gorm:"default:files_only" json:"delete_type"`
	DeletedBy  string `json:"deleted_by,omitempty"`
	DeletedAt  time.Time `gorm:"not null" json:"deleted_at"`

	// ExpiresAt is computed once at creation from the retention policy and
	// never recomputed. Nil means the record never expires.
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at,omitempty"`
	RestoredAt *time.Time `json:"restored_at,omitempty"`

	Status string `gorm:"index;default:archived" json:"status"`
}
