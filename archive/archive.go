// Package archive makes destructive operations against host entities
// reversible for a bounded retention window. Every deletion is
// intercepted as copy-then-delete: the snapshot is written and the
// record created before any original byte is removed, so a failure mid
// archival always leaves the original untouched.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"emperror.dev/errors"
	"gorm.io/gorm"

	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/host"
	"github.com/onyxcmd/onyxd/internal/models"
)

var (
	// ErrNotFound is returned when no archive record exists for an id.
	ErrNotFound = errors.New("archive: record not found")
	// ErrUnknownType is returned when a restore is requested for an item
	// type the dispatcher does not recognize.
	ErrUnknownType = errors.New("archive: unknown item type")
	// ErrNotArchived is returned when an operation requires a record in
	// archived status.
	ErrNotArchived = errors.New("archive: record is not in archived status")
)

// Archive owns the record table and the snapshot tree.
type Archive struct {
	db   *gorm.DB
	site *host.Site
	log  *eventlog.Logger
}

func New(db *gorm.DB, site *host.Site, log *eventlog.Logger) *Archive {
	return &Archive{db: db, site: site, log: log}
}

func (a *Archive) root() string {
	return config.Get().Archive.Directory
}

// typeDir maps an item type onto its segment of the snapshot tree.
func typeDir(itemType string) string {
	switch itemType {
	case models.ItemTypePlugin:
		return "plugins"
	case models.ItemTypeTheme:
		return "themes"
	case models.ItemTypeMedia:
		return "media"
	default:
		return "posts"
	}
}

// EnsureTree creates the snapshot directory layout along with a deny-all
// access rule and an inert index file so the tree can never be listed or
// served by a misconfigured web server.
func (a *Archive) EnsureTree() error {
	root := a.root()
	for _, d := range []string{"", "plugins", "themes", "posts", "media", "backups"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o700); err != nil {
			return errors.Wrap(err, "archive: failed to create snapshot directory")
		}
	}
	htaccess := filepath.Join(root, ".htaccess")
	if _, err := os.Stat(htaccess); os.IsNotExist(err) {
		if err := os.WriteFile(htaccess, []byte("Order deny,allow\nDeny from all\n"), 0o644); err != nil {
			return errors.Wrap(err, "archive: failed to write access rule")
		}
	}
	index := filepath.Join(root, "index.php")
	if _, err := os.Stat(index); os.IsNotExist(err) {
		if err := os.WriteFile(index, []byte("<?php // Silence is golden.\n"), 0o644); err != nil {
			return errors.Wrap(err, "archive: failed to write index file")
		}
	}
	return nil
}

// snapshotDir allocates a dated snapshot directory for one item.
func (a *Archive) snapshotDir(itemType, slug string) string {
	stamp := time.Now().Format("2006-01-02_150405")
	return filepath.Join(a.root(), typeDir(itemType), fmt.Sprintf("%s_%s", stamp, slug))
}

// expiryFor computes the immutable expiry from the retention policy at
// the moment of archival. A zero retention means the record never
// expires.
func expiryFor(deletedAt time.Time) *time.Time {
	days := config.Get().Archive.Retention()
	if days == 0 {
		return nil
	}
	t := deletedAt.AddDate(0, 0, days)
	return &t
}

// activeRecord returns the existing archived record for an item, if one
// exists. At most one record per (item_type, item_id) may sit in
// archived status; re-archival returns the existing record instead of
// stacking duplicates.
func (a *Archive) activeRecord(itemType, itemID string) (*models.ArchiveRecord, error) {
	var r models.ArchiveRecord
	err := a.db.Where("item_type = ? AND item_id = ? AND status = ?", itemType, itemID, models.ArchiveStatusArchived).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "archive: failed to query records")
	}
	return &r, nil
}

// Get returns a record by id.
func (a *Archive) Get(id uint) (*models.ArchiveRecord, error) {
	var r models.ArchiveRecord
	if err := a.db.First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "archive: failed to query record")
	}
	return &r, nil
}

// ListFilter narrows the paginated listing.
type ListFilter struct {
	ItemType string
	Status   string
	Page     int
	PerPage  int
}

// List returns one page of records, newest first, plus the total count
// for the filter.
func (a *Archive) List(f ListFilter) ([]models.ArchiveRecord, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 20
	}

	q := a.db.Model(&models.ArchiveRecord{})
	if f.ItemType != "" {
		q = q.Where("item_type = ?", f.ItemType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "archive: failed to count records")
	}

	var out []models.ArchiveRecord
	err := q.Order("deleted_at desc").
		Offset((f.Page - 1) * f.PerPage).
		Limit(f.PerPage).
		Find(&out).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "archive: failed to list records")
	}
	return out, total, nil
}

// PermanentDelete removes a record and its snapshot files for good.
func (a *Archive) PermanentDelete(id uint) error {
	r, err := a.Get(id)
	if err != nil {
		return err
	}
	if r.ArchivePath != "" {
		if err := os.RemoveAll(r.ArchivePath); err != nil {
			return errors.Wrap(err, "archive: failed to remove snapshot files")
		}
	}
	if err := a.db.Delete(&models.ArchiveRecord{}, id).Error; err != nil {
		return errors.Wrap(err, "archive: failed to delete record")
	}
	a.log.Info("Archive item permanently deleted", r.ItemName, map[string]interface{}{
		"item_type": r.ItemType,
		"item_id":   r.ItemID,
	})
	return nil
}

// EmptyArchive permanently deletes every record and snapshot.
func (a *Archive) EmptyArchive() (int64, error) {
	var records []models.ArchiveRecord
	if err := a.db.Find(&records).Error; err != nil {
		return 0, errors.Wrap(err, "archive: failed to list records")
	}
	for _, r := range records {
		if r.ArchivePath != "" {
			if err := os.RemoveAll(r.ArchivePath); err != nil {
				return 0, errors.Wrap(err, "archive: failed to remove snapshot files")
			}
		}
	}
	res := a.db.Where("1 = 1").Delete(&models.ArchiveRecord{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "archive: failed to delete records")
	}
	a.log.Warning("Archive emptied", "", map[string]interface{}{"removed": res.RowsAffected})
	return res.RowsAffected, nil
}

// createRecord persists a new archived record. Failure here aborts the
// archival before anything destructive has happened.
func (a *Archive) createRecord(r *models.ArchiveRecord) error {
	r.DeletedAt = time.Now()
	r.ExpiresAt = expiryFor(r.DeletedAt)
	r.Status = models.ArchiveStatusArchived
	if err := a.db.Create(r).Error; err != nil {
		return errors.Wrap(err, "archive: failed to create record")
	}
	return nil
}

// markRestored flips a record to restored and drops its snapshot. Called
// only after the type-specific reconstruction succeeded.
func (a *Archive) markRestored(r *models.ArchiveRecord) error {
	if r.ArchivePath != "" {
		if err := os.RemoveAll(r.ArchivePath); err != nil {
			return errors.Wrap(err, "archive: failed to remove snapshot after restore")
		}
	}
	now := time.Now()
	r.RestoredAt = &now
	r.Status = models.ArchiveStatusRestored
	if err := a.db.Save(r).Error; err != nil {
		return errors.Wrap(err, "archive: failed to update restored record")
	}
	a.log.Info("Archive item restored", r.ItemName, map[string]interface{}{
		"item_type": r.ItemType,
		"item_id":   r.ItemID,
	})
	return nil
}

// footprintStats walks a path and returns its total size and file count.
// A single file counts as one.
func footprintStats(path string) (int64, int) {
	var size int64
	var count int
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
			count++
		}
		return nil
	})
	return size, count
}
