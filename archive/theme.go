package archive

import (
	"os"
	"path/filepath"

	"emperror.dev/errors"

	"github.com/onyxcmd/onyxd/internal/models"
)

// ArchiveTheme snapshots a theme directory and deletes it. Themes carry
// no associated tables or options, so there is no complete mode.
func (a *Archive) ArchiveTheme(slug, deletedBy string) (*models.ArchiveRecord, error) {
	footprint := filepath.Join(a.site.ThemesDir(), slug)
	if _, err := os.Stat(footprint); err != nil {
		return nil, errors.Wrap(err, "archive: theme footprint not found")
	}

	if existing, err := a.activeRecord(models.ItemTypeTheme, slug); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	snapshot := a.snapshotDir(models.ItemTypeTheme, slug)
	if err := copyFootprint(footprint, snapshot); err != nil {
		_ = os.RemoveAll(snapshot)
		return nil, errors.Wrap(err, "archive: failed to copy theme footprint")
	}

	size, count := footprintStats(snapshot)
	record := &models.ArchiveRecord{
		ItemType:     models.ItemTypeTheme,
		ItemID:       slug,
		ItemName:     slug,
		ItemSlug:     slug,
		ArchivePath:  snapshot,
		OriginalPath: footprint,
		FileSize:     size,
		FileCount:    count,
		DeleteType:   models.DeleteTypeFilesOnly,
		DeletedBy:    deletedBy,
	}
	if err := a.createRecord(record); err != nil {
		_ = os.RemoveAll(snapshot)
		return nil, err
	}

	if err := os.RemoveAll(footprint); err != nil {
		return nil, errors.Wrap(err, "archive: failed to delete theme files")
	}

	a.log.Info("Theme archived", slug, map[string]interface{}{
		"item_id":    slug,
		"file_count": count,
	})
	return record, nil
}

func (a *Archive) restoreTheme(r *models.ArchiveRecord) error {
	if _, err := os.Stat(r.ArchivePath); err != nil {
		return errors.Wrap(err, "archive: snapshot files are missing")
	}
	if _, err := os.Stat(r.OriginalPath); err == nil {
		return errors.New("archive: a theme already exists at the original location")
	}
	if err := copyFootprint(r.ArchivePath, r.OriginalPath); err != nil {
		_ = os.RemoveAll(r.OriginalPath)
		return errors.Wrap(err, "archive: failed to copy theme files back")
	}
	return nil
}
