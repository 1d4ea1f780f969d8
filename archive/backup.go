package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/mholt/archives"

	"github.com/onyxcmd/onyxd/internal/models"
)

// backupManifest is the metadata.json embedded in every backup bundle.
type backupManifest struct {
	CreatedAt time.Time              `json:"created_at"`
	Records   []models.ArchiveRecord `json:"records"`
}

// CreateBackup bundles archived snapshots plus a metadata manifest into
// a single ZIP under the backups directory. A zero recordID bundles
// every archived item; otherwise only the named record.
func (a *Archive) CreateBackup(ctx context.Context, recordID uint) (string, error) {
	var records []models.ArchiveRecord
	q := a.db.Where("status = ?", models.ArchiveStatusArchived)
	if recordID != 0 {
		q = q.Where("id = ?", recordID)
	}
	if err := q.Find(&records).Error; err != nil {
		return "", errors.Wrap(err, "archive: failed to query records for backup")
	}
	if len(records) == 0 {
		return "", ErrNotFound
	}

	manifest, err := json.MarshalIndent(backupManifest{CreatedAt: time.Now(), Records: records}, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "archive: failed to encode backup manifest")
	}
	manifestPath := filepath.Join(a.root(), "backups", ".metadata.json")
	if err := os.WriteFile(manifestPath, manifest, 0o600); err != nil {
		return "", errors.Wrap(err, "archive: failed to write backup manifest")
	}
	defer os.Remove(manifestPath)

	sources := map[string]string{manifestPath: "metadata.json"}
	for _, r := range records {
		if r.ArchivePath == "" {
			continue
		}
		if _, err := os.Stat(r.ArchivePath); err != nil {
			return "", errors.Wrap(err, "archive: snapshot files are missing for backup")
		}
		sources[r.ArchivePath] = filepath.Join("snapshots", typeDir(r.ItemType), filepath.Base(r.ArchivePath))
	}

	files, err := archives.FilesFromDisk(ctx, nil, sources)
	if err != nil {
		return "", errors.Wrap(err, "archive: failed to collect backup files")
	}

	dst := filepath.Join(a.root(), "backups", fmt.Sprintf("backup_%s.zip", time.Now().Format("2006-01-02_150405")))
	out, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrap(err, "archive: failed to create backup file")
	}
	defer out.Close()

	format := archives.Zip{}
	if err := format.Archive(ctx, out, files); err != nil {
		_ = os.Remove(dst)
		return "", errors.Wrap(err, "archive: failed to write backup bundle")
	}

	a.log.Info("Archive backup created", filepath.Base(dst), map[string]interface{}{
		"records": len(records),
	})
	return dst, nil
}
