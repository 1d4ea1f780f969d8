package archive

import (
	"os"
	"time"

	"emperror.dev/errors"

	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/internal/models"
)

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Expired int `json:"expired"`
	Purged  int `json:"purged"`
}

// Sweep runs the retention pass: archived records past their expiry have
// their snapshot files deleted and flip to expired, and restored or
// expired records older than the secondary grace window are purged from
// the table entirely. Records with no expiry are never selected.
func (a *Archive) Sweep() (*SweepResult, error) {
	now := time.Now()
	res := &SweepResult{}

	var due []models.ArchiveRecord
	err := a.db.Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.ArchiveStatusArchived, now).Find(&due).Error
	if err != nil {
		return nil, errors.Wrap(err, "archive: failed to query expiring records")
	}
	for i := range due {
		r := &due[i]
		if r.ArchivePath != "" {
			if err := os.RemoveAll(r.ArchivePath); err != nil {
				a.log.Error("Failed to remove expired snapshot", r.ItemName, map[string]interface{}{
					"item_type": r.ItemType,
					"item_id":   r.ItemID,
				})
				continue
			}
		}
		r.Status = models.ArchiveStatusExpired
		if err := a.db.Save(r).Error; err != nil {
			return nil, errors.Wrap(err, "archive: failed to mark record expired")
		}
		res.Expired++
	}

	// Secondary hygiene window, independent of the user-facing retention.
	// It counts from the moment the record left archived status: the
	// restore time for restored records, the expiry time for expired ones.
	purgeDays := config.Get().Archive.PurgeAfterDays
	if purgeDays > 0 {
		cutoff := now.AddDate(0, 0, -purgeDays)
		q := a.db.Where(
			"(status = ? AND restored_at <= ?) OR (status = ? AND expires_at <= ?)",
			models.ArchiveStatusRestored, cutoff,
			models.ArchiveStatusExpired, cutoff,
		).Delete(&models.ArchiveRecord{})
		if q.Error != nil {
			return nil, errors.Wrap(q.Error, "archive: failed to purge old records")
		}
		res.Purged = int(q.RowsAffected)
	}

	if res.Expired > 0 || res.Purged > 0 {
		a.log.Info("Archive retention sweep completed", "", map[string]interface{}{
			"expired": res.Expired,
			"purged":  res.Purged,
		})
	}
	return res, nil
}
