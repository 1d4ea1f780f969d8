package archive

import (
	"time"

	"emperror.dev/errors"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/onyxcmd/onyxd/internal/models"
)

// TypeCount is one by-type aggregation row.
type TypeCount struct {
	ItemType string `json:"item_type"`
	Count    int64  `json:"count"`
}

// Stats is the archive overview surfaced to operators.
type Stats struct {
	Total        int64       `json:"total"`
	Archived     int64       `json:"archived"`
	Restored     int64       `json:"restored"`
	Expired      int64       `json:"expired"`
	ByType       []TypeCount `json:"by_type"`
	TotalSize    int64       `json:"total_size"`
	ExpiringSoon int64       `json:"expiring_soon"`

	// Disk usage of the filesystem holding the snapshot tree.
	DiskTotal int64   `json:"disk_total"`
	DiskFree  int64   `json:"disk_free"`
	DiskUsed  float64 `json:"disk_used_percent"`
}

// Stats aggregates record counts, snapshot sizes, and the disk state of
// the archive filesystem.
func (a *Archive) Stats() (*Stats, error) {
	s := &Stats{ByType: []TypeCount{}}

	model := a.db.Model(&models.ArchiveRecord{})
	if err := model.Count(&s.Total).Error; err != nil {
		return nil, errors.Wrap(err, "archive: failed to count records")
	}
	for status, dst := range map[string]*int64{
		models.ArchiveStatusArchived: &s.Archived,
		models.ArchiveStatusRestored: &s.Restored,
		models.ArchiveStatusExpired:  &s.Expired,
	} {
		if err := a.db.Model(&models.ArchiveRecord{}).Where("status = ?", status).Count(dst).Error; err != nil {
			return nil, errors.Wrap(err, "archive: failed to count records by status")
		}
	}

	err := a.db.Model(&models.ArchiveRecord{}).
		Select("item_type, count(*) as count").
		Group("item_type").
		Scan(&s.ByType).Error
	if err != nil {
		return nil, errors.Wrap(err, "archive: failed to aggregate by type")
	}

	err = a.db.Model(&models.ArchiveRecord{}).
		Where("status = ?", models.ArchiveStatusArchived).
		Select("coalesce(sum(file_size), 0)").
		Scan(&s.TotalSize).Error
	if err != nil {
		return nil, errors.Wrap(err, "archive: failed to sum snapshot sizes")
	}

	soon := time.Now().AddDate(0, 0, 7)
	err = a.db.Model(&models.ArchiveRecord{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.ArchiveStatusArchived, soon).
		Count(&s.ExpiringSoon).Error
	if err != nil {
		return nil, errors.Wrap(err, "archive: failed to count expiring records")
	}

	if usage, err := disk.Usage(a.root()); err == nil {
		s.DiskTotal = int64(usage.Total)
		s.DiskFree = int64(usage.Free)
		s.DiskUsed = usage.UsedPercent
	}
	return s, nil
}
