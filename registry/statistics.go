package registry

import (
	"time"

	"emperror.dev/errors"

	"github.com/onyxcmd/onyxd/internal/models"
)

// StatKeyExecution is recorded every time a module runs.
const StatKeyExecution = "execution"

// RecordSample appends one statistics sample for a module.
func (r *Registry) RecordSample(moduleID, key, value string) error {
	s := &models.Statistic{
		ModuleID:   moduleID,
		StatKey:    key,
		StatValue:  value,
		RecordedAt: time.Now(),
	}
	return errors.WrapIf(r.db.Create(s).Error, "registry: failed to record statistic")
}

// SampleCount is one per-module aggregation of recorded samples.
type SampleCount struct {
	ModuleID string `json:"module_id"`
	StatKey  string `json:"stat_key"`
	Count    int64  `json:"count"`
}

// SamplesSince aggregates sample counts per module and key over the last
// N days.
func (r *Registry) SamplesSince(days int) ([]SampleCount, error) {
	since := time.Now().AddDate(0, 0, -days)
	var out []SampleCount
	err := r.db.Model(&models.Statistic{}).
		Select("module_id, stat_key, count(*) as count").
		Where("recorded_at >= ?", since).
		Group("module_id, stat_key").
		Scan(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "registry: failed to aggregate statistics")
	}
	return out, nil
}
