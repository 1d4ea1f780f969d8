package eventlog

import (
	"time"

	"emperror.dev/errors"

	"github.com/onyxcmd/onyxd/internal/models"
)

// TypeCount is the number of entries recorded for a log type.
type TypeCount struct {
	LogType string `json:"log_type"`
	Count   int64  `json:"count"`
}

// DayCount is the number of entries of a type recorded on a calendar day.
type DayCount struct {
	Date    string `json:"date"`
	LogType string `json:"log_type"`
	Count   int64  `json:"count"`
}

// ModuleErrorCount ranks modules by the errors and warnings they produced.
type ModuleErrorCount struct {
	ModuleID   string `json:"module_id"`
	ErrorCount int64  `json:"error_count"`
}

// Statistics is the aggregate view rendered on the dashboard.
type Statistics struct {
	ByType             []TypeCount        `json:"by_type"`
	OverTime           []DayCount         `json:"over_time"`
	ProblematicModules []ModuleErrorCount `json:"problematic_modules"`
	UnresolvedCount    int64              `json:"unresolved_count"`
}

// Stats aggregates log activity over the trailing window of days.
func (l *Logger) Stats(days int) (*Statistics, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)
	s := &Statistics{}

	err := l.db.Model(&models.LogEntry{}).
		Select("log_type, count(*) as count").
		Where("created_at >= ?", since).
		Group("log_type").
		Scan(&s.ByType).Error
	if err != nil {
		return nil, errors.Wrap(err, "eventlog: failed to aggregate by type")
	}

	err = l.db.Model(&models.LogEntry{}).
		Select("date(created_at) as date, log_type, count(*) as count").
		Where("created_at >= ?", since).
		Group("date(created_at), log_type").
		Order("date desc").
		Scan(&s.OverTime).Error
	if err != nil {
		return nil, errors.Wrap(err, "eventlog: failed to aggregate over time")
	}

	err = l.db.Model(&models.LogEntry{}).
		Select("module_id, count(*) as error_count").
		Where("log_type in ?", []string{models.LogTypeError, models.LogTypeWarning}).
		Where("created_at >= ?", since).
		Where("module_id <> ''").
		Group("module_id").
		Order("error_count desc").
		Limit(10).
		Scan(&s.ProblematicModules).Error
	if err != nil {
		return nil, errors.Wrap(err, "eventlog: failed to rank modules")
	}

	err = l.db.Model(&models.LogEntry{}).
		Where("log_type = ? and resolved = ?", models.LogTypeError, false).
		Count(&s.UnresolvedCount).Error
	if err != nil {
		return nil, errors.Wrap(err, "eventlog: failed to count unresolved entries")
	}
	return s, nil
}
