// Package eventlog is the centralized append-only sink for structured
// daemon events. Entries are persisted for the operator and mirrored to
// the process logger.
package eventlog

import (
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/onyxcmd/onyxd/internal/models"
)

var ErrNotFound = errors.New("eventlog: entry not found")

type Logger struct {
	db *gorm.DB
}

// Filter narrows log queries. Zero values are ignored.
type Filter struct {
	LogType  string
	ModuleID string
	Resolved *bool
	Limit    int
}

func New(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

// Log appends an entry. The module id is lifted out of the metadata map
// when present so it lands in its own indexed column. Failures to persist
// are reported to the process logger but never propagated; a broken event
// log must not break the operation being logged.
func (l *Logger) Log(logType, message, details string, metadata map[string]interface{}) {
	entry := models.LogEntry{
		LogType: logType,
		Message: message,
		Details: details,
	}
	if metadata != nil {
		if id, ok := metadata["module_id"].(string); ok {
			entry.ModuleID = id
			delete(metadata, "module_id")
		}
		if len(metadata) > 0 {
			if b, err := json.Marshal(metadata); err == nil {
				entry.Metadata = string(b)
			}
		}
	}

	mirror := log.WithField("subsystem", "eventlog").WithField("type", logType)
	if entry.ModuleID != "" {
		mirror = mirror.WithField("module", entry.ModuleID)
	}
	switch logType {
	case models.LogTypeError:
		mirror.Error(message)
	case models.LogTypeWarning, models.LogTypeSecurity:
		mirror.Warn(message)
	default:
		mirror.Info(message)
	}

	if err := l.db.Create(&entry).Error; err != nil {
		log.WithError(err).Error("eventlog: failed to persist log entry")
	}
}

func (l *Logger) Info(message, details string, metadata map[string]interface{}) {
	l.Log(models.LogTypeInfo, message, details, metadata)
}

func (l *Logger) Warning(message, details string, metadata map[string]interface{}) {
	l.Log(models.LogTypeWarning, message, details, metadata)
}

func (l *Logger) Error(message, details string, metadata map[string]interface{}) {
	l.Log(models.LogTypeError, message, details, metadata)
}

// Security records a security relevant event together with the acting
// user and their remote address.
func (l *Logger) Security(event, details, actor, remoteIP string) {
	l.Log(models.LogTypeSecurity, event, details, map[string]interface{}{
		"actor": actor,
		"ip":    remoteIP,
	})
}

// Entries returns log entries matching the filter, newest first.
func (l *Logger) Entries(f Filter) ([]models.LogEntry, error) {
	q := l.db.Model(&models.LogEntry{}).Order("created_at desc")
	if f.LogType != "" {
		q = q.Where("log_type = ?", f.LogType)
	}
	if f.ModuleID != "" {
		q = q.Where("module_id = ?", f.ModuleID)
	}
	if f.Resolved != nil {
		q = q.Where("resolved = ?", *f.Resolved)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.LogEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "eventlog: failed to query entries")
	}
	return out, nil
}

// Unresolved returns every error entry not yet marked resolved.
func (l *Logger) Unresolved() ([]models.LogEntry, error) {
	resolved := false
	return l.Entries(Filter{LogType: models.LogTypeError, Resolved: &resolved})
}

// Resolve flips the resolved flag on a single entry, the only mutation an
// entry ever receives.
func (l *Logger) Resolve(id uint) error {
	res := l.db.Model(&models.LogEntry{}).Where("id = ?", id).Update("resolved", true)
	if res.Error != nil {
		return errors.Wrap(res.Error, "eventlog: failed to resolve entry")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every entry from the log.
func (l *Logger) Clear() error {
	return errors.Wrap(l.db.Where("1 = 1").Delete(&models.LogEntry{}).Error, "eventlog: failed to clear entries")
}

// Cleanup removes entries older than the given retention in days. A
// retention of zero disables cleanup.
func (l *Logger) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res := l.db.Where("created_at < ?", cutoff).Delete(&models.LogEntry{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "eventlog: failed to clean up entries")
	}
	return res.RowsAffected, nil
}
