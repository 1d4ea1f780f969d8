// Package optimizer bundles the site janitor actions: flushing the
// transient object cache, compacting the database and removing orphaned
// rows, and trimming old event log entries.
package optimizer

import (
	"time"

	"emperror.dev/errors"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/host"
)

type Optimizer struct {
	db    *gorm.DB
	log   *eventlog.Logger
	cache *cache.Cache
}

func New(db *gorm.DB, log *eventlog.Logger) *Optimizer {
	return &Optimizer{
		db:    db,
		log:   log,
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// Cache exposes the shared transient object cache. Components store
// expensive lookups here; ClearCaches flushes it.
func (o *Optimizer) Cache() *cache.Cache {
	return o.cache
}

// ClearCaches flushes the object cache and reports how many items were
// dropped.
func (o *Optimizer) ClearCaches() int {
	n := o.cache.ItemCount()
	o.cache.Flush()
	o.log.Info("Object cache cleared", "", map[string]interface{}{"items": n})
	return n
}

// DBCleanResult summarizes one database cleanup pass.
type DBCleanResult struct {
	OrphanedPostMeta int64 `json:"orphaned_post_meta"`
	OrphanedUserMeta int64 `json:"orphaned_user_meta"`
	Vacuumed         bool  `json:"vacuumed"`
}

// CleanDatabase deletes meta rows whose parent no longer exists and then
// compacts the database file.
func (o *Optimizer) CleanDatabase() (*DBCleanResult, error) {
	res := &DBCleanResult{}

	q := o.db.Where("post_id NOT IN (SELECT id FROM host_posts)").Delete(&host.PostMeta{})
	if q.Error != nil {
		return nil, errors.Wrap(q.Error, "optimizer: failed to delete orphaned post meta")
	}
	res.OrphanedPostMeta = q.RowsAffected

	q = o.db.Where("user_id NOT IN (SELECT id FROM host_users)").Delete(&host.UserMeta{})
	if q.Error != nil {
		return nil, errors.Wrap(q.Error, "optimizer: failed to delete orphaned user meta")
	}
	res.OrphanedUserMeta = q.RowsAffected

	if err := o.db.Exec("VACUUM").Error; err != nil {
		return nil, errors.Wrap(err, "optimizer: failed to vacuum database")
	}
	res.Vacuumed = true

	o.log.Info("Database cleaned", "", map[string]interface{}{
		"orphaned_post_meta": res.OrphanedPostMeta,
		"orphaned_user_meta": res.OrphanedUserMeta,
	})
	return res, nil
}

// CleanLogs trims event log entries past the configured retention.
func (o *Optimizer) CleanLogs() (int64, error) {
	return o.log.Cleanup(config.Get().Logs.RetentionDays)
}
