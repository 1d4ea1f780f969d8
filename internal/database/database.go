package database

import (
	"path/filepath"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/host"
	"github.com/onyxcmd/onyxd/internal/models"
)

var (
	o  sync.Once
	db *gorm.DB
)

// Initialize configures the database connection used by the daemon and
// runs the automatic migrations for its models. This must be called before
// Instance.
func Initialize() error {
	var err error
	o.Do(func() {
		p := filepath.Join(config.Get().System.RootDirectory, "onyxd.db")
		db, err = gorm.Open(sqlite.Open(p), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			err = errors.Wrap(err, "database: could not open database file")
			return
		}
		sql, serr := db.DB()
		if serr != nil {
			err = errors.WithStack(serr)
			return
		}
		sql.SetMaxOpenConns(1)
		sql.SetConnMaxLifetime(time.Hour)

		dst := []interface{}{
			&models.Module{},
			&models.LogEntry{},
			&models.ArchiveRecord{},
			&models.Statistic{},
		}
		dst = append(dst, host.Models()...)
		err = errors.Wrap(db.AutoMigrate(dst...), "database: failed to migrate models")
	})
	return err
}

// Instance returns the gorm database instance that was configured when the
// application was booted.
func Instance() *gorm.DB {
	if db == nil {
		panic("database: attempt to access instance before initialized")
	}
	return db
}

// InitializeForTest opens an in-memory database and migrates the given
// models, bypassing the package singleton. Used by tests that need an
// isolated store.
func InitializeForTest(dst ...interface{}) (*gorm.DB, error) {
	tdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := tdb.AutoMigrate(dst...); err != nil {
		return nil, errors.WithStack(err)
	}
	return tdb, nil
}
