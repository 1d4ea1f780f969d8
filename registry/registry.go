// Package registry provides the data access layer for the module registry
// table. It carries no business rules; lifecycle decisions live in the
// loader.
package registry

import (
	"time"

	"emperror.dev/errors"
	"gorm.io/gorm"

	"github.com/onyxcmd/onyxd/internal/models"
)

// ErrNotFound is returned when no registry row exists for a module id.
var ErrNotFound = errors.New("registry: module not found")

type Registry struct {
	db *gorm.DB
}

// New returns a Registry backed by the given database handle. One instance
// is constructed at boot and shared by reference.
func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Get returns the registry row for a module id.
func (r *Registry) Get(moduleID string) (*models.Module, error) {
	var m models.Module
	if err := r.db.Where("module_id = ?", moduleID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "registry: failed to query module")
	}
	return &m, nil
}

// All returns every registered module ordered by name.
func (r *Registry) All() ([]models.Module, error) {
	var out []models.Module
	if err := r.db.Order("name asc").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "registry: failed to list modules")
	}
	return out, nil
}

// ByStatus returns every module with the given status ordered by name.
func (r *Registry) ByStatus(status string) ([]models.Module, error) {
	var out []models.Module
	if err := r.db.Where("status = ?", status).Order("name asc").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "registry: failed to list modules by status")
	}
	return out, nil
}

// Exists reports whether a module id is already registered.
func (r *Registry) Exists(moduleID string) (bool, error) {
	var n int64
	if err := r.db.Model(&models.Module{}).Where("module_id = ?", moduleID).Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "registry: failed to check module existence")
	}
	return n > 0, nil
}

// Insert creates a new registry row.
func (r *Registry) Insert(m *models.Module) error {
	if err := r.db.Create(m).Error; err != nil {
		return errors.Wrap(err, "registry: failed to insert module")
	}
	return nil
}

// Update persists the full module row.
func (r *Registry) Update(m *models.Module) error {
	if err := r.db.Save(m).Error; err != nil {
		return errors.Wrap(err, "registry: failed to update module")
	}
	return nil
}

// UpdateStatus flips a module's status without touching other columns.
func (r *Registry) UpdateStatus(moduleID, status string) error {
	res := r.db.Model(&models.Module{}).Where("module_id = ?", moduleID).Update("status", status)
	if res.Error != nil {
		return errors.Wrap(res.Error, "registry: failed to update module status")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConfig replaces the module's configuration blob.
func (r *Registry) SetConfig(moduleID, config string) error {
	res := r.db.Model(&models.Module{}).Where("module_id = ?", moduleID).Update("config", config)
	if res.Error != nil {
		return errors.Wrap(res.Error, "registry: failed to update module config")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchExecution records a successful module execution by bumping the
// counter and stamping the execution time.
func (r *Registry) TouchExecution(moduleID string) error {
	now := time.Now()
	res := r.db.Model(&models.Module{}).Where("module_id = ?", moduleID).Updates(map[string]interface{}{
		"execution_count": gorm.Expr("execution_count + 1"),
		"last_executed":   &now,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "registry: failed to record module execution")
	}
	return r.RecordSample(moduleID, StatKeyExecution, "1")
}

// Delete removes the registry row for a module id.
func (r *Registry) Delete(moduleID string) error {
	res := r.db.Where("module_id = ?", moduleID).Delete(&models.Module{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "registry: failed to delete module")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
