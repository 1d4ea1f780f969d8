// Package loader owns the module lifecycle: install, activation,
// deactivation, the boot load pass, and on-demand execution. Modules run
// in disposable interpreter processes so a broken module can never take
// the daemon down; any failure during loading demotes the module to
// inactive and the pass continues.
package loader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"emperror.dev/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/onyxcmd/onyxd/analyzer"
	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/internal/models"
	"github.com/onyxcmd/onyxd/registry"
)

// Upload describes a file handed to Install. The transport layer is
// responsible for spooling the request body to a temporary path first.
type Upload struct {
	// Name is the original client-side filename, used only for extension
	// dispatch.
	Name string
	Size int64
	// Path is the spooled location on disk.
	Path string
}

// Loader wires the registry, the static analyzer, and the subprocess
// runner into the lifecycle operations. One instance is built at boot.
type Loader struct {
	mu sync.Mutex

	registry *registry.Registry
	checker  *analyzer.Checker
	log      *eventlog.Logger
	runner   *Runner

	// booted flips after the first LoadActiveModules call; subsequent
	// calls are no-ops so a restart of the HTTP surface cannot re-run
	// every module's entrypoint.
	booted bool
	// loaded tracks module ids successfully brought up this process.
	loaded map[string]bool
}

func New(reg *registry.Registry, checker *analyzer.Checker, log *eventlog.Logger, runner *Runner) *Loader {
	return &Loader{
		registry: reg,
		checker:  checker,
		log:      log,
		runner:   runner,
		loaded:   make(map[string]bool),
	}
}

func (l *Loader) modulesDir() string {
	return config.Get().Modules.Directory
}

// Install validates an uploaded file and installs it as a new module. The
// returned module row is already persisted. All failures carry a tagged
// *Error so the transport layer can map them onto responses.
func (l *Loader) Install(ctx context.Context, upload Upload) (*models.Module, error) {
	cfg := config.Get()

	if upload.Size <= 0 {
		return nil, newError(CodeUploadFailed, "No file was uploaded or the file is empty.")
	}
	if limit := cfg.Api.UploadLimit * 1024 * 1024; upload.Size > limit {
		return nil, newError(CodeFileTooLarge, "The uploaded file exceeds the configured size limit.")
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(upload.Name)), ".")
	allowed := false
	for _, e := range cfg.Modules.AllowedExtensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, newError(CodeInvalidFile, "Only .php and .zip files can be installed.")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch ext {
	case "zip":
		return l.installFromZip(ctx, upload)
	default:
		return l.installFromPHP(ctx, upload)
	}
}

// installFromPHP installs a single loose source file. The content scan is
// advisory and only logged; the interpreter lint and the conflict check
// are blocking.
func (l *Loader) installFromPHP(ctx context.Context, upload Upload) (*models.Module, error) {
	if findings, err := l.checker.ScanContent(upload.Path); err == nil && len(findings) > 0 {
		l.logSecurityFindings(upload.Name, findings)
	}

	if err := l.runner.Lint(ctx, upload.Path); err != nil {
		return nil, err
	}

	info, err := ParseModuleInfo(upload.Path)
	if err != nil {
		return nil, err
	}

	if conflicts := l.checker.CheckConflicts(upload.Path, info.ModuleID); len(conflicts.Errors) > 0 {
		return nil, newErrorWithDetail(CodeConflictsDetected, "Module conflicts with the host or an installed module.", conflicts.Errors)
	}

	if err := l.ensureNotInstalled(info.ModuleID); err != nil {
		return nil, err
	}

	dest := filepath.Join(l.modulesDir(), info.ModuleID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, errors.Wrap(err, "loader: failed to create module directory")
	}

	base := filepath.Base(upload.Name)
	if err := copyFile(upload.Path, filepath.Join(dest, base)); err != nil {
		_ = os.RemoveAll(dest)
		return nil, errors.Wrap(err, "loader: failed to place module file")
	}

	return l.register(info, filepath.Join(info.ModuleID, base), dest)
}

// installFromZip extracts an archive into scratch space, locates the main
// file, runs the blocking checks, and moves the tree into the modules
// root.
func (l *Loader) installFromZip(ctx context.Context, upload Upload) (*models.Module, error) {
	mime, err := mimetype.DetectFile(upload.Path)
	if err != nil || !mime.Is("application/zip") {
		return nil, newError(CodeInvalidFile, "The uploaded file is not a valid ZIP archive.")
	}

	scratch := filepath.Join(config.Get().System.TmpDirectory, uuid.New().String())
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return nil, errors.Wrap(err, "loader: failed to create extraction directory")
	}
	defer os.RemoveAll(scratch)

	if err := extractZip(ctx, upload.Path, scratch); err != nil {
		return nil, newError(CodeInvalidFile, "Failed to extract the ZIP archive.")
	}

	root := promoteSingleRoot(scratch)

	main := FindMainFile(root)
	if main == "" {
		return nil, newError(CodeNoMainFile, "No module file with a valid header block was found in the archive.")
	}

	if findings, err := l.checker.ScanContent(main); err == nil && len(findings) > 0 {
		l.logSecurityFindings(upload.Name, findings)
	}

	if err := l.runner.Lint(ctx, main); err != nil {
		return nil, err
	}

	info, err := ParseModuleInfo(main)
	if err != nil {
		return nil, err
	}

	if conflicts := l.checker.CheckConflicts(main, info.ModuleID); len(conflicts.Errors) > 0 {
		return nil, newErrorWithDetail(CodeConflictsDetected, "Module conflicts with the host or an installed module.", conflicts.Errors)
	}

	if err := l.ensureNotInstalled(info.ModuleID); err != nil {
		return nil, err
	}

	dest := filepath.Join(l.modulesDir(), info.ModuleID)
	if err := copyDir(root, dest); err != nil {
		_ = os.RemoveAll(dest)
		return nil, errors.Wrap(err, "loader: failed to place module directory")
	}

	rel, err := filepath.Rel(root, main)
	if err != nil {
		_ = os.RemoveAll(dest)
		return nil, errors.Wrap(err, "loader: failed to resolve main file path")
	}

	return l.register(info, filepath.Join(info.ModuleID, rel), dest)
}

// ensureNotInstalled guards both the registry row and the on-disk
// directory; either one existing blocks the install.
func (l *Loader) ensureNotInstalled(moduleID string) error {
	exists, err := l.registry.Exists(moduleID)
	if err != nil {
		return newError(CodeDBError, "Failed to query the module registry.")
	}
	if exists {
		return newError(CodeModuleExists, "A module with this ID is already installed.")
	}
	if _, err := os.Stat(filepath.Join(l.modulesDir(), moduleID)); err == nil {
		return newError(CodeModuleExists, "A directory for this module ID already exists.")
	}
	return nil
}

func (l *Loader) register(info *ModuleInfo, filePath, dest string) (*models.Module, error) {
	m := &models.Module{
		ModuleID:    info.ModuleID,
		Name:        info.Name,
		Description: info.Description,
		Version:     info.Version,
		Author:      info.Author,
		FilePath:    filePath,
		Status:      models.ModuleStatusInactive,
		Entrypoint:  info.Entrypoint,
	}
	if err := l.registry.Insert(m); err != nil {
		_ = os.RemoveAll(dest)
		return nil, newError(CodeDBError, "Failed to record the module in the registry.")
	}

	l.log.Info("Module installed", m.Name, map[string]interface{}{
		"module_id": m.ModuleID,
		"version":   m.Version,
	})
	return m, nil
}

func (l *Loader) logSecurityFindings(name string, findings []analyzer.Finding) {
	for _, f := range findings {
		l.log.Security(f.Type, f.Message+" in uploaded file "+name, "installer", "")
	}
}

// Activate marks a module active. This is a pure registry status flip:
// checks ran at install time and a reactivated module is checked again
// during the boot load pass or through the explicit scan action, never
// here. The module is not executed either; execution happens during the
// boot load pass or via ExecuteModule.
func (l *Loader) Activate(moduleID string) error {
	m, err := l.registry.Get(moduleID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return newError(CodeModuleNotFound, "Module not found.")
		}
		return newError(CodeDBError, "Failed to query the module registry.")
	}
	if m.Active() {
		return nil
	}

	if err := l.registry.UpdateStatus(moduleID, models.ModuleStatusActive); err != nil {
		return newError(CodeActivationFailed, "Failed to update module status.")
	}
	l.log.Info("Module activated", m.Name, map[string]interface{}{"module_id": moduleID})
	return nil
}

// Deactivate marks a module inactive and forgets its registered symbols.
func (l *Loader) Deactivate(moduleID string) error {
	m, err := l.registry.Get(moduleID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return newError(CodeModuleNotFound, "Module not found.")
		}
		return newError(CodeDBError, "Failed to query the module registry.")
	}

	if err := l.registry.UpdateStatus(moduleID, models.ModuleStatusInactive); err != nil {
		return newError(CodeDeactivationFailed, "Failed to update module status.")
	}

	l.mu.Lock()
	delete(l.loaded, moduleID)
	l.mu.Unlock()
	l.checker.Symbols().Forget(moduleID)

	l.log.Info("Module deactivated", m.Name, map[string]interface{}{"module_id": moduleID})
	return nil
}

// Delete removes a module's files and registry row. The files go first;
// if the registry delete then fails the scan endpoint can re-register
// nothing, which is the safer direction.
func (l *Loader) Delete(moduleID string) error {
	m, err := l.registry.Get(moduleID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return newError(CodeModuleNotFound, "Module not found.")
		}
		return newError(CodeDBError, "Failed to query the module registry.")
	}

	dir := filepath.Join(l.modulesDir(), moduleID)
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, "loader: failed to remove module directory")
	}
	if err := l.registry.Delete(moduleID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return newError(CodeDBError, "Failed to remove the module from the registry.")
	}

	l.mu.Lock()
	delete(l.loaded, moduleID)
	l.mu.Unlock()
	l.checker.Symbols().Forget(moduleID)

	l.log.Info("Module deleted", m.Name, map[string]interface{}{"module_id": moduleID})
	return nil
}

// LoadResult summarizes a boot load pass.
type LoadResult struct {
	Loaded  int `json:"loaded"`
	Demoted int `json:"demoted"`
	Skipped int `json:"skipped"`
}

// LoadActiveModules runs the boot load pass: every active module is
// checked for existence, linted, and executed in an isolated process.
// Any failure demotes the module to inactive, logs the reason, and moves
// on; one broken module never prevents the rest from loading. The pass
// runs at most once per process.
func (l *Loader) LoadActiveModules(ctx context.Context) (*LoadResult, error) {
	l.mu.Lock()
	if l.booted {
		l.mu.Unlock()
		return &LoadResult{}, nil
	}
	l.booted = true
	l.mu.Unlock()

	active, err := l.registry.ByStatus(models.ModuleStatusActive)
	if err != nil {
		return nil, errors.Wrap(err, "loader: failed to list active modules")
	}

	res := &LoadResult{}
	for i := range active {
		m := &active[i]
		if err := l.loadOne(ctx, m); err != nil {
			res.Demoted++
			continue
		}
		res.Loaded++
	}
	return res, nil
}

// loadOne brings a single module up. Every failure path demotes the
// module and records an error entry.
func (l *Loader) loadOne(ctx context.Context, m *models.Module) error {
	path := filepath.Join(l.modulesDir(), m.FilePath)

	if _, err := os.Stat(path); err != nil {
		l.demote(m, "Module file missing on disk, deactivated.", map[string]interface{}{
			"file_path": m.FilePath,
		})
		return errors.New("loader: module file missing")
	}

	if err := l.runner.Lint(ctx, path); err != nil {
		detail := ""
		if e, ok := AsError(err); ok {
			detail, _ = e.Detail.(string)
		}
		l.demote(m, "Syntax error in module, deactivated.", map[string]interface{}{
			"lint_output": detail,
		})
		return err
	}

	output, err := l.runner.Execute(ctx, path, m.Entrypoint)
	if err != nil {
		reason := "Module crashed during load, deactivated."
		if errors.Is(err, ErrExecTimeout) {
			reason = "Module timed out during load, deactivated."
		}
		l.demote(m, reason, map[string]interface{}{
			"output": trimOutput(output),
		})
		return err
	}

	if err := l.checker.Symbols().RegisterFile(m.ModuleID, path); err != nil {
		l.log.Warning("Failed to register module symbols", m.Name, map[string]interface{}{
			"module_id": m.ModuleID,
		})
	}
	_ = l.registry.TouchExecution(m.ModuleID)

	l.mu.Lock()
	l.loaded[m.ModuleID] = true
	l.mu.Unlock()
	return nil
}

func (l *Loader) demote(m *models.Module, message string, details map[string]interface{}) {
	if err := l.registry.UpdateStatus(m.ModuleID, models.ModuleStatusInactive); err != nil {
		l.log.Error("Failed to deactivate broken module", m.Name, map[string]interface{}{
			"module_id": m.ModuleID,
		})
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	details["module_id"] = m.ModuleID
	l.log.Error(message, m.Name, details)
}

// ExecuteModule runs an active module on demand and returns the process
// output. Unlike the boot pass, a failure here does not demote the
// module; the operator asked for the run and gets the error back
// directly.
func (l *Loader) ExecuteModule(ctx context.Context, moduleID string) (string, error) {
	m, err := l.registry.Get(moduleID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return "", newError(CodeModuleNotFound, "Module not found.")
		}
		return "", newError(CodeDBError, "Failed to query the module registry.")
	}
	if !m.Active() {
		return "", newError(CodeActivationFailed, "Module must be active to execute.")
	}

	path := filepath.Join(l.modulesDir(), m.FilePath)
	output, err := l.runner.Execute(ctx, path, m.Entrypoint)
	if err != nil {
		return trimOutput(output), err
	}
	_ = l.registry.TouchExecution(moduleID)
	return output, nil
}

// Loaded reports whether a module was brought up during this process's
// boot pass.
func (l *Loader) Loaded(moduleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded[moduleID]
}

// ScanAndRegisterModules walks the modules root and registers any module
// directory that has a valid main file but no registry row. Recovered
// modules come back inactive.
func (l *Loader) ScanAndRegisterModules() (int, error) {
	entries, err := os.ReadDir(l.modulesDir())
	if err != nil {
		return 0, errors.Wrap(err, "loader: failed to read modules directory")
	}

	registered := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(l.modulesDir(), e.Name())
		main := FindMainFile(dir)
		if main == "" {
			continue
		}
		info, err := ParseModuleInfo(main)
		if err != nil {
			continue
		}
		exists, err := l.registry.Exists(info.ModuleID)
		if err != nil || exists {
			continue
		}
		rel, err := filepath.Rel(l.modulesDir(), main)
		if err != nil {
			continue
		}
		m := &models.Module{
			ModuleID:    info.ModuleID,
			Name:        info.Name,
			Description: info.Description,
			Version:     info.Version,
			Author:      info.Author,
			FilePath:    rel,
			Status:      models.ModuleStatusInactive,
			Entrypoint:  info.Entrypoint,
		}
		if err := l.registry.Insert(m); err != nil {
			continue
		}
		registered++
		l.log.Info("Module discovered on disk and registered", m.Name, map[string]interface{}{
			"module_id": m.ModuleID,
		})
	}
	return registered, nil
}

// UpdateConfig replaces a module's configuration blob with the given
// values.
func (l *Loader) UpdateConfig(moduleID string, values map[string]interface{}) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return newError(CodeInvalidFile, "Module configuration is not serializable.")
	}
	if err := l.registry.SetConfig(moduleID, string(raw)); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return newError(CodeModuleNotFound, "Module not found.")
		}
		return newError(CodeDBError, "Failed to update module configuration.")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func trimOutput(s string) string {
	const max = 2000
	if len(s) > max {
		return s[:max]
	}
	return s
}
