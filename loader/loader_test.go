package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"gorm.io/gorm"

	"github.com/onyxcmd/onyxd/analyzer"
	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/internal/database"
	"github.com/onyxcmd/onyxd/internal/models"
	"github.com/onyxcmd/onyxd/registry"
)

func TestMain(m *testing.M) {
	log.SetHandler(discard.Default)
	os.Exit(m.Run())
}

// newTestLoader builds a loader against an in-memory database and a
// scratch modules root. The runner binary is a no-op so lint and
// execution always succeed without an interpreter installed.
func newTestLoader(t *testing.T) (*Loader, *registry.Registry, *gorm.DB) {
	t.Helper()

	c, err := config.NewAtPath("")
	if err != nil {
		t.Fatalf("failed to build configuration: %s", err)
	}
	c.Modules.Directory = t.TempDir()
	c.System.TmpDirectory = t.TempDir()
	config.Set(c)

	db, err := database.InitializeForTest(&models.Module{}, &models.LogEntry{}, &models.Statistic{})
	if err != nil {
		t.Fatalf("failed to initialize test database: %s", err)
	}

	events := eventlog.New(db)
	reg := registry.New(db)
	checker := analyzer.New(db, events, c.Modules.Directory)
	return New(reg, checker, events, NewRunner("true", 5)), reg, db
}

func spoolUpload(t *testing.T, name, content string) Upload {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to spool upload: %s", err)
	}
	return Upload{Name: name, Size: int64(len(content)), Path: p}
}

const testModuleSource = `<?php
/*
Module ID: test-mod
Module Name: Test Module
Description: A module used in tests.
Version: 1.2.0
Author: Tester
*/
function test_mod_setup() {}
`

func TestInstallLooseFile(t *testing.T) {
	l, reg, _ := newTestLoader(t)

	m, err := l.Install(context.Background(), spoolUpload(t, "hello.php", testModuleSource))
	if err != nil {
		t.Fatalf("expected install to succeed, got %s", err)
	}
	if m.Status != models.ModuleStatusInactive {
		t.Errorf("expected new module to be inactive, got %q", m.Status)
	}
	if m.ExecutionCount != 0 {
		t.Errorf("expected execution count 0, got %d", m.ExecutionCount)
	}
	if m.FilePath != filepath.Join("test-mod", "hello.php") {
		t.Errorf("unexpected file path %q", m.FilePath)
	}
	if _, err := os.Stat(filepath.Join(config.Get().Modules.Directory, m.FilePath)); err != nil {
		t.Errorf("expected module file on disk: %s", err)
	}
	if exists, _ := reg.Exists("test-mod"); !exists {
		t.Error("expected registry row to exist")
	}
}

func TestInstallValidation(t *testing.T) {
	l, _, _ := newTestLoader(t)
	ctx := context.Background()

	_, err := l.Install(ctx, Upload{Name: "x.php", Size: 0, Path: "/nonexistent"})
	if e, ok := AsError(err); !ok || e.Code != CodeUploadFailed {
		t.Errorf("empty upload: expected %s, got %v", CodeUploadFailed, err)
	}

	limit := config.Get().Api.UploadLimit * 1024 * 1024
	_, err = l.Install(ctx, Upload{Name: "x.php", Size: limit + 1, Path: "/nonexistent"})
	if e, ok := AsError(err); !ok || e.Code != CodeFileTooLarge {
		t.Errorf("oversize upload: expected %s, got %v", CodeFileTooLarge, err)
	}

	_, err = l.Install(ctx, spoolUpload(t, "module.txt", testModuleSource))
	if e, ok := AsError(err); !ok || e.Code != CodeInvalidFile {
		t.Errorf("bad extension: expected %s, got %v", CodeInvalidFile, err)
	}
}

func TestInstallDuplicateRejected(t *testing.T) {
	l, _, _ := newTestLoader(t)
	ctx := context.Background()

	if _, err := l.Install(ctx, spoolUpload(t, "hello.php", testModuleSource)); err != nil {
		t.Fatalf("first install failed: %s", err)
	}
	_, err := l.Install(ctx, spoolUpload(t, "hello.php", testModuleSource))
	if e, ok := AsError(err); !ok || e.Code != CodeModuleExists {
		t.Fatalf("expected %s, got %v", CodeModuleExists, err)
	}
}

func TestInstallConflictRejected(t *testing.T) {
	l, reg, _ := newTestLoader(t)

	other := filepath.Join(t.TempDir(), "other.php")
	if err := os.WriteFile(other, []byte("<?php function shared_fn() {}\n"), 0o644); err != nil {
		t.Fatalf("failed to write symbol source: %s", err)
	}
	if err := l.checker.Symbols().RegisterFile("other-mod", other); err != nil {
		t.Fatalf("failed to register symbols: %s", err)
	}

	src := `<?php
// Module ID: clashing
// Module Name: Clashing
function shared_fn() {}
`
	_, err := l.Install(context.Background(), spoolUpload(t, "clashing.php", src))
	e, ok := AsError(err)
	if !ok || e.Code != CodeConflictsDetected {
		t.Fatalf("expected %s, got %v", CodeConflictsDetected, err)
	}
	if e.Detail == nil {
		t.Error("expected conflict detail payload")
	}
	if exists, _ := reg.Exists("clashing"); exists {
		t.Error("no registry row may be created for a rejected module")
	}
	if _, err := os.Stat(filepath.Join(config.Get().Modules.Directory, "clashing")); err == nil {
		t.Error("no module directory may be created for a rejected module")
	}
}

func TestLoadActiveModulesIsolatesFailures(t *testing.T) {
	l, reg, db := newTestLoader(t)
	dir := config.Get().Modules.Directory

	write := func(id string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Join(dir, id), 0o755); err != nil {
			t.Fatalf("failed to create module dir: %s", err)
		}
		src := "<?php\n// Module ID: " + id + "\n// Module Name: " + id + "\nfunction " + id + "_fn() {}\n"
		if err := os.WriteFile(filepath.Join(dir, id, "main.php"), []byte(src), 0o644); err != nil {
			t.Fatalf("failed to write module file: %s", err)
		}
	}
	write("alpha")
	write("gamma")

	for _, id := range []string{"alpha", "beta", "gamma"} {
		err := reg.Insert(&models.Module{
			ModuleID: id,
			Name:     id,
			FilePath: filepath.Join(id, "main.php"),
			Status:   models.ModuleStatusActive,
		})
		if err != nil {
			t.Fatalf("failed to insert module %s: %s", id, err)
		}
	}

	res, err := l.LoadActiveModules(context.Background())
	if err != nil {
		t.Fatalf("boot pass failed: %s", err)
	}
	if res.Loaded != 2 || res.Demoted != 1 {
		t.Fatalf("expected 2 loaded and 1 demoted, got %+v", res)
	}

	beta, err := reg.Get("beta")
	if err != nil {
		t.Fatalf("failed to fetch beta: %s", err)
	}
	if beta.Status != models.ModuleStatusInactive {
		t.Errorf("expected broken module to be demoted, got %q", beta.Status)
	}
	if !l.Loaded("alpha") || !l.Loaded("gamma") {
		t.Error("expected healthy modules to load")
	}

	var n int64
	if err := db.Model(&models.LogEntry{}).Where("module_id = ? AND log_type = ?", "beta", models.LogTypeError).Count(&n).Error; err != nil {
		t.Fatalf("failed to count log entries: %s", err)
	}
	if n != 1 {
		t.Errorf("expected exactly one error entry for the demoted module, got %d", n)
	}

	// The pass only ever runs once per process.
	res, err = l.LoadActiveModules(context.Background())
	if err != nil {
		t.Fatalf("second boot pass errored: %s", err)
	}
	if res.Loaded != 0 || res.Demoted != 0 {
		t.Errorf("expected the second pass to be a no-op, got %+v", res)
	}
}

func TestActivateIsPureStatusFlip(t *testing.T) {
	l, reg, _ := newTestLoader(t)

	if _, err := l.Install(context.Background(), spoolUpload(t, "hello.php", testModuleSource)); err != nil {
		t.Fatalf("install failed: %s", err)
	}

	// Activation must not re-run any checks: a runner that fails every
	// invocation and a missing file on disk may not block the flip.
	broken := New(reg, l.checker, l.log, NewRunner("false", 5))
	if err := os.RemoveAll(filepath.Join(config.Get().Modules.Directory, "test-mod")); err != nil {
		t.Fatalf("failed to remove module files: %s", err)
	}

	if err := broken.Activate("test-mod"); err != nil {
		t.Fatalf("expected activation to be a pure status flip, got %s", err)
	}
	m, err := reg.Get("test-mod")
	if err != nil {
		t.Fatalf("failed to fetch module: %s", err)
	}
	if !m.Active() {
		t.Errorf("expected module to be active, got %q", m.Status)
	}
}

// writeRunnerScript creates an interpreter stand-in whose lint invocation
// always passes but whose execute invocation fails for any path that
// contains "crash".
func writeRunnerScript(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "runner.sh")
	script := `#!/bin/sh
[ "$1" = "-l" ] && exit 0
case "$*" in *crash*) exit 1 ;; esac
exit 0
`
	if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write runner script: %s", err)
	}
	return p
}

func TestLoadActiveModulesDemotesCrashingModule(t *testing.T) {
	l, reg, db := newTestLoader(t)
	l.runner = NewRunner(writeRunnerScript(t), 5)
	dir := config.Get().Modules.Directory

	write := func(id string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Join(dir, id), 0o755); err != nil {
			t.Fatalf("failed to create module dir: %s", err)
		}
		src := "<?php\n// Module ID: " + id + "\n// Module Name: " + id + "\n"
		if err := os.WriteFile(filepath.Join(dir, id, "main.php"), []byte(src), 0o644); err != nil {
			t.Fatalf("failed to write module file: %s", err)
		}
	}
	write("alpha")
	write("crash-mod")

	for _, id := range []string{"alpha", "crash-mod"} {
		err := reg.Insert(&models.Module{
			ModuleID: id,
			Name:     id,
			FilePath: filepath.Join(id, "main.php"),
			Status:   models.ModuleStatusActive,
		})
		if err != nil {
			t.Fatalf("failed to insert module %s: %s", id, err)
		}
	}

	res, err := l.LoadActiveModules(context.Background())
	if err != nil {
		t.Fatalf("boot pass failed: %s", err)
	}
	if res.Loaded != 1 || res.Demoted != 1 {
		t.Fatalf("expected 1 loaded and 1 demoted, got %+v", res)
	}

	// The file exists and lints cleanly; only the execution step fails,
	// and that alone must demote the module without touching the rest.
	m, err := reg.Get("crash-mod")
	if err != nil {
		t.Fatalf("failed to fetch crash-mod: %s", err)
	}
	if m.Status != models.ModuleStatusInactive {
		t.Errorf("expected crashing module to be demoted, got %q", m.Status)
	}
	if !l.Loaded("alpha") {
		t.Error("expected the healthy module to load")
	}
	if l.Loaded("crash-mod") {
		t.Error("a crashing module must not be marked loaded")
	}

	var n int64
	if err := db.Model(&models.LogEntry{}).Where("module_id = ? AND log_type = ?", "crash-mod", models.LogTypeError).Count(&n).Error; err != nil {
		t.Fatalf("failed to count log entries: %s", err)
	}
	if n != 1 {
		t.Errorf("expected exactly one error entry for the crashing module, got %d", n)
	}
}

func TestDeleteRemovesFilesAndRow(t *testing.T) {
	l, reg, _ := newTestLoader(t)

	if _, err := l.Install(context.Background(), spoolUpload(t, "hello.php", testModuleSource)); err != nil {
		t.Fatalf("install failed: %s", err)
	}
	if err := l.Delete("test-mod"); err != nil {
		t.Fatalf("delete failed: %s", err)
	}
	if _, err := os.Stat(filepath.Join(config.Get().Modules.Directory, "test-mod")); !os.IsNotExist(err) {
		t.Error("expected module directory to be removed")
	}
	if exists, _ := reg.Exists("test-mod"); exists {
		t.Error("expected registry row to be removed")
	}

	if err := l.Delete("test-mod"); err == nil {
		t.Error("expected deleting a missing module to fail")
	}
}

func TestScanAndRegisterModules(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	dir := config.Get().Modules.Directory

	if err := os.MkdirAll(filepath.Join(dir, "disk-mod"), 0o755); err != nil {
		t.Fatalf("failed to create module dir: %s", err)
	}
	src := "<?php\n// Module ID: disk-mod\n// Module Name: Disk Module\n"
	if err := os.WriteFile(filepath.Join(dir, "disk-mod", "disk-mod.php"), []byte(src), 0o644); err != nil {
		t.Fatalf("failed to write module file: %s", err)
	}

	n, err := l.ScanAndRegisterModules()
	if err != nil {
		t.Fatalf("scan failed: %s", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 registered module, got %d", n)
	}
	m, err := reg.Get("disk-mod")
	if err != nil {
		t.Fatalf("expected disk-mod to be registered: %s", err)
	}
	if m.Status != models.ModuleStatusInactive {
		t.Errorf("recovered modules must come back inactive, got %q", m.Status)
	}

	// Idempotent: a second sweep registers nothing.
	n, err = l.ScanAndRegisterModules()
	if err != nil {
		t.Fatalf("second scan failed: %s", err)
	}
	if n != 0 {
		t.Errorf("expected 0 registered on second sweep, got %d", n)
	}
}

func TestExecuteModuleRequiresActive(t *testing.T) {
	l, reg, _ := newTestLoader(t)

	err := reg.Insert(&models.Module{
		ModuleID: "idle",
		Name:     "Idle",
		FilePath: "idle/main.php",
		Status:   models.ModuleStatusInactive,
	})
	if err != nil {
		t.Fatalf("insert failed: %s", err)
	}

	_, err = l.ExecuteModule(context.Background(), "idle")
	if e, ok := AsError(err); !ok || e.Code != CodeActivationFailed {
		t.Fatalf("expected %s, got %v", CodeActivationFailed, err)
	}

	_, err = l.ExecuteModule(context.Background(), "ghost")
	if e, ok := AsError(err); !ok || e.Code != CodeModuleNotFound {
		t.Fatalf("expected %s, got %v", CodeModuleNotFound, err)
	}
}
