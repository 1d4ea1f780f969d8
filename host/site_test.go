package host_test

import (
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/onyxcmd/onyxd/host"
	"github.com/onyxcmd/onyxd/internal/database"
)

func newTestSite(t *testing.T) (*host.Site, *gorm.DB) {
	t.Helper()
	db, err := database.InitializeForTest(host.Models()...)
	if err != nil {
		t.Fatalf("failed to initialize test database: %s", err)
	}
	return host.NewSite(db, t.TempDir()), db
}

func TestPluginSlug(t *testing.T) {
	cases := map[string]string{
		"akismet/akismet.php": "akismet",
		"hello.php":           "hello",
		"my-plugin/main.php":  "my-plugin",
	}
	for in, want := range cases {
		if got := host.PluginSlug(in); got != want {
			t.Errorf("PluginSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPluginPath(t *testing.T) {
	s, _ := newTestSite(t)

	dir := s.PluginPath("akismet/akismet.php")
	if dir != filepath.Join(s.PluginsDir(), "akismet") {
		t.Errorf("expected the plugin directory, got %q", dir)
	}
	single := s.PluginPath("hello.php")
	if single != filepath.Join(s.PluginsDir(), "hello.php") {
		t.Errorf("expected the single file, got %q", single)
	}
}

func TestReadPluginInfo(t *testing.T) {
	s, _ := newTestSite(t)

	dir := filepath.Join(s.PluginsDir(), "sample")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create plugin dir: %s", err)
	}
	src := `<?php
/*
Plugin Name: Sample Plugin
Description: Does sample things.
Version: 3.2.1
Author: Sam
*/
`
	if err := os.WriteFile(filepath.Join(dir, "sample.php"), []byte(src), 0o644); err != nil {
		t.Fatalf("failed to write plugin file: %s", err)
	}

	info := s.ReadPluginInfo("sample/sample.php")
	if info.Name != "Sample Plugin" || info.Version != "3.2.1" || info.Author != "Sam" {
		t.Errorf("unexpected plugin info: %+v", info)
	}

	// Unreadable files fall back to the slug as the name.
	info = s.ReadPluginInfo("missing/missing.php")
	if info.Name != "missing" {
		t.Errorf("expected slug fallback, got %q", info.Name)
	}
}

func TestActivePluginsRoundTrip(t *testing.T) {
	s, _ := newTestSite(t)

	active, err := s.ActivePlugins()
	if err != nil {
		t.Fatalf("query failed: %s", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active plugins initially, got %v", active)
	}

	if err := s.ActivatePlugin("one/one.php"); err != nil {
		t.Fatalf("activate failed: %s", err)
	}
	if err := s.ActivatePlugin("two/two.php"); err != nil {
		t.Fatalf("activate failed: %s", err)
	}
	// Activating twice must not duplicate the entry.
	if err := s.ActivatePlugin("one/one.php"); err != nil {
		t.Fatalf("re-activate failed: %s", err)
	}

	active, _ = s.ActivePlugins()
	if len(active) != 2 {
		t.Fatalf("expected 2 active plugins, got %v", active)
	}

	if err := s.DeactivatePlugin("one/one.php"); err != nil {
		t.Fatalf("deactivate failed: %s", err)
	}
	active, _ = s.ActivePlugins()
	if len(active) != 1 || active[0] != "two/two.php" {
		t.Errorf("expected only two/two.php active, got %v", active)
	}
}

func TestOptionsMatching(t *testing.T) {
	s, _ := newTestSite(t)

	for name, value := range map[string]string{
		"my_plugin_settings": "a",
		"my-plugin-version":  "b",
		"unrelated_option":   "c",
	} {
		if err := s.SetOption(name, value); err != nil {
			t.Fatalf("set option failed: %s", err)
		}
	}

	matched, err := s.OptionsMatching("my-plugin")
	if err != nil {
		t.Fatalf("match failed: %s", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected hyphen and underscore variants to match, got %v", matched)
	}
	if _, ok := matched["unrelated_option"]; ok {
		t.Error("unrelated options must not match")
	}

	if matched, err := s.OptionsMatching(""); err != nil || len(matched) != 0 {
		t.Errorf("an empty slug must match nothing, got %v %v", matched, err)
	}
}

func TestOptionLifecycle(t *testing.T) {
	s, _ := newTestSite(t)

	if err := s.SetOption("color", "red"); err != nil {
		t.Fatalf("set failed: %s", err)
	}
	if err := s.SetOption("color", "blue"); err != nil {
		t.Fatalf("update failed: %s", err)
	}
	value, ok, err := s.GetOption("color")
	if err != nil || !ok || value != "blue" {
		t.Errorf("expected blue, got %q %v %v", value, ok, err)
	}

	if err := s.DeleteOption("color"); err != nil {
		t.Fatalf("delete failed: %s", err)
	}
	if _, ok, _ := s.GetOption("color"); ok {
		t.Error("expected the option to be gone")
	}
}

func TestTableDumpAndRestore(t *testing.T) {
	s, db := newTestSite(t)

	if err := db.Exec("CREATE TABLE my_plugin_data (id INTEGER PRIMARY KEY, label TEXT)").Error; err != nil {
		t.Fatalf("failed to create table: %s", err)
	}
	if err := db.Exec("INSERT INTO my_plugin_data (id, label) VALUES (1, 'first'), (2, 'second')").Error; err != nil {
		t.Fatalf("failed to seed table: %s", err)
	}

	dumps, err := s.TablesMatching("my-plugin")
	if err != nil {
		t.Fatalf("match failed: %s", err)
	}
	if len(dumps) != 1 || dumps[0].Name != "my_plugin_data" {
		t.Fatalf("expected my_plugin_data to match, got %+v", dumps)
	}
	if len(dumps[0].Rows) != 2 {
		t.Errorf("expected 2 dumped rows, got %d", len(dumps[0].Rows))
	}

	if err := s.DropTable("my_plugin_data"); err != nil {
		t.Fatalf("drop failed: %s", err)
	}
	if err := s.RestoreTable(dumps[0]); err != nil {
		t.Fatalf("restore failed: %s", err)
	}

	var n int64
	if err := db.Raw("SELECT COUNT(*) FROM my_plugin_data").Scan(&n).Error; err != nil {
		t.Fatalf("failed to count restored rows: %s", err)
	}
	if n != 2 {
		t.Errorf("expected 2 restored rows, got %d", n)
	}

	// Restoring over an existing table is a no-op, not an error.
	if err := s.RestoreTable(dumps[0]); err != nil {
		t.Errorf("restore over existing table must be a no-op, got %s", err)
	}
}

func TestDropTableGuards(t *testing.T) {
	s, _ := newTestSite(t)

	for _, name := range []string{"modules", "log_entries", "archive_records", "statistics", "host_posts", "sqlite_master"} {
		if err := s.DropTable(name); err == nil {
			t.Errorf("expected dropping %q to be refused", name)
		}
	}
}

func TestTablesMatchingExcludesDaemonTables(t *testing.T) {
	s, _ := newTestSite(t)

	// "modules" contains the needle but is a daemon table.
	dumps, err := s.TablesMatching("modules")
	if err != nil {
		t.Fatalf("match failed: %s", err)
	}
	for _, d := range dumps {
		if d.Name == "modules" {
			t.Error("daemon tables must never be matched")
		}
	}
}
