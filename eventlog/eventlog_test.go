package eventlog

import (
	"bytes"
	"encoding/csv"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"gorm.io/gorm"

	"github.com/onyxcmd/onyxd/internal/database"
	"github.com/onyxcmd/onyxd/internal/models"
)

func TestMain(m *testing.M) {
	log.SetHandler(discard.Default)
	os.Exit(m.Run())
}

func newTestLogger(t *testing.T) (*Logger, *gorm.DB) {
	t.Helper()
	db, err := database.InitializeForTest(&models.LogEntry{})
	if err != nil {
		t.Fatalf("failed to initialize test database: %s", err)
	}
	return New(db), db
}

func TestLogLiftsModuleID(t *testing.T) {
	l, db := newTestLogger(t)

	l.Error("Something broke", "details here", map[string]interface{}{
		"module_id": "busted-mod",
		"attempt":   3,
	})

	var e models.LogEntry
	if err := db.First(&e).Error; err != nil {
		t.Fatalf("expected one entry: %s", err)
	}
	if e.ModuleID != "busted-mod" {
		t.Errorf("expected module id to land in its own column, got %q", e.ModuleID)
	}
	if strings.Contains(e.Metadata, "module_id") {
		t.Errorf("module id must be lifted out of the metadata blob, got %q", e.Metadata)
	}
	if !strings.Contains(e.Metadata, "attempt") {
		t.Errorf("expected remaining metadata to be preserved, got %q", e.Metadata)
	}
	if e.LogType != models.LogTypeError {
		t.Errorf("expected error type, got %q", e.LogType)
	}
}

func TestEntriesFilter(t *testing.T) {
	l, _ := newTestLogger(t)

	l.Info("one", "", map[string]interface{}{"module_id": "a"})
	l.Warning("two", "", map[string]interface{}{"module_id": "a"})
	l.Error("three", "", map[string]interface{}{"module_id": "b"})

	byType, err := l.Entries(Filter{LogType: models.LogTypeWarning})
	if err != nil {
		t.Fatalf("query failed: %s", err)
	}
	if len(byType) != 1 || byType[0].Message != "two" {
		t.Errorf("unexpected type filter result: %+v", byType)
	}

	byModule, err := l.Entries(Filter{ModuleID: "a"})
	if err != nil {
		t.Fatalf("query failed: %s", err)
	}
	if len(byModule) != 2 {
		t.Errorf("expected 2 entries for module a, got %d", len(byModule))
	}

	limited, err := l.Entries(Filter{Limit: 1})
	if err != nil {
		t.Fatalf("query failed: %s", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected the limit to apply, got %d entries", len(limited))
	}
}

func TestResolve(t *testing.T) {
	l, db := newTestLogger(t)

	l.Error("unresolved issue", "", nil)
	var e models.LogEntry
	if err := db.First(&e).Error; err != nil {
		t.Fatalf("expected one entry: %s", err)
	}

	if err := l.Resolve(e.ID); err != nil {
		t.Fatalf("resolve failed: %s", err)
	}
	unresolved, err := l.Unresolved()
	if err != nil {
		t.Fatalf("query failed: %s", err)
	}
	if len(unresolved) != 0 {
		t.Errorf("expected no unresolved entries, got %d", len(unresolved))
	}

	if err := l.Resolve(9999); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for a missing id, got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	l, db := newTestLogger(t)

	l.Info("old entry", "", nil)
	l.Info("fresh entry", "", nil)

	old := time.Now().AddDate(0, 0, -45)
	if err := db.Model(&models.LogEntry{}).Where("message = ?", "old entry").Update("created_at", old).Error; err != nil {
		t.Fatalf("failed to age entry: %s", err)
	}

	removed, err := l.Cleanup(30)
	if err != nil {
		t.Fatalf("cleanup failed: %s", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed entry, got %d", removed)
	}

	remaining, _ := l.Entries(Filter{})
	if len(remaining) != 1 || remaining[0].Message != "fresh entry" {
		t.Errorf("expected only the fresh entry to survive, got %+v", remaining)
	}

	// Zero retention disables cleanup entirely.
	if removed, err := l.Cleanup(0); err != nil || removed != 0 {
		t.Errorf("expected a zero retention no-op, got %d %v", removed, err)
	}
}

func TestExportCSV(t *testing.T) {
	l, _ := newTestLogger(t)

	l.Error("broken widget", "stack trace", map[string]interface{}{"module_id": "widget"})
	l.Info("routine note", "", nil)

	var buf bytes.Buffer
	if err := l.Export(&buf, Filter{}); err != nil {
		t.Fatalf("export failed: %s", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %s", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][1] != "Type" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	found := false
	for _, row := range rows[1:] {
		if row[3] == "broken widget" && row[2] == "widget" {
			found = true
		}
	}
	if !found {
		t.Error("expected the error entry in the export")
	}
}

func TestSecurityEntry(t *testing.T) {
	l, db := newTestLogger(t)

	l.Security("authorization_failed", "Rejected request", "admin", "203.0.113.9")

	var e models.LogEntry
	if err := db.First(&e).Error; err != nil {
		t.Fatalf("expected one entry: %s", err)
	}
	if e.LogType != models.LogTypeSecurity {
		t.Errorf("expected security type, got %q", e.LogType)
	}
	if !strings.Contains(e.Metadata, "203.0.113.9") {
		t.Errorf("expected the remote address in metadata, got %q", e.Metadata)
	}
}
