package registry

import (
	"testing"

	"github.com/onyxcmd/onyxd/internal/database"
	"github.com/onyxcmd/onyxd/internal/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := database.InitializeForTest(&models.Module{}, &models.Statistic{})
	if err != nil {
		t.Fatalf("failed to initialize test database: %s", err)
	}
	return New(db)
}

func TestRegistryLifecycle(t *testing.T) {
	r := newTestRegistry(t)

	m := &models.Module{
		ModuleID: "demo",
		Name:     "Demo",
		FilePath: "demo/demo.php",
		Status:   models.ModuleStatusInactive,
	}
	if err := r.Insert(m); err != nil {
		t.Fatalf("insert failed: %s", err)
	}

	got, err := r.Get("demo")
	if err != nil {
		t.Fatalf("get failed: %s", err)
	}
	if got.Name != "Demo" || got.Status != models.ModuleStatusInactive {
		t.Errorf("unexpected row: %+v", got)
	}

	if exists, err := r.Exists("demo"); err != nil || !exists {
		t.Errorf("expected demo to exist, got %v %v", exists, err)
	}
	if exists, err := r.Exists("ghost"); err != nil || exists {
		t.Errorf("expected ghost to not exist, got %v %v", exists, err)
	}

	if err := r.UpdateStatus("demo", models.ModuleStatusActive); err != nil {
		t.Fatalf("status update failed: %s", err)
	}
	got, _ = r.Get("demo")
	if !got.Active() {
		t.Errorf("expected demo to be active, got %q", got.Status)
	}

	if err := r.Delete("demo"); err != nil {
		t.Fatalf("delete failed: %s", err)
	}
	if _, err := r.Get("demo"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRegistryNotFoundErrors(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Get("missing"); err != ErrNotFound {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if err := r.UpdateStatus("missing", models.ModuleStatusActive); err != ErrNotFound {
		t.Errorf("UpdateStatus: expected ErrNotFound, got %v", err)
	}
	if err := r.SetConfig("missing", "{}"); err != ErrNotFound {
		t.Errorf("SetConfig: expected ErrNotFound, got %v", err)
	}
	if err := r.Delete("missing"); err != ErrNotFound {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
}

func TestByStatus(t *testing.T) {
	r := newTestRegistry(t)

	rows := []*models.Module{
		{ModuleID: "b-mod", Name: "Bravo", FilePath: "b/b.php", Status: models.ModuleStatusActive},
		{ModuleID: "a-mod", Name: "Alpha", FilePath: "a/a.php", Status: models.ModuleStatusActive},
		{ModuleID: "c-mod", Name: "Charlie", FilePath: "c/c.php", Status: models.ModuleStatusInactive},
	}
	for _, m := range rows {
		if err := r.Insert(m); err != nil {
			t.Fatalf("insert failed: %s", err)
		}
	}

	active, err := r.ByStatus(models.ModuleStatusActive)
	if err != nil {
		t.Fatalf("query failed: %s", err)
	}
	if len(active) != 2 || active[0].Name != "Alpha" || active[1].Name != "Bravo" {
		t.Errorf("expected active modules ordered by name, got %+v", active)
	}
}

func TestTouchExecution(t *testing.T) {
	r := newTestRegistry(t)

	m := &models.Module{ModuleID: "runner", Name: "Runner", FilePath: "r/r.php"}
	if err := r.Insert(m); err != nil {
		t.Fatalf("insert failed: %s", err)
	}

	if err := r.TouchExecution("runner"); err != nil {
		t.Fatalf("first touch failed: %s", err)
	}
	if err := r.TouchExecution("runner"); err != nil {
		t.Fatalf("second touch failed: %s", err)
	}

	got, _ := r.Get("runner")
	if got.ExecutionCount != 2 {
		t.Errorf("expected execution count 2, got %d", got.ExecutionCount)
	}
	if got.LastExecuted == nil {
		t.Error("expected last executed to be stamped")
	}

	samples, err := r.SamplesSince(1)
	if err != nil {
		t.Fatalf("aggregation failed: %s", err)
	}
	if len(samples) != 1 || samples[0].ModuleID != "runner" || samples[0].StatKey != StatKeyExecution || samples[0].Count != 2 {
		t.Errorf("unexpected samples: %+v", samples)
	}
}
