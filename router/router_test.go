package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/onyxcmd/onyxd/analyzer"
	"github.com/onyxcmd/onyxd/archive"
	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/host"
	"github.com/onyxcmd/onyxd/internal/database"
	"github.com/onyxcmd/onyxd/internal/models"
	"github.com/onyxcmd/onyxd/loader"
	"github.com/onyxcmd/onyxd/optimizer"
	"github.com/onyxcmd/onyxd/registry"
)

func TestMain(m *testing.M) {
	log.SetHandler(discard.Default)
	os.Exit(m.Run())
}

const testToken = "test-token"

func newTestServer(t *testing.T) (*gin.Engine, *registry.Registry) {
	t.Helper()

	c, err := config.NewAtPath("")
	if err != nil {
		t.Fatalf("failed to build configuration: %s", err)
	}
	c.AuthenticationToken = testToken
	c.Modules.Directory = t.TempDir()
	c.System.TmpDirectory = t.TempDir()
	c.Archive.Directory = t.TempDir()
	config.Set(c)

	dst := append([]interface{}{
		&models.Module{}, &models.LogEntry{}, &models.ArchiveRecord{}, &models.Statistic{},
	}, host.Models()...)
	db, err := database.InitializeForTest(dst...)
	if err != nil {
		t.Fatalf("failed to initialize test database: %s", err)
	}

	events := eventlog.New(db)
	site := host.NewSite(db, t.TempDir())
	reg := registry.New(db)
	checker := analyzer.New(db, events, c.Modules.Directory)
	ld := loader.New(reg, checker, events, loader.NewRunner("true", 5))

	r := Configure(Components{
		Loader:    ld,
		Registry:  reg,
		Checker:   checker,
		Archive:   archive.New(db, site, events),
		EventLog:  events,
		Optimizer: optimizer.New(db, events),
		Site:      site,
	})
	return r, reg
}

func request(t *testing.T, r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	if err != nil {
		t.Fatalf("failed to build request: %s", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthorizationRequired(t *testing.T) {
	r, _ := newTestServer(t)

	w := request(t, r, http.MethodGet, "/api/modules", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without a token, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %s", err)
	}
	if body["code"] != "permission_denied" {
		t.Errorf("expected permission_denied, got %v", body["code"])
	}

	if w := request(t, r, http.MethodGet, "/api/modules", "wrong-token"); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 with a bad token, got %d", w.Code)
	}
}

func TestCORSPreflightIsOpen(t *testing.T) {
	r, _ := newTestServer(t)

	w := request(t, r, http.MethodOptions, "/api/modules", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS headers on preflight")
	}
}

func TestGetModules(t *testing.T) {
	r, reg := newTestServer(t)

	err := reg.Insert(&models.Module{
		ModuleID: "listed",
		Name:     "Listed",
		FilePath: "listed/listed.php",
		Status:   models.ModuleStatusInactive,
	})
	if err != nil {
		t.Fatalf("insert failed: %s", err)
	}

	w := request(t, r, http.MethodGet, "/api/modules", testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Data []models.Module `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %s", err)
	}
	if len(body.Data) != 1 || body.Data[0].ModuleID != "listed" {
		t.Errorf("unexpected listing: %+v", body.Data)
	}
}

func TestGetModuleNotFound(t *testing.T) {
	r, _ := newTestServer(t)

	w := request(t, r, http.MethodGet, "/api/modules/ghost", testToken)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %s", err)
	}
	if body["code"] != "module_not_found" {
		t.Errorf("expected module_not_found, got %v", body["code"])
	}
	if body["request_id"] == "" || w.Header().Get("X-Request-Id") == "" {
		t.Error("expected a request id on error responses")
	}
}

func TestGetLogs(t *testing.T) {
	r, _ := newTestServer(t)

	w := request(t, r, http.MethodGet, "/api/logs?type=error", testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestArchiveListEmpty(t *testing.T) {
	r, _ := newTestServer(t)

	w := request(t, r, http.MethodGet, "/api/archive", testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body ArchiveListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %s", err)
	}
	if body.Total != 0 {
		t.Errorf("expected an empty archive, got total %d", body.Total)
	}
}

func TestArchiveRestoreUnknownID(t *testing.T) {
	r, _ := newTestServer(t)

	w := request(t, r, http.MethodPost, "/api/archive/9999/restore", testToken)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
