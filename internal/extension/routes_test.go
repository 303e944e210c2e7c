package extension

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
)

func newTestRouter(t *testing.T, m *Manager) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	m.RegisterRoutes(r.Group(""))
	return r
}

func TestHandleInstallAndList(t *testing.T) {
	manifest := manifestFixture("a.routed", "index.js", "")
	manifestJSON, _ := json.Marshal(manifest)
	srv := newTestServer(t, extmodel.Registry{}, map[string]string{
		"/ext/a.routed/manifest.json": string(manifestJSON),
		"/ext/routed/index.js":        `export function activate(){ return {}; }`,
	})
	m := newTestManager(t, srv)
	r := newTestRouter(t, m)

	body := strings.NewReader(`{"manifestUrl":"/ext/a.routed/manifest.json"}`)
	req := httptest.NewRequest(http.MethodPost, "/extensions/install", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("install: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/extensions", nil)
	listRec := httptest.NewRecorder()
	r.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", listRec.Code)
	}
	if !strings.Contains(listRec.Body.String(), "a.routed") {
		t.Errorf("expected listed extensions to include a.routed, got %s", listRec.Body.String())
	}
}

func TestHandleDisableUnknownExtensionReturns404(t *testing.T) {
	srv := newTestServer(t, extmodel.Registry{}, nil)
	m := newTestManager(t, srv)
	r := newTestRouter(t, m)

	req := httptest.NewRequest(http.MethodPost, "/extensions/does.not.exist/disable", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleUninstallUnknownExtensionReturns404(t *testing.T) {
	srv := newTestServer(t, extmodel.Registry{}, nil)
	m := newTestManager(t, srv)
	r := newTestRouter(t, m)

	req := httptest.NewRequest(http.MethodDelete, "/extensions/does.not.exist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleExecuteCommandRoutesToRegisteredHandler(t *testing.T) {
	manifest := manifestFixture("a.cmdroute", "index.js", "")
	manifestJSON, _ := json.Marshal(manifest)
	srv := newTestServer(t, extmodel.Registry{}, map[string]string{
		"/ext/a.cmdroute/manifest.json": string(manifestJSON),
		"/ext/cmdroute/index.js": `
			export function activate(context) {
				context.commands.register("cmdroute.echo", function(args, ctx){ return args.text; });
				return {};
			}
		`,
	})
	m := newTestManager(t, srv)
	r := newTestRouter(t, m)
	if _, err := m.Install("/ext/a.cmdroute/manifest.json"); err != nil {
		t.Fatalf("install: %v", err)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/commands", nil)
	listRec := httptest.NewRecorder()
	r.ServeHTTP(listRec, listReq)
	if !strings.Contains(listRec.Body.String(), "cmdroute.echo") {
		t.Fatalf("expected command list to include cmdroute.echo, got %s", listRec.Body.String())
	}

	body := strings.NewReader(`{"args":{"text":"hi"}}`)
	req := httptest.NewRequest(http.MethodPost, "/commands/cmdroute.echo/execute", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "hi") {
		t.Errorf("expected result to contain echoed text, got %s", rec.Body.String())
	}
}

func TestHandleExecuteCommandUnknownNameFails(t *testing.T) {
	srv := newTestServer(t, extmodel.Registry{}, nil)
	m := newTestManager(t, srv)
	r := newTestRouter(t, m)

	req := httptest.NewRequest(http.MethodPost, "/commands/does.not.exist/execute", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for unknown command, got %d", rec.Code)
	}
}

func TestHandleListPanelsAndActivate(t *testing.T) {
	manifest := manifestFixture("a.panelroute", "index.js", "")
	manifestJSON, _ := json.Marshal(manifest)
	srv := newTestServer(t, extmodel.Registry{}, map[string]string{
		"/ext/a.panelroute/manifest.json": string(manifestJSON),
		"/ext/panelroute/index.js": `
			export function activate(context) {
				context.sidebar.registerPanel("main", { title: "Main", icon: "", component: null, order: 0 });
				return {};
			}
		`,
	})
	m := newTestManager(t, srv)
	r := newTestRouter(t, m)
	if _, err := m.Install("/ext/a.panelroute/manifest.json"); err != nil {
		t.Fatalf("install: %v", err)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/sidebar/panels", nil)
	listRec := httptest.NewRecorder()
	r.ServeHTTP(listRec, listReq)
	if !strings.Contains(listRec.Body.String(), "Main") {
		t.Fatalf("expected panel list to include Main, got %s", listRec.Body.String())
	}

	activateReq := httptest.NewRequest(http.MethodPost, "/sidebar/panels/a.panelroute.main/activate", nil)
	activateRec := httptest.NewRecorder()
	r.ServeHTTP(activateRec, activateReq)
	if activateRec.Code != http.StatusOK {
		t.Errorf("activate: expected 200, got %d", activateRec.Code)
	}
}

func TestHandleInstallZipInstallsFromUploadedArchive(t *testing.T) {
	srv := newTestServer(t, extmodel.Registry{}, nil)
	m := newTestManager(t, srv)
	r := newTestRouter(t, m)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	manifestJSON, _ := json.Marshal(manifestFixture("a.zipped", "index.js", ""))
	mf, _ := zw.Create("manifest.json")
	mf.Write(manifestJSON)
	ef, _ := zw.Create("index.js")
	ef.Write([]byte(`export function activate(){ return {}; }`))
	zw.Close()

	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	part, _ := mpw.CreateFormFile("file", "a.zipped.zip")
	part.Write(buf.Bytes())
	mpw.Close()

	req := httptest.NewRequest(http.MethodPost, "/extensions/install-zip", &body)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("install-zip: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "a.zipped") {
		t.Errorf("expected installed record for a.zipped, got %s", rec.Body.String())
	}
}
