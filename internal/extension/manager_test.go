package extension

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/codefetch"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/registryfetch"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/store"
)

// testServer serves a registry.json plus a package tree under /ext/<dir>/...,
// mirroring the HTTP package layout from §6.
type testServer struct {
	mux *http.ServeMux
	srv *httptest.Server
}

func newTestServer(t *testing.T, registry extmodel.Registry, files map[string]string) *testServer {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)

	mux.HandleFunc("/registry.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(registry)
	})
	for p, content := range files {
		p, content := p, content
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(content))
		})
	}
	t.Cleanup(srv.Close)
	return &testServer{mux: mux, srv: srv}
}

func newTestManager(t *testing.T, srv *testServer) *Manager {
	t.Helper()
	st, err := store.Open(path.Join(t.TempDir(), "ext.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewManager(ManagerConfig{
		Store:    st,
		Registry: registryfetch.New(srv.srv.URL + "/registry.json"),
		Code:     codefetch.New(srv.srv.URL + "/ext"),
	})
}

func manifestFixture(id, entry string, onlyOne string) extmodel.Manifest {
	return extmodel.Manifest{ID: id, Name: id, Version: "1.0.0", Entry: entry, OnlyOne: onlyOne}
}

func TestInstallAndAutoEnableFreshExtension(t *testing.T) {
	manifest := manifestFixture("a.hello", "index.js", "")
	manifestJSON, _ := json.Marshal(manifest)

	registry := extmodel.Registry{
		Version: "1",
		Extensions: []extmodel.RegistryEntry{
			{ID: "a.hello", ManifestURL: "/ext/a.hello/manifest.json", DefaultEnabled: true},
		},
	}

	srv := newTestServer(t, registry, map[string]string{
		"/ext/a.hello/manifest.json": string(manifestJSON),
		"/ext/hello/index.js":        `export function activate(context) { return { builtInModules: { greet: function(){ return "hi"; } } }; }`,
	})

	m := newTestManager(t, srv)

	var events []extmodel.ChangeEventType
	m.OnChange(func(e extmodel.ChangeEvent) { events = append(events, e.Type) })

	rec, err := m.Install("/ext/a.hello/manifest.json")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !rec.Enabled {
		t.Error("expected extension to be auto-enabled after install")
	}

	modules := m.GetAllBuiltInModules()
	if _, present := modules["greet"]; !present {
		t.Fatalf("expected greet builtin module to be present, got %v", modules)
	}

	installed := m.GetInstalledExtensions()
	if len(installed) != 1 || installed[0].Manifest.ID != "a.hello" {
		t.Fatalf("expected exactly one installed record for a.hello, got %+v", installed)
	}

	enabledCount := 0
	for _, e := range events {
		if e == extmodel.EventEnabled {
			enabledCount++
		}
	}
	if enabledCount != 1 {
		t.Errorf("expected exactly one enabled event, got %d (%v)", enabledCount, events)
	}
}

func TestOnlyOneConflictDisablesPreviousMember(t *testing.T) {
	en := manifestFixture("v.lang.en", "index.js", "lang-pack")
	ja := manifestFixture("v.lang.ja", "index.js", "lang-pack")
	enJSON, _ := json.Marshal(en)
	jaJSON, _ := json.Marshal(ja)

	registry := extmodel.Registry{Version: "1"}
	srv := newTestServer(t, registry, map[string]string{
		"/ext/lang.en/manifest.json": string(enJSON),
		"/ext/lang.ja/manifest.json": string(jaJSON),
		"/ext/lang-packs/en/index.js": `export function activate(){ return { services: { "language-pack": { locale: "en", name: "English", nativeName: "English" } } }; }`,
		"/ext/lang-packs/ja/index.js": `export function activate(){ return { services: { "language-pack": { locale: "ja", name: "Japanese", nativeName: "日本語" } } }; }`,
	})

	m := newTestManager(t, srv)

	if _, err := m.Install("/ext/lang.en/manifest.json"); err != nil {
		t.Fatalf("install en: %v", err)
	}
	if _, err := m.Install("/ext/lang.ja/manifest.json"); err != nil {
		t.Fatalf("install ja: %v", err)
	}

	// Install auto-enables; re-enable en explicitly to establish it as active
	// before triggering the conflict with ja.
	if _, err := m.Enable("v.lang.en"); err != nil {
		t.Fatalf("enable en: %v", err)
	}

	var events []extmodel.ChangeEvent
	var mu sync.Mutex
	m.OnChange(func(e extmodel.ChangeEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	if _, err := m.Enable("v.lang.ja"); err != nil {
		t.Fatalf("enable ja: %v", err)
	}

	packs := m.GetEnabledLanguagePacks()
	if len(packs) != 1 || packs[0].Locale != "ja" {
		t.Fatalf("expected only ja enabled, got %+v", packs)
	}

	all := m.GetInstalledExtensions()
	for _, rec := range all {
		if rec.Manifest.ID == "v.lang.en" && rec.Enabled {
			t.Error("expected en to be disabled after ja enables into the same onlyOne group")
		}
	}

	if len(events) < 2 {
		t.Fatalf("expected at least disabled(en) then enabled(ja), got %+v", events)
	}
	if events[0].Type != extmodel.EventDisabled || events[0].ExtensionID != "v.lang.en" {
		t.Errorf("expected first event to be disabled(v.lang.en), got %+v", events[0])
	}
}

func TestDisableRemovesCapabilityRegistrationsAndCommands(t *testing.T) {
	manifest := manifestFixture("a.tabby", "index.js", "")
	manifestJSON, _ := json.Marshal(manifest)

	registry := extmodel.Registry{}
	srv := newTestServer(t, registry, map[string]string{
		"/ext/a.tabby/manifest.json": string(manifestJSON),
		"/ext/tabby/index.js": `
			export function activate(context) {
				context.commands.register("tabby.run", function(args, ctx){ return "ran"; });
				return {};
			}
		`,
	})

	m := newTestManager(t, srv)
	if _, err := m.Install("/ext/a.tabby/manifest.json"); err != nil {
		t.Fatalf("install: %v", err)
	}

	if !m.Commands().Has("tabby.run") {
		t.Fatal("expected command registered after enable")
	}

	m.Disable("a.tabby")

	if m.Commands().Has("tabby.run") {
		t.Error("expected command removed after disable")
	}
}

func TestUninstallDeletesPersistedRecord(t *testing.T) {
	manifest := manifestFixture("a.gone", "index.js", "")
	manifestJSON, _ := json.Marshal(manifest)

	srv := newTestServer(t, extmodel.Registry{}, map[string]string{
		"/ext/a.gone/manifest.json": string(manifestJSON),
		"/ext/gone/index.js":        `export function activate(){ return {}; }`,
	})

	m := newTestManager(t, srv)
	if _, err := m.Install("/ext/a.gone/manifest.json"); err != nil {
		t.Fatalf("install: %v", err)
	}

	if !m.Uninstall("a.gone") {
		t.Fatal("expected uninstall to succeed")
	}
	if len(m.GetInstalledExtensions()) != 0 {
		t.Error("expected no installed extensions after uninstall")
	}
	if m.Uninstall("a.gone") {
		t.Error("expected second uninstall of the same id to report false")
	}
}

func TestEnableMissingActivateFailsWithoutActivating(t *testing.T) {
	manifest := manifestFixture("a.broken", "index.js", "")
	manifestJSON, _ := json.Marshal(manifest)

	srv := newTestServer(t, extmodel.Registry{}, map[string]string{
		"/ext/a.broken/manifest.json": string(manifestJSON),
		"/ext/broken/index.js":        `var x = 1;`, // no activate export
	})

	m := newTestManager(t, srv)
	rec, err := m.Install("/ext/a.broken/manifest.json")
	if err != nil {
		t.Fatalf("Install itself should not fail (only auto-enable should): %v", err)
	}
	if rec.Enabled {
		t.Error("expected enable to have failed, leaving the record not enabled")
	}
}

func TestCheckForUpdateReportsNoUpdateWhenVersionsMatch(t *testing.T) {
	old := manifestFixture("a.versioned", "index.js", "")
	old.Version = "1.0.0"
	oldJSON, _ := json.Marshal(old)

	registry := extmodel.Registry{
		Extensions: []extmodel.RegistryEntry{
			{ID: "a.versioned", ManifestURL: "/ext/a.versioned/manifest.json"},
		},
	}
	srv := newTestServer(t, registry, map[string]string{
		"/ext/a.versioned/manifest.json": string(oldJSON),
		"/ext/versioned/index.js":        `export function activate(){ return {}; }`,
	})

	m := newTestManager(t, srv)
	if _, err := m.Install("/ext/a.versioned/manifest.json"); err != nil {
		t.Fatalf("install: %v", err)
	}

	hasUpdate, latest, err := m.CheckForUpdate("a.versioned")
	if err != nil {
		t.Fatalf("CheckForUpdate: %v", err)
	}
	if hasUpdate {
		t.Error("expected no update when registry and installed versions match")
	}
	if latest != "1.0.0" {
		t.Errorf("expected latest 1.0.0, got %s", latest)
	}
}

func TestInstallIsIdempotentForExistingRecord(t *testing.T) {
	manifest := manifestFixture("a.twice", "index.js", "")
	manifestJSON, _ := json.Marshal(manifest)

	srv := newTestServer(t, extmodel.Registry{}, map[string]string{
		"/ext/a.twice/manifest.json": string(manifestJSON),
		"/ext/twice/index.js":        `export function activate(){ return {}; }`,
	})

	m := newTestManager(t, srv)
	first, err := m.Install("/ext/a.twice/manifest.json")
	if err != nil {
		t.Fatalf("first install: %v", err)
	}
	second, err := m.Install("/ext/a.twice/manifest.json")
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if first.InstalledAt != second.InstalledAt {
		t.Error("expected second install to return the existing record unchanged")
	}
	if len(m.GetInstalledExtensions()) != 1 {
		t.Errorf("expected exactly one installed record, got %d", len(m.GetInstalledExtensions()))
	}
}
