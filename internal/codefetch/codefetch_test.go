package codefetch

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
)

func TestDirFromIDLanguagePack(t *testing.T) {
	if got := DirFromID("v.lang.ja"); got != "lang-packs/ja" {
		t.Errorf("DirFromID(v.lang.ja) = %q, want lang-packs/ja", got)
	}
}

func TestDirFromIDStripsVendorPrefix(t *testing.T) {
	if got := DirFromID("a.hello"); got != "hello" {
		t.Errorf("DirFromID(a.hello) = %q, want hello", got)
	}
}

func TestFetchEntryAndFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ext/hello/index.js", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("export function activate(){ return {}; }"))
	})
	mux.HandleFunc("/ext/hello/icon.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x89, 0x50, 0x4E, 0x47})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New(srv.URL + "/ext")
	manifest := extmodel.Manifest{
		ID:    "a.hello",
		Entry: "index.js",
		Files: []string{"icon.png"},
	}

	cache, err := f.Fetch(manifest)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if cache.EntryCode == "" {
		t.Error("expected non-empty entry code")
	}
	file, ok := cache.Files["icon.png"]
	if !ok || !file.IsBinary || len(file.Bytes) == 0 {
		t.Errorf("expected binary icon.png file, got %+v (ok=%v)", file, ok)
	}
}

func TestFetchMissingEntryIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := New(srv.URL)
	_, err := f.Fetch(extmodel.Manifest{ID: "a.hello", Entry: "index.js"})
	if err == nil {
		t.Error("expected fatal error for missing entry asset")
	}
}

func TestFetchMissingOptionalFileIsSkippedNotFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ext/hello/index.js", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("export function activate(){}"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New(srv.URL + "/ext")
	cache, err := f.Fetch(extmodel.Manifest{ID: "a.hello", Entry: "index.js", Files: []string{"missing.txt"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := cache.Files["missing.txt"]; ok {
		t.Error("missing optional file should be skipped, not present")
	}
}
