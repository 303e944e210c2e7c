package registryfetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
)

func registryServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/registry.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		json.NewEncoder(w).Encode(extmodel.Registry{
			Version:   "1",
			UpdatedAt: "2026-01-01",
			Extensions: []extmodel.RegistryEntry{
				{ID: "a.hello", ManifestURL: "/a.hello/manifest.json", DefaultEnabled: true},
				{ID: "v.lang.ja", ManifestURL: "/v.lang.ja/manifest.json", Recommended: true},
			},
		})
	})
	mux.HandleFunc("/a.hello/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extmodel.Manifest{ID: "a.hello", Entry: "index.js", Type: extmodel.TypeUI})
	})
	mux.HandleFunc("/v.lang.ja/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extmodel.Manifest{ID: "v.lang.ja", Entry: "index.js", Type: extmodel.TypeLanguageRuntime})
	})
	return httptest.NewServer(mux)
}

func TestFetchRegistryCachesWithinTTL(t *testing.T) {
	var hits int32
	srv := registryServer(t, &hits)
	defer srv.Close()

	f := New(srv.URL + "/registry.json")

	reg1 := f.FetchRegistry(false)
	reg2 := f.FetchRegistry(false)

	if reg1 == nil || reg2 == nil {
		t.Fatal("expected non-nil registry")
	}
	if hits != 1 {
		t.Errorf("expected exactly one network call within TTL, got %d", hits)
	}

	f.FetchRegistry(true)
	if hits != 2 {
		t.Errorf("forceRefresh should trigger a second network call, got %d", hits)
	}
}

func TestFetchAllManifests(t *testing.T) {
	var hits int32
	srv := registryServer(t, &hits)
	defer srv.Close()

	f := New(srv.URL + "/registry.json")
	manifests := f.FetchAllManifests(context.Background())
	if len(manifests) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(manifests))
	}
}

func TestDefaultEnabledAndRecommendedUrls(t *testing.T) {
	var hits int32
	srv := registryServer(t, &hits)
	defer srv.Close()

	f := New(srv.URL + "/registry.json")

	enabled := f.GetDefaultEnabledManifestUrls()
	if len(enabled) != 1 || enabled[0] != "/a.hello/manifest.json" {
		t.Errorf("GetDefaultEnabledManifestUrls = %v", enabled)
	}

	recommended := f.GetRecommendedManifestUrls()
	if len(recommended) != 1 || recommended[0] != "/v.lang.ja/manifest.json" {
		t.Errorf("GetRecommendedManifestUrls = %v", recommended)
	}
}

func TestFetchRegistryReturnsNilOnFailure(t *testing.T) {
	f := New("http://127.0.0.1:0/nonexistent-registry.json")
	if reg := f.FetchRegistry(true); reg != nil {
		t.Errorf("expected nil registry on network failure, got %+v", reg)
	}
}
