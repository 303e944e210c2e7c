// Package registryfetch implements the Registry Fetcher: it pulls the
// extension catalog JSON from a well-known URL, caches it with a TTL, and
// derives parallel manifest fetches from it. Adapted from the teacher's
// internal/extension/discovery.go cache/mutex shape, replaced with a plain
// HTTP+JSON registry instead of a GitHub-releases-specific one.
package registryfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
)

// DefaultTTL is the in-memory cache lifetime for the registry document.
const DefaultTTL = time.Minute

// Fetcher fetches and caches the registry document. The registry fetch and
// the queries derived from it never surface errors beyond a nil/empty
// return — per §4.4 they log and move on. FetchManifest is the exception: it
// returns its error to the caller.
type Fetcher struct {
	registryURL string
	client      *http.Client
	ttl         time.Duration

	mu        sync.RWMutex
	cached    *extmodel.Registry
	fetchedAt time.Time

	closeOnce sync.Once
	stop      chan struct{}
}

// New builds a Fetcher for the registry document at registryURL.
func New(registryURL string) *Fetcher {
	return &Fetcher{
		registryURL: registryURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		ttl:         DefaultTTL,
		stop:        make(chan struct{}),
	}
}

// Close stops any background refresh goroutine started by StartBackgroundRefresh.
func (f *Fetcher) Close() {
	f.closeOnce.Do(func() { close(f.stop) })
}

// StartBackgroundRefresh periodically forces a registry refresh every
// interval, so a long-lived host process's cache never silently goes stale
// past one TTL window without anyone asking. Stops when Close is called.
func (f *Fetcher) StartBackgroundRefresh(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.FetchRegistry(true)
			case <-f.stop:
				return
			}
		}
	}()
}

// FetchRegistry returns the cached registry if younger than the TTL, unless
// forceRefresh is set. On any network or decode error it logs and returns
// nil, per the "never throws" contract.
func (f *Fetcher) FetchRegistry(forceRefresh bool) *extmodel.Registry {
	if !forceRefresh {
		f.mu.RLock()
		if f.cached != nil && time.Since(f.fetchedAt) < f.ttl {
			cached := f.cached
			f.mu.RUnlock()
			return cached
		}
		f.mu.RUnlock()
	}

	reg, err := f.fetchNow()
	if err != nil {
		log.Warnf("registryfetch: failed to fetch registry: %v", err)
		return nil
	}

	f.mu.Lock()
	f.cached = reg
	f.fetchedAt = time.Now()
	f.mu.Unlock()

	return reg
}

func (f *Fetcher) fetchNow() (*extmodel.Registry, error) {
	req, err := http.NewRequest(http.MethodGet, f.registryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var reg extmodel.Registry
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return nil, fmt.Errorf("decode registry json: %w", err)
	}
	return &reg, nil
}

// FetchManifest fetches a single manifest JSON document from manifestURL,
// resolved against the registry's base URL if relative.
func (f *Fetcher) FetchManifest(manifestURL string) (*extmodel.Manifest, error) {
	resolved := f.resolveURL(manifestURL)

	resp, err := f.client.Get(resolved)
	if err != nil {
		return nil, fmt.Errorf("request manifest %s: %w", resolved, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest %s returned status %d", resolved, resp.StatusCode)
	}

	var m extmodel.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", resolved, err)
	}
	return &m, nil
}

// resolveURL joins a possibly root-relative manifestUrl against the
// registry's own base, per §6 "manifestUrl ... may begin with /".
func (f *Fetcher) resolveURL(manifestURL string) string {
	if strings.HasPrefix(manifestURL, "http://") || strings.HasPrefix(manifestURL, "https://") {
		return manifestURL
	}
	base := f.registryURL
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[:idx]
	}
	if strings.HasPrefix(manifestURL, "/") {
		// strip to scheme+host and re-append
		if schemeIdx := strings.Index(base, "://"); schemeIdx >= 0 {
			if hostEnd := strings.Index(base[schemeIdx+3:], "/"); hostEnd >= 0 {
				base = base[:schemeIdx+3+hostEnd]
			}
		}
		return base + manifestURL
	}
	return base + "/" + manifestURL
}

// manifestFetch pairs a fetched manifest with the outcome, used internally
// to fan results back from parallel goroutines.
type manifestFetch struct {
	manifest *extmodel.Manifest
	err      error
	entry    extmodel.RegistryEntry
}

// FetchAllManifests fetches every registry entry's manifest in parallel.
// Entries whose fetch fails are logged and omitted; never returns an error.
func (f *Fetcher) FetchAllManifests(ctx context.Context) []extmodel.Manifest {
	reg := f.FetchRegistry(false)
	if reg == nil {
		return nil
	}
	return f.fetchManifestsFor(reg.Extensions)
}

// FetchManifestsByType fetches manifests only for registry entries whose
// declared type matches typ.
func (f *Fetcher) FetchManifestsByType(ctx context.Context, typ extmodel.ExtensionType) []extmodel.Manifest {
	reg := f.FetchRegistry(false)
	if reg == nil {
		return nil
	}
	var filtered []extmodel.RegistryEntry
	for _, e := range reg.Extensions {
		if e.Type == typ {
			filtered = append(filtered, e)
		}
	}
	return f.fetchManifestsFor(filtered)
}

func (f *Fetcher) fetchManifestsFor(entries []extmodel.RegistryEntry) []extmodel.Manifest {
	if len(entries) == 0 {
		return nil
	}

	results := make(chan manifestFetch, len(entries))
	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(e extmodel.RegistryEntry) {
			defer wg.Done()
			m, err := f.FetchManifest(e.ManifestURL)
			results <- manifestFetch{manifest: m, err: err, entry: e}
		}(entry)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var manifests []extmodel.Manifest
	for r := range results {
		if r.err != nil {
			log.Warnf("registryfetch: failed to fetch manifest for %s: %v", r.entry.ID, r.err)
			continue
		}
		manifests = append(manifests, *r.manifest)
	}
	return manifests
}

// GetDefaultEnabledManifestUrls returns the manifestUrl of every registry
// entry marked defaultEnabled.
func (f *Fetcher) GetDefaultEnabledManifestUrls() []string {
	return f.urlsWhere(func(e extmodel.RegistryEntry) bool { return e.DefaultEnabled })
}

// GetRecommendedManifestUrls returns the manifestUrl of every registry entry
// marked recommended.
func (f *Fetcher) GetRecommendedManifestUrls() []string {
	return f.urlsWhere(func(e extmodel.RegistryEntry) bool { return e.Recommended })
}

func (f *Fetcher) urlsWhere(pred func(extmodel.RegistryEntry) bool) []string {
	reg := f.FetchRegistry(false)
	if reg == nil {
		return []string{}
	}
	urls := []string{}
	for _, e := range reg.Extensions {
		if pred(e) {
			urls = append(urls, e.ManifestURL)
		}
	}
	return urls
}
