// Package codefetch implements the HTTP half of the Code Fetcher: given a
// manifest, it derives a base directory from the extension id and fetches
// the entry script plus any declared asset files relative to it.
package codefetch

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/binarycodec"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
)

// langPackID matches the `<vendor>.lang.<locale>` extension id shape.
var langPackID = regexp.MustCompile(`^[^.]+\.lang\.(.+)$`)

// Fetcher fetches extension code over plain HTTP from a base URL under
// which every extension's package directory lives.
type Fetcher struct {
	base   string
	client *http.Client
}

// New builds a Fetcher rooted at extensionsBaseURL (e.g.
// "https://cdn.example.com/extensions").
func New(extensionsBaseURL string) *Fetcher {
	return &Fetcher{
		base:   strings.TrimRight(extensionsBaseURL, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// DirFromID derives the package directory for id per §4.5: language packs
// live under lang-packs/<locale>; everything else drops its vendor prefix.
func DirFromID(id string) string {
	if m := langPackID.FindStringSubmatch(id); m != nil {
		return "lang-packs/" + m[1]
	}
	if idx := strings.IndexByte(id, '.'); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// Fetch resolves manifest.entry and every manifest.Files entry relative to
// DirFromID(manifest.ID) and returns the assembled cache. A missing entry
// asset is fatal; a missing declared file is a warning, not a failure.
func (f *Fetcher) Fetch(manifest extmodel.Manifest) (*extmodel.Cache, error) {
	dir := DirFromID(manifest.ID)

	entryCode, err := f.fetchText(dir, manifest.Entry)
	if err != nil {
		return nil, fmt.Errorf("codefetch: fetch entry %s: %w", manifest.Entry, err)
	}

	files := make(map[string]extmodel.CacheFile, len(manifest.Files))
	for _, rel := range manifest.Files {
		if binarycodec.IsBinary(rel) {
			b, err := f.fetchBytes(dir, rel)
			if err != nil {
				log.Warnf("codefetch: missing optional binary file %s for %s: %v", rel, manifest.ID, err)
				continue
			}
			files[rel] = extmodel.CacheFile{IsBinary: true, Bytes: b}
			continue
		}

		text, err := f.fetchText(dir, rel)
		if err != nil {
			log.Warnf("codefetch: missing optional file %s for %s: %v", rel, manifest.ID, err)
			continue
		}
		files[rel] = extmodel.CacheFile{Text: text}
	}

	return &extmodel.Cache{
		EntryCode: entryCode,
		Files:     files,
		CachedAt:  time.Now(),
	}, nil
}

func (f *Fetcher) fetchText(dir, rel string) (string, error) {
	b, err := f.fetchBytes(dir, rel)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (f *Fetcher) fetchBytes(dir, rel string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s", f.base, dir, rel)

	resp, err := f.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
