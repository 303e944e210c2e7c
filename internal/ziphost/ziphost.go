// Package ziphost implements the ZIP half of the Code Fetcher / Installer:
// given an uploaded archive, it discovers manifest.json wherever it lives,
// resolves entry/files against its directory, and returns the package cache
// plus a manifest normalized to package-relative paths. Adapted from the
// teacher's tempdir-extraction Store.Install shape (store.go), targeting
// archive/zip instead of archive/tar+compress/gzip since the spec calls for
// ZIP uploads, and borrowing the VSIX-style "prefer root, else first
// occurrence" manifest-discovery idiom from the coder/code-marketplace
// reference package.
package ziphost

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/binarycodec"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
)

// Result is the outcome of a successful ZIP install: the manifest with
// entry/files normalized to package-relative form, and the fetched cache.
type Result struct {
	Manifest extmodel.Manifest
	Cache    extmodel.Cache
}

// Install reads a ZIP archive of size zipSize from r and resolves it into a
// Result. Install is pure (it never writes to the PersistentStore); the
// caller decides whether to persist the Result.
func Install(r io.ReaderAt, zipSize int64) (*Result, error) {
	zr, err := zip.NewReader(r, zipSize)
	if err != nil {
		return nil, fmt.Errorf("ziphost: open archive: %w", err)
	}

	manifestFile, archiveRoot, err := locateManifest(zr)
	if err != nil {
		return nil, err
	}

	var manifest extmodel.Manifest
	rc, err := manifestFile.Open()
	if err != nil {
		return nil, fmt.Errorf("ziphost: open manifest.json: %w", err)
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("ziphost: decode manifest.json: %w", err)
	}

	byName := indexByName(zr)

	entryPath, entryData, err := resolveAndRead(byName, archiveRoot, manifest.Entry)
	if err != nil {
		return nil, fmt.Errorf("ziphost: resolve entry %q: %w", manifest.Entry, err)
	}

	files := make(map[string]extmodel.CacheFile)
	if len(manifest.Files) > 0 {
		resolvedAny := false
		for _, declared := range manifest.Files {
			relPath, data, err := resolveAndRead(byName, archiveRoot, declared)
			if err != nil {
				log.Warnf("ziphost: declared file %s did not resolve: %v", declared, err)
				continue
			}
			resolvedAny = true
			if binarycodec.IsBinary(relPath) {
				files[relPath] = extmodel.CacheFile{
					IsBinary: true,
					Text:     binarycodec.BytesToDataURL(data, relPath),
				}
			} else {
				files[relPath] = extmodel.CacheFile{Text: string(data)}
			}
		}
		if !resolvedAny {
			return nil, fmt.Errorf("ziphost: manifest declares %d files but none resolved", len(manifest.Files))
		}
	}

	manifest.Entry = entryPath // normalize to package-relative form

	return &Result{
		Manifest: manifest,
		Cache: extmodel.Cache{
			EntryCode: string(entryData),
			Files:     files,
		},
	}, nil
}

// Validate runs the same resolution Install does and discards the result,
// letting an extension author check that entry/files resolve before
// publishing without touching the PersistentStore.
func Validate(r io.ReaderAt, zipSize int64) error {
	_, err := Install(r, zipSize)
	return err
}

// locateManifest finds manifest.json, preferring one at the archive root;
// otherwise the first occurrence in archive order. Returns the file and the
// directory treated as the package root.
func locateManifest(zr *zip.Reader) (*zip.File, string, error) {
	var first *zip.File
	for _, f := range zr.File {
		if path.Base(f.Name) != "manifest.json" {
			continue
		}
		if !strings.Contains(strings.TrimSuffix(f.Name, "manifest.json"), "/") {
			// At the archive root (no directory component before the filename).
			return f, "", nil
		}
		if first == nil {
			first = f
		}
	}
	if first == nil {
		return nil, "", fmt.Errorf("ziphost: manifest.json not found in archive")
	}
	return first, path.Dir(first.Name), nil
}

func indexByName(zr *zip.Reader) map[string]*zip.File {
	idx := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		idx[f.Name] = f
	}
	return idx
}

// resolveAndRead tries the literal, "./"-prefixed, and leading-slash-stripped
// forms of declared, each with and without the archive-root prefix, and
// reads the first one that resolves.
func resolveAndRead(byName map[string]*zip.File, archiveRoot, declared string) (string, []byte, error) {
	candidates := candidateForms(declared)

	for _, rel := range candidates {
		names := []string{rel, "./" + rel}
		if archiveRoot != "" {
			rooted := path.Join(archiveRoot, rel)
			names = append(names, rooted, "./"+rooted)
		}
		for _, name := range names {
			if f, ok := byName[name]; ok {
				data, err := readZipFile(f)
				if err != nil {
					return "", nil, err
				}
				return rel, data, nil
			}
		}
	}
	return "", nil, fmt.Errorf("no candidate path resolved for %q", declared)
}

// candidateForms enumerates the literal and leading-slash-stripped variants
// of a declared path, each passed through path.Clean (which also drops a
// leading "./"); resolveAndRead adds the "./"-prefixed archive names.
func candidateForms(declared string) []string {
	stripped := strings.TrimPrefix(declared, "/")
	withDot := declared
	if !strings.HasPrefix(declared, "./") {
		withDot = "./" + declared
	}

	seen := make(map[string]bool)
	var out []string
	for _, c := range []string{declared, stripped, strings.TrimPrefix(withDot, "./"), withDot} {
		c = path.Clean(c)
		if c == "." || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
