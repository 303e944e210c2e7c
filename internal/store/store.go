// Package store implements the PersistentStore: a durable key-value mapping
// from ExtensionId to InstalledExtension record, backed by SQLite exactly the
// way the teacher's internal/db package talks to its database — raw SQL,
// hand-written schema, ON CONFLICT upserts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/binarycodec"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
)

// Store is the PersistentStore. One row per extension id in `extensions`,
// one row per cached file in `extension_files` — binary payloads land in a
// BLOB column, never as base64 text, satisfying the "opaque byte container"
// invariant at the schema level.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?cache=shared&mode=rwc&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite over a single file; avoid writer contention

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS extensions (
			id TEXT PRIMARY KEY,
			manifest_json TEXT NOT NULL,
			status TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 0,
			installed_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			entry_code TEXT NOT NULL DEFAULT '',
			cached_at DATETIME,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS extension_files (
			extension_id TEXT NOT NULL,
			path TEXT NOT NULL,
			is_binary INTEGER NOT NULL DEFAULT 0,
			mime TEXT,
			text_value TEXT,
			blob_value BLOB,
			PRIMARY KEY (extension_id, path),
			FOREIGN KEY (extension_id) REFERENCES extensions(id) ON DELETE CASCADE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set upserts the record for rec.Manifest.ID. Any cached file whose value is
// a binary data-URL string is converted to a byte blob before persistence,
// per §4.3.
func (s *Store) Set(rec extmodel.InstalledExtension) error {
	manifestJSON, err := json.Marshal(rec.Manifest)
	if err != nil {
		return fmt.Errorf("store: marshal manifest: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO extensions (id, manifest_json, status, enabled, installed_at, updated_at, entry_code, cached_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			manifest_json=excluded.manifest_json,
			status=excluded.status,
			enabled=excluded.enabled,
			updated_at=excluded.updated_at,
			entry_code=excluded.entry_code,
			cached_at=excluded.cached_at,
			error=excluded.error
	`, rec.Manifest.ID, string(manifestJSON), string(rec.Status), boolToInt(rec.Enabled),
		rec.InstalledAt, rec.UpdatedAt, rec.Cache.EntryCode, rec.Cache.CachedAt, nullableString(rec.Error))
	if err != nil {
		return fmt.Errorf("store: upsert extension: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM extension_files WHERE extension_id = ?`, rec.Manifest.ID); err != nil {
		return fmt.Errorf("store: clear files: %w", err)
	}

	for path, file := range rec.Cache.Files {
		file = normalizeForPersistence(path, file)
		if _, err := tx.Exec(`
			INSERT INTO extension_files (extension_id, path, is_binary, mime, text_value, blob_value)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.Manifest.ID, path, boolToInt(file.IsBinary), file.Mime, nullableString(file.Text), file.Bytes); err != nil {
			return fmt.Errorf("store: insert file %s: %w", path, err)
		}
	}

	return tx.Commit()
}

// normalizeForPersistence converts an incoming data-URL string cache entry
// for a binary path into an opaque byte blob before it ever reaches SQL.
func normalizeForPersistence(path string, file extmodel.CacheFile) extmodel.CacheFile {
	if file.IsBinary && file.Bytes == nil && file.Text != "" {
		if blob, err := binarycodec.DataURLToBlob(file.Text); err == nil {
			file.Bytes = blob.Bytes
			file.Mime = blob.Mime
			file.Text = ""
			return file
		}
		log.Warnf("store: could not convert cache entry %s to a blob, keeping as text", path)
	}
	return file
}

// Get returns the record for id, or ok=false if absent or corrupt.
func (s *Store) Get(id string) (extmodel.InstalledExtension, bool) {
	row := s.db.QueryRow(`SELECT id, manifest_json, status, enabled, installed_at, updated_at, entry_code, cached_at, error FROM extensions WHERE id = ?`, id)
	rec, ok := scanExtension(row)
	if !ok {
		return extmodel.InstalledExtension{}, false
	}
	rec.Cache.Files = s.loadFiles(id)
	return rec, true
}

// GetAll returns every record, skipping corrupt rows (nil manifest) per the
// §4.3 "getAll filters out records whose manifest is null" invariant.
func (s *Store) GetAll() []extmodel.InstalledExtension {
	rows, err := s.db.Query(`SELECT id, manifest_json, status, enabled, installed_at, updated_at, entry_code, cached_at, error FROM extensions`)
	if err != nil {
		log.Errorf("store: GetAll query failed: %v", err)
		return nil
	}
	defer rows.Close()

	var out []extmodel.InstalledExtension
	for rows.Next() {
		rec, ok := scanExtension(rows)
		if !ok {
			continue
		}
		rec.Cache.Files = s.loadFiles(rec.Manifest.ID)
		out = append(out, rec)
	}
	return out
}

// Delete removes the record for id and its cached files.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM extension_files WHERE extension_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete files for %s: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM extensions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	return nil
}

// Clear removes every persisted record.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM extension_files`); err != nil {
		return fmt.Errorf("store: clear files: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM extensions`); err != nil {
		return fmt.Errorf("store: clear extensions: %w", err)
	}
	return nil
}

func (s *Store) loadFiles(id string) map[string]extmodel.CacheFile {
	rows, err := s.db.Query(`SELECT path, is_binary, mime, text_value, blob_value FROM extension_files WHERE extension_id = ?`, id)
	if err != nil {
		log.Warnf("store: loadFiles(%s) failed: %v", id, err)
		return map[string]extmodel.CacheFile{}
	}
	defer rows.Close()

	files := make(map[string]extmodel.CacheFile)
	for rows.Next() {
		var path string
		var isBinary int
		var mime, text sql.NullString
		var blob []byte
		if err := rows.Scan(&path, &isBinary, &mime, &text, &blob); err != nil {
			log.Warnf("store: scan file row for %s: %v", id, err)
			continue
		}
		files[path] = extmodel.CacheFile{
			IsBinary: isBinary != 0,
			Mime:     mime.String,
			Text:     text.String,
			Bytes:    blob,
		}
	}
	return files
}

// scanner abstracts over *sql.Row and *sql.Rows so scanExtension can serve
// both Get and GetAll.
type scanner interface {
	Scan(dest ...any) error
}

func scanExtension(row scanner) (extmodel.InstalledExtension, bool) {
	var (
		id, manifestJSON, status, entryCode string
		enabled                             int
		installedAt, updatedAt              time.Time
		cachedAt                            sql.NullTime
		errMsg                              sql.NullString
	)
	if err := row.Scan(&id, &manifestJSON, &status, &enabled, &installedAt, &updatedAt, &entryCode, &cachedAt, &errMsg); err != nil {
		if err != sql.ErrNoRows {
			log.Warnf("store: scan extension row failed: %v", err)
		}
		return extmodel.InstalledExtension{}, false
	}

	var manifest extmodel.Manifest
	if err := json.Unmarshal([]byte(manifestJSON), &manifest); err != nil || manifest.ID == "" {
		log.Warnf("store: corrupt manifest for %s, skipping", id)
		return extmodel.InstalledExtension{}, false
	}

	return extmodel.InstalledExtension{
		Manifest:    manifest,
		Status:      extmodel.Status(status),
		Enabled:     enabled != 0,
		InstalledAt: installedAt,
		UpdatedAt:   updatedAt,
		Cache: extmodel.Cache{
			EntryCode: entryCode,
			CachedAt:  cachedAt.Time,
		},
		Error: errMsg.String,
	}, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
