// Package extmodel holds the data model shared by every extension-runtime
// subsystem: manifests, installed-extension records, the registry catalog
// shape, and the lifecycle change events the manager emits.
package extmodel

import "time"

// ExtensionType enumerates the kinds of extension a manifest can declare.
type ExtensionType string

const (
	TypeBuiltinModule   ExtensionType = "builtin-module"
	TypeService         ExtensionType = "service"
	TypeTranspiler      ExtensionType = "transpiler"
	TypeLanguageRuntime ExtensionType = "language-runtime"
	TypeTool            ExtensionType = "tool"
	TypeUI              ExtensionType = "ui"
)

// Status is the lifecycle state of an InstalledExtension record.
type Status string

const (
	StatusAvailable Status = "available"
	StatusInstalling Status = "installing"
	StatusInstalled Status = "installed"
	StatusEnabled   Status = "enabled"
	StatusError     Status = "error"
	StatusUpdating  Status = "updating"
)

// ManifestMetadata carries publish bookkeeping and free-form tags.
type ManifestMetadata struct {
	PublishedAt string   `json:"publishedAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Manifest is the immutable descriptor of an extension package.
type Manifest struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Version      string           `json:"version"`
	Type         ExtensionType    `json:"type"`
	Description  string           `json:"description,omitempty"`
	Author       string           `json:"author,omitempty"`
	Entry        string           `json:"entry"`
	Files        []string         `json:"files,omitempty"`
	Dependencies []string         `json:"dependencies,omitempty"`
	OnlyOne      string           `json:"onlyOne,omitempty"`
	PackGroup    string           `json:"packGroup,omitempty"`
	Metadata     ManifestMetadata `json:"metadata,omitempty"`
}

// CacheFile is one cached asset: either text source or an opaque byte
// container (never a base64 string) for binary assets.
type CacheFile struct {
	IsBinary bool   `json:"isBinary"`
	Text     string `json:"text,omitempty"`
	Bytes    []byte `json:"-"`
	Mime     string `json:"mime,omitempty"`
}

// Cache holds the fetched code for an installed extension.
type Cache struct {
	EntryCode string               `json:"entryCode"`
	Files     map[string]CacheFile `json:"files"`
	CachedAt  time.Time            `json:"cachedAt"`
}

// InstalledExtension is the mutable persisted record for one extension.
type InstalledExtension struct {
	Manifest    Manifest  `json:"manifest"`
	Status      Status    `json:"status"`
	Enabled     bool      `json:"enabled"`
	InstalledAt time.Time `json:"installedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Cache       Cache     `json:"cache"`
	Error       string    `json:"error,omitempty"`
}

// RegistryEntry is one catalog row describing where to fetch a manifest.
type RegistryEntry struct {
	ID             string        `json:"id"`
	ManifestURL    string        `json:"manifestUrl"`
	Type           ExtensionType `json:"type,omitempty"`
	DefaultEnabled bool          `json:"defaultEnabled,omitempty"`
	Recommended    bool          `json:"recommended,omitempty"`
}

// Registry is the externally-authored extension catalog document.
type Registry struct {
	Version     string          `json:"version"`
	UpdatedAt   string          `json:"updatedAt"`
	Extensions  []RegistryEntry `json:"extensions"`
}

// ChangeEventType enumerates the lifecycle transitions the manager emits.
type ChangeEventType string

const (
	EventInstalled   ChangeEventType = "installed"
	EventEnabled     ChangeEventType = "enabled"
	EventDisabled    ChangeEventType = "disabled"
	EventUninstalled ChangeEventType = "uninstalled"
)

// ChangeEvent is delivered to every registered manager listener.
type ChangeEvent struct {
	Type        ChangeEventType
	ExtensionID string
	Manifest    *Manifest
}

// LanguagePackInfo is the shape an activation contributes under
// services["language-pack"].
type LanguagePackInfo struct {
	Locale     string `json:"locale"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
}
