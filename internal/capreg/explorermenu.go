package capreg

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ExplorerMenuWhen restricts a menu item to files, folders, or both.
type ExplorerMenuWhen string

const (
	WhenFile   ExplorerMenuWhen = "file"
	WhenFolder ExplorerMenuWhen = "folder"
	WhenBoth   ExplorerMenuWhen = "both"
)

// FileItem is the minimal shape of a file-explorer entry the filter needs
// to evaluate a menu item's applicability.
type FileItem struct {
	Path     string
	IsFolder bool
	IsBinary bool
}

// ExplorerMenuHandler runs when the user invokes a menu item on item.
type ExplorerMenuHandler func(item FileItem) error

// ExplorerMenuItemDefinition describes one context-menu contribution. json
// tags double as the field-name mapping the module loader's goja VM uses, so
// these are also the exact property names an extension's JS object literal
// must use.
type ExplorerMenuItemDefinition struct {
	Label          string              `json:"label"`
	Icon           string              `json:"icon"`
	When           ExplorerMenuWhen    `json:"when"`
	FileExtensions []string            `json:"fileExtensions,omitempty"` // case-insensitive, without leading dot
	BinaryOnly     bool                `json:"binaryOnly,omitempty"`
	Order          int                 `json:"order"`
	Handler        ExplorerMenuHandler `json:"-"`
}

type menuEntry struct {
	extensionID string
	itemID      string
	def         ExplorerMenuItemDefinition
	seq         int
}

// ExplorerMenuRegistry is the process-wide table of right-click menu items
// contributed by extensions.
type ExplorerMenuRegistry struct {
	mu      sync.RWMutex
	items   map[string]*menuEntry
	changed changeListenerSet
	nextSeq int
}

// NewExplorerMenuRegistry builds an empty registry.
func NewExplorerMenuRegistry() *ExplorerMenuRegistry {
	return &ExplorerMenuRegistry{items: make(map[string]*menuEntry)}
}

// Register installs or replaces a menu item, returning its full id.
func (r *ExplorerMenuRegistry) Register(extensionID, itemID string, def ExplorerMenuItemDefinition) string {
	fullID := fmt.Sprintf("%s.%s", extensionID, itemID)
	r.mu.Lock()
	if _, exists := r.items[fullID]; exists {
		log.Warnf("capreg: explorer menu item %s re-registered, overwriting", fullID)
	}
	r.nextSeq++
	r.items[fullID] = &menuEntry{extensionID: extensionID, itemID: itemID, def: def, seq: r.nextSeq}
	r.mu.Unlock()
	r.notifyChanged()
	return fullID
}

// Unregister removes a single item by full id.
func (r *ExplorerMenuRegistry) Unregister(fullID string) bool {
	r.mu.Lock()
	_, ok := r.items[fullID]
	delete(r.items, fullID)
	r.mu.Unlock()
	if ok {
		r.notifyChanged()
	}
	return ok
}

// UnregisterAll removes every item owned by extensionID, returning the
// count removed.
func (r *ExplorerMenuRegistry) UnregisterAll(extensionID string) int {
	r.mu.Lock()
	removed := 0
	for fullID, entry := range r.items {
		if entry.extensionID == extensionID {
			delete(r.items, fullID)
			removed++
		}
	}
	r.mu.Unlock()
	if removed > 0 {
		r.notifyChanged()
	}
	return removed
}

// ItemsFor returns every menu item applicable to item, sorted by order then
// insertion, per the filtering rules: when='file' skips folders, 'folder'
// skips files; binaryOnly requires a byte-backed item; fileExtensions
// matches case-insensitively and excludes extensionless/dot-only names.
func (r *ExplorerMenuRegistry) ItemsFor(item FileItem) []ExplorerMenuItemDefinition {
	r.mu.RLock()
	entries := make([]*menuEntry, 0, len(r.items))
	for _, e := range r.items {
		if matches(e.def, item) {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	idx := sortIndices(len(entries),
		func(i int) int { return resolveOrder(entries[i].def.Order) },
		func(i int) int { return entries[i].seq },
	)
	out := make([]ExplorerMenuItemDefinition, len(entries))
	for i, j := range idx {
		out[i] = entries[j].def
	}
	return out
}

func matches(def ExplorerMenuItemDefinition, item FileItem) bool {
	switch def.When {
	case WhenFile:
		if item.IsFolder {
			return false
		}
	case WhenFolder:
		if !item.IsFolder {
			return false
		}
	}

	if def.BinaryOnly && !item.IsBinary {
		return false
	}

	if len(def.FileExtensions) > 0 {
		ext := fileExtension(item.Path)
		if ext == "" {
			return false
		}
		matched := false
		for _, candidate := range def.FileExtensions {
			if strings.EqualFold(ext, candidate) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// fileExtension returns the extension of path without its leading dot, or
// "" if the name has no dot or is dot-only (e.g. ".gitignore").
func fileExtension(path string) string {
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return ""
	}
	return base[dot+1:]
}

// OnChange registers a listener invoked after every mutation.
func (r *ExplorerMenuRegistry) OnChange(fn func()) func() {
	return r.changed.add(fn)
}

func (r *ExplorerMenuRegistry) notifyChanged() {
	r.changed.notify(func(rec any) {
		log.Warnf("capreg: explorer menu change listener panicked: %v", rec)
	})
}
