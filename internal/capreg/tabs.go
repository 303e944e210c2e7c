package capreg

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// TabTypeDefinition is what an extension registers once to describe the
// kind of tab it contributes; per-instance Tab values are created later
// through CreateTab. json tags double as the field-name mapping the module
// loader's goja VM uses for values crossing into JS.
type TabTypeDefinition struct {
	ExtensionID string `json:"extensionId"`
	Kind        string `json:"kind"` // "extension:<extensionId>"
	Component   any    `json:"component"`
	DisplayName string `json:"displayName"`
	Icon        string `json:"icon"`
	Order       int    `json:"order"`
}

// Tab is one open instance of an extension-contributed tab type. json tags
// double as the field-name mapping the module loader's goja VM uses, so a
// Tab handed back to extension JS exposes camelCase properties.
type Tab struct {
	TabID    string         `json:"tabId"`
	Name     string         `json:"name"`
	Kind     string         `json:"kind"`
	Path     string         `json:"path"`
	PaneID   string         `json:"paneId,omitempty"`
	Closable bool           `json:"closable"`
	Data     map[string]any `json:"data,omitempty"`
}

// CreateTabOpts configures a single CreateTab call.
type CreateTabOpts struct {
	PaneID   string
	Closable bool
}

type tabTypeEntry struct {
	def TabTypeDefinition
	seq int
}

// TabRegistry is the process-wide table of tab types and open tab
// instances. Ownership of an instance is provable from its TabID prefix
// (ext-<extensionId>-), generated here at creation time.
type TabRegistry struct {
	mu         sync.RWMutex
	types      map[string]tabTypeEntry // keyed by ExtensionID
	instances  map[string]*Tab         // keyed by TabID
	changed    changeListenerSet
	activated  changeListenerSet
	nextSeq    int
	nextTabSeq int
}

// NewTabRegistry builds an empty registry.
func NewTabRegistry() *TabRegistry {
	return &TabRegistry{
		types:     make(map[string]tabTypeEntry),
		instances: make(map[string]*Tab),
	}
}

// OwnerPrefix returns the TabID prefix that proves ownership by
// extensionID.
func OwnerPrefix(extensionID string) string {
	return fmt.Sprintf("ext-%s-", extensionID)
}

// RegisterType installs or replaces the tab type contributed by
// def.ExtensionID and fires change listeners.
func (r *TabRegistry) RegisterType(def TabTypeDefinition) {
	r.mu.Lock()
	if _, exists := r.types[def.ExtensionID]; exists {
		log.Warnf("capreg: tab type for %s re-registered, overwriting", def.ExtensionID)
	}
	r.nextSeq++
	r.types[def.ExtensionID] = tabTypeEntry{def: def, seq: r.nextSeq}
	r.mu.Unlock()
	r.notifyChanged()
}

// UnregisterAll removes extensionID's tab type and every tab instance it
// owns, returning the total number of entries removed.
func (r *TabRegistry) UnregisterAll(extensionID string) int {
	r.mu.Lock()
	removed := 0
	if _, exists := r.types[extensionID]; exists {
		delete(r.types, extensionID)
		removed++
	}
	prefix := OwnerPrefix(extensionID)
	for id := range r.instances {
		if hasPrefix(id, prefix) {
			delete(r.instances, id)
			removed++
		}
	}
	r.mu.Unlock()
	if removed > 0 {
		r.notifyChanged()
	}
	return removed
}

// Types returns every registered tab type sorted by order then insertion.
func (r *TabRegistry) Types() []TabTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]tabTypeEntry, 0, len(r.types))
	for _, e := range r.types {
		entries = append(entries, e)
	}
	idx := sortIndices(len(entries),
		func(i int) int { return resolveOrder(entries[i].def.Order) },
		func(i int) int { return entries[i].seq },
	)
	out := make([]TabTypeDefinition, len(entries))
	for i, j := range idx {
		out[i] = entries[j].def
	}
	return out
}

// CreateTab builds a new Tab owned by extensionID. If data["noteKey"] is set
// and a tab with the same kind+noteKey already exists, that tab is
// activated and returned instead of creating a duplicate.
func (r *TabRegistry) CreateTab(extensionID, kind, name string, data map[string]any, opts CreateTabOpts) *Tab {
	if noteKey, ok := data["noteKey"]; ok {
		if existing, found := r.findByKindAndNoteKey(kind, noteKey); found {
			r.ActivateTab(existing.TabID)
			return existing
		}
	}

	r.mu.Lock()
	r.nextTabSeq++
	tabID := fmt.Sprintf("%s%d", OwnerPrefix(extensionID), r.nextTabSeq)
	tab := &Tab{
		TabID:    tabID,
		Name:     name,
		Kind:     kind,
		Path:     fmt.Sprintf("extension:%s/%s", extensionID, tabID),
		PaneID:   opts.PaneID,
		Closable: opts.Closable,
		Data:     data,
	}
	r.instances[tabID] = tab
	r.mu.Unlock()
	r.notifyChanged()
	return tab
}

func (r *TabRegistry) findByKindAndNoteKey(kind string, noteKey any) (*Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tab := range r.instances {
		if tab.Kind == kind && tab.Data != nil && tab.Data["noteKey"] == noteKey {
			return tab, true
		}
	}
	return nil, false
}

// GetTab looks up a tab instance unconditionally; callers enforcing
// ownership must check the TabID prefix themselves (see capreg facades).
func (r *TabRegistry) GetTab(tabID string) (*Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tab, ok := r.instances[tabID]
	return tab, ok
}

// UpdateTab merges fields into an existing tab's Data map.
func (r *TabRegistry) UpdateTab(tabID string, data map[string]any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	tab, ok := r.instances[tabID]
	if !ok {
		return false
	}
	if tab.Data == nil {
		tab.Data = make(map[string]any)
	}
	for k, v := range data {
		tab.Data[k] = v
	}
	return true
}

// CloseTab removes a tab instance unconditionally.
func (r *TabRegistry) CloseTab(tabID string) bool {
	r.mu.Lock()
	_, ok := r.instances[tabID]
	delete(r.instances, tabID)
	r.mu.Unlock()
	if ok {
		r.notifyChanged()
	}
	return ok
}

// ActivateTab fires activation listeners for tabID; errors/panics in a
// listener are isolated.
func (r *TabRegistry) ActivateTab(tabID string) {
	r.activated.notify(func(rec any) {
		log.Warnf("capreg: tab activation listener for %s panicked: %v", tabID, rec)
	})
}

// OnChange registers a listener invoked after every mutation.
func (r *TabRegistry) OnChange(fn func()) func() {
	return r.changed.add(fn)
}

func (r *TabRegistry) notifyChanged() {
	r.changed.notify(func(rec any) {
		log.Warnf("capreg: tab change listener panicked: %v", rec)
	})
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
