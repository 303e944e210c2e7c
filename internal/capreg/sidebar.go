package capreg

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// SidebarPanelDefinition describes one panel an extension contributes. json
// tags double as the field-name mapping the module loader's goja VM uses
// (modloader.Load sets a TagFieldNameMapper), so these are also the exact
// property names an extension's JS object literal must use.
type SidebarPanelDefinition struct {
	Title     string `json:"title"`
	Icon      string `json:"icon"`
	Component any    `json:"component"`
	Order     int    `json:"order"`
}

type sidebarEntry struct {
	extensionID string
	panelID     string
	def         SidebarPanelDefinition
	state       map[string]any
	seq         int
}

// SidebarRegistry is the process-wide table of sidebar panels, keyed by
// "<extensionId>.<panelId>", plus per-panel activation listeners fired when
// the host switches to a panel.
type SidebarRegistry struct {
	mu       sync.RWMutex
	panels   map[string]*sidebarEntry
	changed  changeListenerSet
	onActive map[string][]func(fullID string)
	nextSeq  int
}

// NewSidebarRegistry builds an empty registry.
func NewSidebarRegistry() *SidebarRegistry {
	return &SidebarRegistry{
		panels:   make(map[string]*sidebarEntry),
		onActive: make(map[string][]func(fullID string)),
	}
}

func fullPanelID(extensionID, panelID string) string {
	return fmt.Sprintf("%s.%s", extensionID, panelID)
}

// Register installs or replaces a panel, returning its full id.
func (r *SidebarRegistry) Register(extensionID, panelID string, def SidebarPanelDefinition) string {
	fullID := fullPanelID(extensionID, panelID)
	r.mu.Lock()
	if _, exists := r.panels[fullID]; exists {
		log.Warnf("capreg: sidebar panel %s re-registered, overwriting", fullID)
	}
	r.nextSeq++
	r.panels[fullID] = &sidebarEntry{
		extensionID: extensionID,
		panelID:     panelID,
		def:         def,
		state:       make(map[string]any),
		seq:         r.nextSeq,
	}
	r.mu.Unlock()
	r.notifyChanged()
	return fullID
}

// Unregister removes a single panel by full id.
func (r *SidebarRegistry) Unregister(fullID string) bool {
	r.mu.Lock()
	_, ok := r.panels[fullID]
	delete(r.panels, fullID)
	delete(r.onActive, fullID)
	r.mu.Unlock()
	if ok {
		r.notifyChanged()
	}
	return ok
}

// UnregisterAll removes every panel owned by extensionID, returning the
// count removed.
func (r *SidebarRegistry) UnregisterAll(extensionID string) int {
	r.mu.Lock()
	removed := 0
	for fullID, entry := range r.panels {
		if entry.extensionID == extensionID {
			delete(r.panels, fullID)
			delete(r.onActive, fullID)
			removed++
		}
	}
	r.mu.Unlock()
	if removed > 0 {
		r.notifyChanged()
	}
	return removed
}

// List returns every registered panel sorted by order then insertion.
func (r *SidebarRegistry) List() []SidebarPanelDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*sidebarEntry, 0, len(r.panels))
	for _, e := range r.panels {
		entries = append(entries, e)
	}
	idx := sortIndices(len(entries),
		func(i int) int { return resolveOrder(entries[i].def.Order) },
		func(i int) int { return entries[i].seq },
	)
	out := make([]SidebarPanelDefinition, len(entries))
	for i, j := range idx {
		out[i] = entries[j].def
	}
	return out
}

// SetState merges fields into a panel's mutable state.
func (r *SidebarRegistry) SetState(fullID string, state map[string]any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.panels[fullID]
	if !ok {
		return false
	}
	for k, v := range state {
		entry.state[k] = v
	}
	return true
}

// OnPanelActivate registers a listener invoked when fullID becomes the
// active panel.
func (r *SidebarRegistry) OnPanelActivate(fullID string, fn func(fullID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onActive[fullID] = append(r.onActive[fullID], fn)
}

// ActivatePanel fires fullID's activation listeners; a panicking listener
// is caught and logged, the rest still run.
func (r *SidebarRegistry) ActivatePanel(fullID string) {
	r.mu.RLock()
	listeners := append([]func(string){}, r.onActive[fullID]...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Warnf("capreg: sidebar activation listener for %s panicked: %v", fullID, rec)
				}
			}()
			fn(fullID)
		}()
	}
}

// OnChange registers a listener invoked after every mutation.
func (r *SidebarRegistry) OnChange(fn func()) func() {
	return r.changed.add(fn)
}

func (r *SidebarRegistry) notifyChanged() {
	r.changed.notify(func(rec any) {
		log.Warnf("capreg: sidebar change listener panicked: %v", rec)
	})
}
