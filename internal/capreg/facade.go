package capreg

import log "github.com/sirupsen/logrus"

// Facade is the single per-extension object issued at activation time that
// is the only legal way for an extension to mutate the shared capability
// registries. It enforces ownership (every id it creates carries its
// extensionId) and tracks everything it creates so Dispose can tear it all
// down deterministically.
type Facade struct {
	extensionID string
	tabs        *TabRegistry
	sidebar     *SidebarRegistry
	menu        *ExplorerMenuRegistry
	commands    *CommandRegistry

	ownedPanels      []string
	ownedMenuItems   []string
	closeCallbacks   map[string][]func()
}

// NewFacade builds the façade extensionID will use for the duration of its
// activation.
func NewFacade(extensionID string, tabs *TabRegistry, sidebar *SidebarRegistry, menu *ExplorerMenuRegistry, commands *CommandRegistry) *Facade {
	return &Facade{
		extensionID:    extensionID,
		tabs:           tabs,
		sidebar:        sidebar,
		menu:           menu,
		commands:       commands,
		closeCallbacks: make(map[string][]func()),
	}
}

func (f *Facade) owns(tabID string) bool {
	return hasPrefix(tabID, OwnerPrefix(f.extensionID))
}

// RegisterTabType installs the extension's tab type.
func (f *Facade) RegisterTabType(kind, displayName, icon string, component any, order int) {
	f.tabs.RegisterType(TabTypeDefinition{
		ExtensionID: f.extensionID,
		Kind:        "extension:" + f.extensionID,
		Component:   component,
		DisplayName: displayName,
		Icon:        icon,
		Order:       order,
	})
	_ = kind // kind is derived from extensionID per spec; kept as a parameter for call-site clarity
}

// CreateTab creates a tab owned by this extension, applying the noteKey
// dedup rule.
func (f *Facade) CreateTab(name string, data map[string]any, opts CreateTabOpts) *Tab {
	return f.tabs.CreateTab(f.extensionID, "extension:"+f.extensionID, name, data, opts)
}

// UpdateTab applies data to tabID if and only if this extension owns it.
func (f *Facade) UpdateTab(tabID string, data map[string]any) bool {
	if !f.owns(tabID) {
		log.Warnf("capreg: %s attempted to update tab %s it does not own", f.extensionID, tabID)
		return false
	}
	return f.tabs.UpdateTab(tabID, data)
}

// CloseTab closes tabID if and only if this extension owns it, running any
// registered close callbacks best-effort first.
func (f *Facade) CloseTab(tabID string) bool {
	if !f.owns(tabID) {
		log.Warnf("capreg: %s attempted to close tab %s it does not own", f.extensionID, tabID)
		return false
	}
	f.runCloseCallbacks(tabID)
	return f.tabs.CloseTab(tabID)
}

// GetTabData returns tabID's data if and only if this extension owns it.
func (f *Facade) GetTabData(tabID string) (map[string]any, bool) {
	if !f.owns(tabID) {
		log.Warnf("capreg: %s attempted to read tab %s it does not own", f.extensionID, tabID)
		return nil, false
	}
	tab, ok := f.tabs.GetTab(tabID)
	if !ok {
		return nil, false
	}
	return tab.Data, true
}

// OnTabClose registers a best-effort callback invoked when tabID is closed
// through this façade, if and only if this extension owns it.
func (f *Facade) OnTabClose(tabID string, fn func()) bool {
	if !f.owns(tabID) {
		log.Warnf("capreg: %s attempted to register close callback on tab %s it does not own", f.extensionID, tabID)
		return false
	}
	f.closeCallbacks[tabID] = append(f.closeCallbacks[tabID], fn)
	return true
}

func (f *Facade) runCloseCallbacks(tabID string) {
	for _, cb := range f.closeCallbacks[tabID] {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Warnf("capreg: %s tab-close callback panicked: %v", f.extensionID, rec)
				}
			}()
			cb()
		}()
	}
	delete(f.closeCallbacks, tabID)
}

// RegisterSidebarPanel installs a sidebar panel owned by this extension.
func (f *Facade) RegisterSidebarPanel(panelID string, def SidebarPanelDefinition) string {
	fullID := f.sidebar.Register(f.extensionID, panelID, def)
	f.ownedPanels = append(f.ownedPanels, fullID)
	return fullID
}

func (f *Facade) ownsPanel(fullID string) bool {
	return hasPrefix(fullID, f.extensionID+".")
}

// SetPanelState merges state into fullID's mutable state if and only if this
// extension owns it.
func (f *Facade) SetPanelState(fullID string, state map[string]any) bool {
	if !f.ownsPanel(fullID) {
		log.Warnf("capreg: %s attempted to set state on panel %s it does not own", f.extensionID, fullID)
		return false
	}
	return f.sidebar.SetState(fullID, state)
}

// OnPanelActivate registers fn to run when fullID becomes the active panel,
// if and only if this extension owns it.
func (f *Facade) OnPanelActivate(fullID string, fn func()) bool {
	if !f.ownsPanel(fullID) {
		log.Warnf("capreg: %s attempted to listen for activation on panel %s it does not own", f.extensionID, fullID)
		return false
	}
	f.sidebar.OnPanelActivate(fullID, func(string) { fn() })
	return true
}

// RegisterMenuItem installs an explorer menu item owned by this extension.
func (f *Facade) RegisterMenuItem(itemID string, def ExplorerMenuItemDefinition) string {
	fullID := f.menu.Register(f.extensionID, itemID, def)
	f.ownedMenuItems = append(f.ownedMenuItems, fullID)
	return fullID
}

// RegisterCommand installs a terminal command owned by this extension.
func (f *Facade) RegisterCommand(name string, handler CommandHandler) func() {
	return f.commands.Register(f.extensionID, name, handler)
}

// Dispose enumerates and removes every tab, panel, menu item, and command
// this façade created, returning the total count removed. Close callbacks
// run best-effort with errors swallowed.
func (f *Facade) Dispose() int {
	removed := 0
	removed += f.tabs.UnregisterAll(f.extensionID)
	removed += f.sidebar.UnregisterAll(f.extensionID)
	removed += f.menu.UnregisterAll(f.extensionID)
	removed += f.commands.UnregisterAll(f.extensionID)

	for tabID := range f.closeCallbacks {
		f.runCloseCallbacks(tabID)
	}
	f.ownedPanels = nil
	f.ownedMenuItems = nil

	return removed
}
