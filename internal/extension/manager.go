package extension

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/singleflight"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/capreg"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/codefetch"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/modloader"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/registryfetch"
	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/store"
)

// ActiveExtension is the in-memory-only record of a currently enabled
// extension: its manifest, the context it was handed, its evaluated module
// (JS or native), and the activation value it returned.
type ActiveExtension struct {
	Manifest   extmodel.Manifest
	Context    *Context
	Module     *modloader.LoadedModule
	Native     *modloader.NativeModule
	Activation map[string]any
}

// ManagerConfig wires a Manager to its collaborators. BinaryDir is where
// native "service"-type extension executables live; SharedModules seeds
// every Module Loader invocation with host globals (__PYXIS_REACT__ and
// friends) that rewritten imports resolve against.
type ManagerConfig struct {
	Store         *store.Store
	Registry      *registryfetch.Fetcher
	Code          *codefetch.Fetcher
	BinaryDir     string
	SharedModules map[string]any
	SystemModules SystemModules
	LogSink       LogSink
	ExtensionRoot func(id string) string
}

// Manager is the ExtensionManager: the lifecycle orchestrator for install,
// enable, disable, and uninstall, with onlyOne conflict resolution, a
// per-id concurrency guard, and change-event emission. Grounded on the
// teacher's internal/extension/manager.go, replacing its
// Kubernetes-dashboard plugin dispatch with this runtime's JS/native dual
// Module Loader path.
type Manager struct {
	cfg ManagerConfig

	tabs     *capreg.TabRegistry
	sidebar  *capreg.SidebarRegistry
	menu     *capreg.ExplorerMenuRegistry
	commands *capreg.CommandRegistry

	mu          sync.RWMutex
	active      map[string]*ActiveExtension
	activeOrder []string
	enableGroup singleflight.Group

	listenersMu sync.Mutex
	listeners   []*func(extmodel.ChangeEvent)
}

// NewManager builds a Manager with its own capability registries.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		tabs:     capreg.NewTabRegistry(),
		sidebar:  capreg.NewSidebarRegistry(),
		menu:     capreg.NewExplorerMenuRegistry(),
		commands: capreg.NewCommandRegistry(),
		active:   make(map[string]*ActiveExtension),
	}
}

// Tabs, Sidebar, ExplorerMenu, and Commands expose the shared registries
// for host UI wiring (listing tab types, rendering panels, routing HTTP
// command execution, and so on).
func (m *Manager) Tabs() *capreg.TabRegistry                  { return m.tabs }
func (m *Manager) Sidebar() *capreg.SidebarRegistry           { return m.sidebar }
func (m *Manager) ExplorerMenu() *capreg.ExplorerMenuRegistry { return m.menu }
func (m *Manager) Commands() *capreg.CommandRegistry          { return m.commands }

// OnChange registers a listener invoked, in registration order, on every
// change event. A panicking listener is isolated from the rest.
func (m *Manager) OnChange(fn func(extmodel.ChangeEvent)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	token := &fn
	m.listeners = append(m.listeners, token)
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		for i, l := range m.listeners {
			if l == token {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) emit(event extmodel.ChangeEvent) {
	m.listenersMu.Lock()
	listeners := append([]*func(extmodel.ChangeEvent){}, m.listeners...)
	m.listenersMu.Unlock()
	for _, token := range listeners {
		fn := *token
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warnf("extension: change listener panicked: %v", r)
				}
			}()
			fn(event)
		}()
	}
}

// GetInstalledExtensions returns every persisted record.
func (m *Manager) GetInstalledExtensions() []extmodel.InstalledExtension {
	return m.cfg.Store.GetAll()
}

// Init loads persisted records and re-enables those marked enabled. It
// reports whether the store was empty, so the caller can hand off to
// AutoInstaller.Run for first-run bootstrap.
func (m *Manager) Init() (firstRun bool) {
	records := m.cfg.Store.GetAll()
	if len(records) == 0 {
		return true
	}
	for _, rec := range records {
		if !rec.Enabled {
			continue
		}
		if _, err := m.Enable(rec.Manifest.ID); err != nil {
			log.Warnf("extension: failed to re-enable %s at startup: %v", rec.Manifest.ID, err)
		}
	}
	return false
}

// Install fetches manifestURL's manifest, fetches its code, persists it,
// and auto-enables it. If the extension is already installed, the existing
// record is returned unchanged.
func (m *Manager) Install(manifestURL string) (*extmodel.InstalledExtension, error) {
	manifest, err := m.cfg.Registry.FetchManifest(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("extension: fetch manifest %s: %w", manifestURL, err)
	}
	return m.installManifest(*manifest)
}

// InstallFromZip installs an already-resolved ZIP result through the same
// tail as Install: persist then auto-enable.
func (m *Manager) InstallFromZip(manifest extmodel.Manifest, cache extmodel.Cache) (*extmodel.InstalledExtension, error) {
	if existing, ok := m.cfg.Store.Get(manifest.ID); ok {
		return &existing, nil
	}
	return m.persistAndAutoEnable(manifest, cache)
}

func (m *Manager) installManifest(manifest extmodel.Manifest) (*extmodel.InstalledExtension, error) {
	if existing, ok := m.cfg.Store.Get(manifest.ID); ok {
		return &existing, nil
	}

	m.warnUnmetDependencies(manifest)

	cache, err := m.cfg.Code.Fetch(manifest)
	if err != nil {
		return nil, fmt.Errorf("extension: fetch code for %s: %w", manifest.ID, err)
	}

	return m.persistAndAutoEnable(manifest, *cache)
}

func (m *Manager) warnUnmetDependencies(manifest extmodel.Manifest) {
	for _, dep := range manifest.Dependencies {
		if _, ok := m.cfg.Store.Get(dep); !ok {
			log.Warnf("extension: %s declares dependency %s which is not installed", manifest.ID, dep)
		}
	}
}

func (m *Manager) persistAndAutoEnable(manifest extmodel.Manifest, cache extmodel.Cache) (*extmodel.InstalledExtension, error) {
	now := currentTime()
	rec := extmodel.InstalledExtension{
		Manifest:    manifest,
		Status:      extmodel.StatusInstalled,
		Enabled:     false,
		InstalledAt: now,
		UpdatedAt:   now,
		Cache:       cache,
	}
	if err := m.cfg.Store.Set(rec); err != nil {
		return nil, fmt.Errorf("extension: persist %s: %w", manifest.ID, err)
	}
	m.emit(extmodel.ChangeEvent{Type: extmodel.EventInstalled, ExtensionID: manifest.ID, Manifest: &manifest})

	if _, err := m.Enable(manifest.ID); err != nil {
		log.Warnf("extension: auto-enable of %s after install failed: %v", manifest.ID, err)
	}

	final, _ := m.cfg.Store.Get(manifest.ID)
	return &final, nil
}

// Enable activates extensionId. It is idempotent if the extension is
// already active, and collapses concurrent calls for the same id through a
// singleflight group so two requests racing ahead of the first's
// completion never produce two ActiveExtension entries.
func (m *Manager) Enable(extensionID string) (*extmodel.InstalledExtension, error) {
	v, err, _ := m.enableGroup.Do(extensionID, func() (any, error) {
		return m.enableOnce(extensionID)
	})
	if err != nil {
		return nil, err
	}
	rec := v.(extmodel.InstalledExtension)
	return &rec, nil
}

func (m *Manager) enableOnce(extensionID string) (extmodel.InstalledExtension, error) {
	m.mu.RLock()
	_, alreadyActive := m.active[extensionID]
	m.mu.RUnlock()
	if alreadyActive {
		rec, _ := m.cfg.Store.Get(extensionID)
		return rec, nil
	}

	rec, ok := m.cfg.Store.Get(extensionID)
	if !ok {
		return extmodel.InstalledExtension{}, fmt.Errorf("extension: %s is not installed", extensionID)
	}
	manifest := rec.Manifest

	m.resolveOnlyOneConflicts(manifest)

	extPath := ""
	if m.cfg.ExtensionRoot != nil {
		extPath = m.cfg.ExtensionRoot(extensionID)
	}
	ctx := BuildContext(ContextParams{
		ExtensionID:   extensionID,
		ExtensionPath: extPath,
		Version:       manifest.Version,
		LogSink:       m.cfg.LogSink,
		SystemModules: m.cfg.SystemModules,
		Tabs:          m.tabs,
		Sidebar:       m.sidebar,
		ExplorerMenu:  m.menu,
		Commands:      m.commands,
	})

	active, err := m.load(manifest, rec, ctx)
	if err != nil {
		// Open question (activation rollback): roll back any capability
		// registrations the extension made before throwing, rather than
		// leaving them dangling with no active extension to own them.
		ctx.Facade().Dispose()
		return extmodel.InstalledExtension{}, err
	}

	rec.Enabled = true
	rec.Status = extmodel.StatusEnabled
	rec.Error = ""
	rec.UpdatedAt = currentTime()
	if err := m.cfg.Store.Set(rec); err != nil {
		// Activation succeeded but persistence failed: call deactivate to
		// preserve the activate/deactivate symmetry before reporting failure.
		deactivateBestEffort(active)
		ctx.Facade().Dispose()
		return extmodel.InstalledExtension{}, fmt.Errorf("extension: persist enabled state for %s: %w", extensionID, err)
	}

	m.mu.Lock()
	m.active[extensionID] = active
	m.activeOrder = append(m.activeOrder, extensionID)
	m.mu.Unlock()

	m.emit(extmodel.ChangeEvent{Type: extmodel.EventEnabled, ExtensionID: extensionID, Manifest: &manifest})
	return rec, nil
}

// resolveOnlyOneConflicts disables every other enabled extension sharing
// manifest.OnlyOne. onlyOne is symmetric, so this recurses at most one
// level: disabling the other member cannot itself trigger a further
// onlyOne conflict for this same group.
func (m *Manager) resolveOnlyOneConflicts(manifest extmodel.Manifest) {
	if manifest.OnlyOne == "" {
		return
	}
	for _, other := range m.cfg.Store.GetAll() {
		if other.Manifest.ID == manifest.ID || other.Manifest.OnlyOne != manifest.OnlyOne {
			continue
		}
		if other.Enabled {
			m.Disable(other.Manifest.ID)
		}
	}
}

func (m *Manager) load(manifest extmodel.Manifest, rec extmodel.InstalledExtension, ctx *Context) (*ActiveExtension, error) {
	if manifest.Type == extmodel.TypeService {
		return m.loadNative(manifest, ctx)
	}
	return m.loadJS(manifest, rec, ctx)
}

func (m *Manager) loadJS(manifest extmodel.Manifest, rec extmodel.InstalledExtension, ctx *Context) (*ActiveExtension, error) {
	loaded, err := modloader.Load(rec.Cache.EntryCode, modloader.HostContext{
		ExtensionID:   manifest.ID,
		Globals:       ctx.ToJSBindings(),
		SharedModules: m.cfg.SharedModules,
	})
	if err != nil {
		return nil, err
	}

	raw, err := loaded.Activate(ctx.ToJSBindings())
	if err != nil {
		return nil, err
	}
	activation, ok := raw.(map[string]any)
	if !ok && raw != nil {
		return nil, fmt.Errorf("extension: %s activate() returned %T, expected an object", manifest.ID, raw)
	}

	return &ActiveExtension{Manifest: manifest, Context: ctx, Module: loaded, Activation: activation}, nil
}

func (m *Manager) loadNative(manifest extmodel.Manifest, ctx *Context) (*ActiveExtension, error) {
	native, err := modloader.LoadNative(m.cfg.BinaryDir, manifest.ID)
	if err != nil {
		return nil, err
	}

	initPayload, _ := json.Marshal(struct {
		ExtensionID   string `json:"extensionId"`
		ExtensionPath string `json:"extensionPath"`
		Version       string `json:"version"`
	}{manifest.ID, ctx.ExtensionPath, manifest.Version})

	if err := native.Extension().Init(initPayload); err != nil {
		native.Close()
		return nil, fmt.Errorf("extension: init native extension %s: %w", manifest.ID, err)
	}

	activationJSON, err := native.Extension().Activate()
	if err != nil {
		native.Close()
		return nil, fmt.Errorf("extension: activate native extension %s: %w", manifest.ID, err)
	}

	var activation map[string]any
	if len(activationJSON) > 0 {
		if err := json.Unmarshal(activationJSON, &activation); err != nil {
			native.Close()
			return nil, fmt.Errorf("extension: decode activation for %s: %w", manifest.ID, err)
		}
	}

	return &ActiveExtension{Manifest: manifest, Context: ctx, Native: native, Activation: activation}, nil
}

// Disable deactivates extensionId if active and reports true. Calling it for
// an extension that is not currently active changes nothing and reports
// false.
func (m *Manager) Disable(extensionID string) bool {
	m.mu.Lock()
	active, ok := m.active[extensionID]
	if ok {
		delete(m.active, extensionID)
		m.activeOrder = removeString(m.activeOrder, extensionID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	active.Context.Facade().Dispose()
	deactivateBestEffort(active)

	if rec, found := m.cfg.Store.Get(extensionID); found {
		rec.Enabled = false
		rec.Status = extmodel.StatusInstalled
		rec.UpdatedAt = currentTime()
		if err := m.cfg.Store.Set(rec); err != nil {
			log.Warnf("extension: persist disabled state for %s: %v", extensionID, err)
		}
	}

	manifest := active.Manifest
	m.emit(extmodel.ChangeEvent{Type: extmodel.EventDisabled, ExtensionID: extensionID, Manifest: &manifest})
	return true
}

// Uninstall disables extensionId if active and deletes its persisted
// record.
func (m *Manager) Uninstall(extensionID string) bool {
	rec, ok := m.cfg.Store.Get(extensionID)
	if !ok {
		return false
	}

	m.Disable(extensionID)

	if err := m.cfg.Store.Delete(extensionID); err != nil {
		log.Warnf("extension: delete record for %s: %v", extensionID, err)
		return false
	}

	manifest := rec.Manifest
	m.emit(extmodel.ChangeEvent{Type: extmodel.EventUninstalled, ExtensionID: extensionID, Manifest: &manifest})
	return true
}

// GetEnabledLanguagePacks walks active extensions collecting the
// language-pack service every activation contributes, if any.
func (m *Manager) GetEnabledLanguagePacks() []extmodel.LanguagePackInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var packs []extmodel.LanguagePackInfo
	for _, id := range m.activeOrder {
		ae := m.active[id]
		services, ok := ae.Activation["services"].(map[string]any)
		if !ok {
			continue
		}
		raw, ok := services["language-pack"]
		if !ok {
			continue
		}
		if pack, ok := decodeLanguagePack(raw); ok {
			packs = append(packs, pack)
		}
	}
	return packs
}

func decodeLanguagePack(raw any) (extmodel.LanguagePackInfo, bool) {
	asMap, ok := raw.(map[string]any)
	if !ok {
		return extmodel.LanguagePackInfo{}, false
	}
	get := func(k string) string {
		if s, ok := asMap[k].(string); ok {
			return s
		}
		return ""
	}
	return extmodel.LanguagePackInfo{Locale: get("locale"), Name: get("name"), NativeName: get("nativeName")}, true
}

// GetAllBuiltInModules merges every active extension's builtInModules
// contribution in insertion (enable) order, with later enables winning on
// key collision.
func (m *Manager) GetAllBuiltInModules() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	merged := make(map[string]any)
	for _, id := range m.activeOrder {
		ae := m.active[id]
		modules, ok := ae.Activation["builtInModules"].(map[string]any)
		if !ok {
			continue
		}
		for name, impl := range modules {
			merged[name] = impl
		}
	}
	return merged
}

// CheckForUpdate looks up extensionID in the registry and reports whether
// its manifest there carries a newer semver version than the installed
// record. Go's semver library requires a "v" prefix, which manifest
// versions don't carry, so both sides get one prepended before comparing.
func (m *Manager) CheckForUpdate(extensionID string) (hasUpdate bool, latest string, err error) {
	rec, ok := m.cfg.Store.Get(extensionID)
	if !ok {
		return false, "", fmt.Errorf("extension: %s is not installed", extensionID)
	}

	reg := m.cfg.Registry.FetchRegistry(false)
	if reg == nil {
		return false, "", fmt.Errorf("extension: registry unavailable")
	}

	for _, entry := range reg.Extensions {
		if entry.ID != extensionID {
			continue
		}
		manifest, err := m.cfg.Registry.FetchManifest(entry.ManifestURL)
		if err != nil {
			return false, "", fmt.Errorf("extension: fetch manifest for %s: %w", extensionID, err)
		}
		if !semver.IsValid("v" + manifest.Version) {
			return false, "", fmt.Errorf("extension: registry manifest for %s carries invalid version %q", extensionID, manifest.Version)
		}
		return semver.Compare("v"+manifest.Version, "v"+rec.Manifest.Version) > 0, manifest.Version, nil
	}
	return false, "", fmt.Errorf("extension: %s is not present in the registry", extensionID)
}

// HTTPEndpoint returns the host:port a native service extension exposes via
// GetHTTPEndpoint, if extensionID is active and is a native extension that
// exposes one.
func (m *Manager) HTTPEndpoint(extensionID string) (string, bool) {
	m.mu.RLock()
	active, ok := m.active[extensionID]
	m.mu.RUnlock()
	if !ok || active.Native == nil {
		return "", false
	}
	endpoint, err := active.Native.Extension().GetHTTPEndpoint()
	if err != nil || endpoint == "" {
		return "", false
	}
	return endpoint, true
}

// ActiveServiceExtensionIDs lists every currently active native extension id,
// in enable order — used to mount reverse proxies at startup and after each
// lifecycle change. Whether an id exposes an HTTP endpoint is not checked
// here; HTTPEndpoint reports that.
func (m *Manager) ActiveServiceExtensionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, id := range m.activeOrder {
		if m.active[id].Native != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func deactivateBestEffort(active *ActiveExtension) {
	var err error
	switch {
	case active.Module != nil:
		err = active.Module.Deactivate()
	case active.Native != nil:
		err = active.Native.Extension().Deactivate()
		active.Native.Close()
	}
	if err != nil {
		log.Warnf("extension: deactivate %s: %v", active.Manifest.ID, err)
	}
}

func currentTime() time.Time {
	return time.Now()
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
