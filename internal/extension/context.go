// Package extension implements the lifecycle core: context construction,
// the manager state machine, and first-run auto-installation. Grounded on
// the teacher's internal/extension/manager.go, generalized from dispensing
// Kubernetes-dashboard plugin binaries to the broader install/enable/
// disable/uninstall state machine this runtime's manifests describe.
package extension

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/capreg"
)

// LogSeverity is one of the three severities extension logs carry.
type LogSeverity string

const (
	SeverityInfo  LogSeverity = "info"
	SeverityWarn  LogSeverity = "warn"
	SeverityError LogSeverity = "error"
)

// LogSink receives every extension log line, tagged with the emitting
// extension, its severity, and the fixed "extensions" channel. The host
// output panel (internal/hostlog) is the production LogSink.
type LogSink func(message string, severity LogSeverity, channel string)

// Logger is the per-extension logging façade; every method prefixes the
// message with "[extensionId]" before forwarding to the sink.
type Logger struct {
	extensionID string
	sink        LogSink
}

func newLogger(extensionID string, sink LogSink) *Logger {
	return &Logger{extensionID: extensionID, sink: sink}
}

func (l *Logger) Info(msg string)  { l.emit(msg, SeverityInfo) }
func (l *Logger) Warn(msg string)  { l.emit(msg, SeverityWarn) }
func (l *Logger) Error(msg string) { l.emit(msg, SeverityError) }

func (l *Logger) emit(msg string, severity LogSeverity) {
	tagged := fmt.Sprintf("[%s] %s", l.extensionID, msg)
	if l.sink != nil {
		l.sink(tagged, severity, "extensions")
		return
	}
	switch severity {
	case SeverityWarn:
		log.Warn(tagged)
	case SeverityError:
		log.Error(tagged)
	default:
		log.Info(tagged)
	}
}

// SystemModuleKey names one of the fixed collaborators extensions may
// request through getSystemModule. The set is closed: unknown keys error
// even if SystemModules happens to carry an entry for them.
type SystemModuleKey string

const (
	SystemModuleFileRepository   SystemModuleKey = "fileRepository"
	SystemModulePathUtilities    SystemModuleKey = "pathUtilities"
	SystemModuleCommandRegistry  SystemModuleKey = "commandRegistry"
	SystemModuleNormalizeCJSESM  SystemModuleKey = "normalizeCjsEsm"
	SystemModuleTerminalCommands SystemModuleKey = "terminalCommands"
)

var validSystemModules = map[SystemModuleKey]bool{
	SystemModuleFileRepository:   true,
	SystemModulePathUtilities:    true,
	SystemModuleCommandRegistry:  true,
	SystemModuleNormalizeCJSESM:  true,
	SystemModuleTerminalCommands: true,
}

// SystemModules holds the host's concrete implementations of the fixed
// system-module set. These collaborators (virtual filesystem, path utils,
// the shell's terminal commands, ...) are specified elsewhere in the host
// application; this runtime only owns the typed, closed-set dispatch over
// them.
type SystemModules map[SystemModuleKey]any

// Context is the ExtensionContext handed to activate(context): identity,
// logging, the system-module accessor, and the capability façades. tabs,
// sidebar, explorerMenu, and commands all delegate to the same per-
// extension capreg.Facade, which is the one legal mutator of the shared
// registries.
type Context struct {
	ExtensionID   string
	ExtensionPath string
	Version       string
	Logger        *Logger

	Tabs         *capreg.Facade
	Sidebar      *capreg.Facade
	ExplorerMenu *capreg.Facade
	Commands     *capreg.Facade

	systemModules SystemModules
	facade        *capreg.Facade
}

// ContextParams are the inputs the manager supplies to build a Context at
// enable time.
type ContextParams struct {
	ExtensionID   string
	ExtensionPath string
	Version       string
	LogSink       LogSink
	SystemModules SystemModules
	Tabs          *capreg.TabRegistry
	Sidebar       *capreg.SidebarRegistry
	ExplorerMenu  *capreg.ExplorerMenuRegistry
	Commands      *capreg.CommandRegistry
}

// BuildContext constructs an ExtensionContext and the façade backing it.
func BuildContext(p ContextParams) *Context {
	facade := capreg.NewFacade(p.ExtensionID, p.Tabs, p.Sidebar, p.ExplorerMenu, p.Commands)
	return &Context{
		ExtensionID:   p.ExtensionID,
		ExtensionPath: p.ExtensionPath,
		Version:       p.Version,
		Logger:        newLogger(p.ExtensionID, p.LogSink),
		Tabs:          facade,
		Sidebar:       facade,
		ExplorerMenu:  facade,
		Commands:      facade,
		systemModules: p.SystemModules,
		facade:        facade,
	}
}

// GetSystemModule resolves name against the closed system-module set,
// returning an error for any name outside it — including names the host
// never wired up, which also error rather than returning nil.
func (c *Context) GetSystemModule(name string) (any, error) {
	key := SystemModuleKey(name)
	if !validSystemModules[key] {
		return nil, fmt.Errorf("extension: unknown system module %q", name)
	}
	module, ok := c.systemModules[key]
	if !ok {
		return nil, fmt.Errorf("extension: system module %q is not available on this host", name)
	}
	return module, nil
}

// Facade returns the façade backing this context, for the manager's
// disable-time disposal.
func (c *Context) Facade() *capreg.Facade {
	return c.facade
}

// RegisterCommand wraps handler so that, per the command registry's
// contract, the context argument it receives at execution time is the
// union of the caller-supplied CommandContext and this extension's own
// ExtensionContext bindings, with caller-supplied keys winning.
func (c *Context) RegisterCommand(name string, handler capreg.CommandHandler) func() {
	wrapped := func(args, callerCtx map[string]any) (string, error) {
		merged := make(map[string]any, len(callerCtx)+8)
		for k, v := range c.ToJSBindings() {
			merged[k] = v
		}
		for k, v := range callerCtx {
			merged[k] = v
		}
		return handler(args, merged)
	}
	return c.Commands.RegisterCommand(name, wrapped)
}

// ToJSBindings flattens the context into the globals the Module Loader
// injects into a fresh VM for activate/deactivate to call.
func (c *Context) ToJSBindings() map[string]any {
	return map[string]any{
		"extensionId":   c.ExtensionID,
		"extensionPath": c.ExtensionPath,
		"version":       c.Version,
		"logger": map[string]any{
			"info":  c.Logger.Info,
			"warn":  c.Logger.Warn,
			"error": c.Logger.Error,
		},
		"getSystemModule": func(name string) (any, error) { return c.GetSystemModule(name) },
		"tabs": map[string]any{
			"registerType": c.Tabs.RegisterTabType,
			"createTab": func(name string, data map[string]any) *capreg.Tab {
				return c.Tabs.CreateTab(name, data, capreg.CreateTabOpts{})
			},
			"updateTab":  c.Tabs.UpdateTab,
			"closeTab":   c.Tabs.CloseTab,
			"getTabData": c.Tabs.GetTabData,
			"onTabClose": c.Tabs.OnTabClose,
		},
		"sidebar": map[string]any{
			"registerPanel":   c.Sidebar.RegisterSidebarPanel,
			"setPanelState":   c.Sidebar.SetPanelState,
			"onPanelActivate": c.Sidebar.OnPanelActivate,
		},
		"explorerMenu": map[string]any{
			"registerItem": c.ExplorerMenu.RegisterMenuItem,
		},
		"commands": map[string]any{
			"register": c.RegisterCommand,
		},
	}
}
