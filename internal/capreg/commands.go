// Package capreg holds the process-wide capability registries — commands,
// tabs, sidebar panels, explorer-menu items — that extensions populate
// through per-extension façades. Grounded on the teacher's
// internal/modules/registry.go map+sync.RWMutex shape, generalized from a
// single module table into the several capability tables this runtime
// needs.
package capreg

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// CommandHandler is a terminal command implementation registered by an
// extension. args is the caller-supplied argument map; ctx is the merged
// CommandContext/ExtensionContext union described by the command registry's
// Execute contract.
type CommandHandler func(args, ctx map[string]any) (string, error)

type commandEntry struct {
	extensionID string
	handler     CommandHandler
}

// CommandRegistry is the process-wide table of commandName -> (owner,
// handler). commandName is global across extensions; re-registering an
// existing name overwrites it with a warning rather than failing.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]commandEntry
}

// NewCommandRegistry builds an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]commandEntry)}
}

// Register installs handler under name owned by extensionID, returning an
// unregister closure. A collision with an existing command name overwrites
// it and logs a warning.
func (r *CommandRegistry) Register(extensionID, name string, handler CommandHandler) func() {
	r.mu.Lock()
	if _, exists := r.commands[name]; exists {
		log.Warnf("capreg: command %q re-registered by %s, overwriting previous owner", name, extensionID)
	}
	r.commands[name] = commandEntry{extensionID: extensionID, handler: handler}
	r.mu.Unlock()

	return func() { r.Unregister(name) }
}

// Unregister removes a single command by name, regardless of owner.
func (r *CommandRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, name)
}

// UnregisterAll removes every command owned by extensionID and returns how
// many were removed, so a façade's dispose() can account for exactly what
// it tore down.
func (r *CommandRegistry) UnregisterAll(extensionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for name, entry := range r.commands {
		if entry.extensionID == extensionID {
			delete(r.commands, name)
			removed++
		}
	}
	return removed
}

// Execute looks up name and invokes its handler with (args, ctx). Unlike
// every other manager-facing operation, Execute propagates an error to the
// caller instead of returning false/null — it is the one documented
// exception to the "never throw" rule.
func (r *CommandRegistry) Execute(name string, args, ctx map[string]any) (string, error) {
	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("capreg: no command registered as %q", name)
	}
	return entry.handler(args, ctx)
}

// Has reports whether name is currently registered.
func (r *CommandRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[name]
	return ok
}

// List returns every registered command name.
func (r *CommandRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	return names
}

// Describe returns the owning extension id for name, if registered.
func (r *CommandRegistry) Describe(name string) (extensionID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, found := r.commands[name]
	if !found {
		return "", false
	}
	return entry.extensionID, true
}
