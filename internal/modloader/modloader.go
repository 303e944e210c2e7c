// Package modloader is the Module Loader: it takes an extension's
// rewritten JS source (see internal/importrewrite) and evaluates it inside
// an embedded goja VM, exposing host capabilities as injected globals and
// returning callable handles to the extension's activate/deactivate
// exports. A second path, in native.go, dispenses "service"-type
// extensions shipped as precompiled native binaries over hashicorp/go-plugin
// instead of evaluating them as JS — the teacher's own mechanism, kept for
// that one extension type.
//
// goja is not a dependency any example repo in the retrieval pack carries;
// no reference repo embeds a JS engine, so there is nothing in the corpus to
// imitate for this half of the loader. It is the one deliberately
// out-of-pack dependency the runtime needs, since evaluating untrusted
// extension JS in-process is the whole point of a Module Loader.
package modloader

import (
	"fmt"
	"regexp"

	"github.com/dop251/goja"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/importrewrite"
)

// HostContext carries everything the loader injects into a fresh VM before
// evaluating an extension's entry script. Globals holds capability
// namespaces (commands, tabs, sidebar, explorerMenu, getSystemModule,
// logger, ...) built by the extension package per-activation; SharedModules
// holds the host-global values that importrewrite.Rewrite's output expects
// to already exist (__PYXIS_REACT__ and friends).
type HostContext struct {
	ExtensionID   string
	Globals       map[string]any
	SharedModules map[string]any
}

// LoadedModule wraps an evaluated extension script and its exported
// activate/deactivate functions.
type LoadedModule struct {
	vm           *goja.Runtime
	activateFn   goja.Callable
	deactivateFn goja.Callable
}

var (
	exportConstLet = regexp.MustCompile(`(?m)^([ \t]*)export\s+(const|let|var)\s+`)
	exportFunction = regexp.MustCompile(`(?m)^([ \t]*)export\s+function\s+`)
	exportDefault  = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+`)
	exportBare     = regexp.MustCompile(`(?m)^([ \t]*)export\s+`)
)

// stripExports removes ES module export syntax the goja runtime cannot
// parse, rewriting declarations to plain var/function statements so their
// bindings land on the global object and are reachable via vm.Get.
func stripExports(src string) string {
	src = exportConstLet.ReplaceAllString(src, "${1}var ")
	src = exportFunction.ReplaceAllString(src, "${1}function ")
	src = exportDefault.ReplaceAllString(src, "${1}var __default__ = ")
	src = exportBare.ReplaceAllString(src, "${1}")
	return src
}

// Load rewrites host-relative imports, strips ESM export syntax, evaluates
// the result in a fresh goja VM seeded with host.SharedModules and
// host.Globals, and resolves the extension's activate export. A missing or
// non-callable activate export is a load failure; deactivate is optional.
func Load(source string, host HostContext) (*LoadedModule, error) {
	rewritten := stripExports(importrewrite.Rewrite(source))

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	for name, val := range host.SharedModules {
		if err := vm.Set(name, val); err != nil {
			return nil, fmt.Errorf("modloader: set shared module %s for %s: %w", name, host.ExtensionID, err)
		}
	}
	for name, val := range host.Globals {
		if err := vm.Set(name, val); err != nil {
			return nil, fmt.Errorf("modloader: set host global %s for %s: %w", name, host.ExtensionID, err)
		}
	}
	if err := vm.Set("require", func(call goja.FunctionCall) goja.Value {
		panic(vm.ToValue("require() is not supported inside extensions; host-relative imports are rewritten at load time"))
	}); err != nil {
		return nil, fmt.Errorf("modloader: set require stub for %s: %w", host.ExtensionID, err)
	}

	if _, err := vm.RunString(rewritten); err != nil {
		return nil, fmt.Errorf("modloader: evaluate %s: %w", host.ExtensionID, err)
	}

	activateVal := vm.Get("activate")
	if activateVal == nil || goja.IsUndefined(activateVal) {
		return nil, fmt.Errorf("modloader: %s does not export activate", host.ExtensionID)
	}
	activateFn, ok := goja.AssertFunction(activateVal)
	if !ok {
		return nil, fmt.Errorf("modloader: %s exports activate but it is not callable", host.ExtensionID)
	}

	var deactivateFn goja.Callable
	if deactivateVal := vm.Get("deactivate"); deactivateVal != nil && !goja.IsUndefined(deactivateVal) {
		if fn, ok := goja.AssertFunction(deactivateVal); ok {
			deactivateFn = fn
		}
	}

	return &LoadedModule{vm: vm, activateFn: activateFn, deactivateFn: deactivateFn}, nil
}

// Activate invokes the extension's activate(context) export and returns its
// exported-to-Go return value. A thrown JS exception or panic inside the VM
// surfaces as a Go error rather than crashing the host process.
func (m *LoadedModule) Activate(context any) (activation any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("modloader: activate panicked: %v", r)
		}
	}()
	v, callErr := m.activateFn(goja.Undefined(), m.vm.ToValue(context))
	if callErr != nil {
		return nil, fmt.Errorf("modloader: activate: %w", callErr)
	}
	return resolveActivationResult(v)
}

// resolveActivationResult unwraps a Promise returned by an async activate()
// export (§6 documents activate as returning Promise<ExtensionActivation>).
// goja has no timer-driven event loop, so a Promise chain built only out of
// synchronous work — the only kind an in-VM activate() can actually do here,
// since there is no I/O to await — is already settled by the time
// activateFn returns. A Promise still pending at that point can never settle
// on its own and is reported as a failure instead of silently discarded.
func resolveActivationResult(v goja.Value) (any, error) {
	exported := v.Export()
	prom, ok := exported.(*goja.Promise)
	if !ok {
		return exported, nil
	}
	switch prom.State() {
	case goja.PromiseStateFulfilled:
		return prom.Result().Export(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("modloader: activate: promise rejected: %v", prom.Result().Export())
	default:
		return nil, fmt.Errorf("modloader: activate: promise did not settle synchronously")
	}
}

// HasDeactivate reports whether the extension exported a callable
// deactivate function.
func (m *LoadedModule) HasDeactivate() bool {
	return m.deactivateFn != nil
}

// Deactivate invokes the extension's deactivate export, if any. Absence of
// a deactivate export is not an error.
func (m *LoadedModule) Deactivate() (err error) {
	if m.deactivateFn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("modloader: deactivate panicked: %v", r)
		}
	}()
	_, callErr := m.deactivateFn(goja.Undefined())
	if callErr != nil {
		return fmt.Errorf("modloader: deactivate: %w", callErr)
	}
	return nil
}
