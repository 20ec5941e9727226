// Package runtimetest provides an in-memory runtime engine for tests.
// Modules are declared up front with their exports and the link-table
// entries they require; instantiation fails with the missing-import code
// until the wirer has supplied them, which exercises the progress loop
// without any compiled guests.
package runtimetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/davidthor/pypes/pkg/errors"
	"github.com/davidthor/pypes/pkg/runtime"
	"github.com/davidthor/pypes/pkg/wit"
	"github.com/zclconf/go-cty/cty"
)

// Export declares a callable export on a fake module.
type Export struct {
	// Iface is the named interface the export nests in; empty means a
	// root export.
	Iface string
	Name  string
	Sig   runtime.Signature
	Fn    runtime.HostFunc
}

// Module is a fake module definition.
type Module struct {
	Exports []Export

	// Requires lists link-table entries that must exist before the module
	// instantiates: either "slot" (any function under the slot) or
	// "slot.func" (that specific function).
	Requires []string
}

type def struct {
	sig runtime.Signature
	fn  runtime.HostFunc
}

// Engine is the in-memory engine.
type Engine struct {
	mu      sync.Mutex
	modules map[string]*Module
	loaded  map[string]bool
	defs    map[string]map[string]def

	// Instances records every successful instantiation by name.
	Instances map[string]*Instance
}

// NewEngine creates an empty in-memory engine.
func NewEngine() *Engine {
	return &Engine{
		modules:   map[string]*Module{},
		loaded:    map[string]bool{},
		defs:      map[string]map[string]def{},
		Instances: map[string]*Instance{},
	}
}

// Register declares a fake module under the given component name.
func (e *Engine) Register(name string, module *Module) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modules[name] = module
}

// Load marks a registered module as loaded. The path and descriptor are
// ignored; signatures live on the declared exports.
func (e *Engine) Load(ctx context.Context, name, path string, descriptor *wit.Package) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.modules[name]; !ok {
		return errors.New(errors.ErrCodeInstantiationFailed,
			fmt.Sprintf("module %q not registered", name))
	}
	e.loaded[name] = true
	return nil
}

func (e *Engine) Linker() runtime.Linker {
	return (*linker)(e)
}

func (e *Engine) Instantiate(ctx context.Context, name string) (runtime.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	module, ok := e.modules[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeInstantiationFailed,
			fmt.Sprintf("module %q not registered", name))
	}

	for _, req := range module.Requires {
		slot, fn := req, ""
		if i := strings.LastIndex(req, "."); i >= 0 {
			slot, fn = req[:i], req[i+1:]
		}
		entries := e.defs[slot]
		if len(entries) == 0 {
			return nil, errors.New(errors.ErrCodeMissingImport,
				fmt.Sprintf("module %q: import %q not defined", name, req))
		}
		if fn != "" {
			if _, ok := entries[fn]; !ok {
				return nil, errors.New(errors.ErrCodeMissingImport,
					fmt.Sprintf("module %q: import %q not defined", name, req))
			}
		}
	}

	inst := &Instance{name: name, module: module}
	e.Instances[name] = inst
	return inst, nil
}

func (e *Engine) Close(ctx context.Context) error { return nil }

// Defined reports whether slot.name has been installed into the link table.
func (e *Engine) Defined(slot, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.defs[slot][name]
	return ok
}

// HostFunc returns the installed link-table function, for direct invocation
// in tests.
func (e *Engine) HostFunc(slot, name string) (runtime.HostFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.defs[slot][name]
	if !ok {
		return nil, false
	}
	return d.fn, true
}

// SignatureOf returns the signature a link-table entry was registered with.
func (e *Engine) SignatureOf(slot, name string) (runtime.Signature, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.defs[slot][name]
	if !ok {
		return runtime.Signature{}, false
	}
	return d.sig, true
}

type linker Engine

func (l *linker) Define(slot, name string, sig runtime.Signature, fn runtime.HostFunc) error {
	e := (*Engine)(l)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.defs[slot] == nil {
		e.defs[slot] = map[string]def{}
	}
	e.defs[slot][name] = def{sig: sig, fn: fn}
	return nil
}

// Instance is an instantiated fake module.
type Instance struct {
	name   string
	module *Module

	mu    sync.Mutex
	Calls []Call
}

// Call records one function invocation.
type Call struct {
	Iface string
	Name  string
	Args  []cty.Value
}

func (i *Instance) Name() string { return i.name }

func (i *Instance) Func(iface, name string) (runtime.Function, bool) {
	for idx := range i.module.Exports {
		export := &i.module.Exports[idx]
		if export.Iface == iface && export.Name == name {
			return &function{inst: i, export: export}, true
		}
	}
	return nil, false
}

type function struct {
	inst   *Instance
	export *Export
}

func (f *function) Signature() runtime.Signature { return f.export.Sig }

func (f *function) Call(ctx context.Context, args []cty.Value) ([]cty.Value, error) {
	f.inst.mu.Lock()
	f.inst.Calls = append(f.inst.Calls, Call{Iface: f.export.Iface, Name: f.export.Name, Args: args})
	f.inst.mu.Unlock()

	if f.export.Fn == nil {
		return nil, nil
	}
	return f.export.Fn(ctx, args)
}
