// Package wazeroengine implements the runtime contract on wazero.
//
// Guests speak a JSON-over-linear-memory ABI: every exported or imported
// function takes (ptr, len) of a JSON-encoded argument array and returns a
// packed u64 (ptr<<32 | len) of the JSON-encoded result array. Guests
// export an allocator (cabi_realloc or alloc) the host uses to stage
// argument bytes.
package wazeroengine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/davidthor/pypes/pkg/errors"
	"github.com/davidthor/pypes/pkg/runtime"
	"github.com/davidthor/pypes/pkg/values"
	"github.com/davidthor/pypes/pkg/wit"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

type loadedModule struct {
	compiled   wazero.CompiledModule
	descriptor *wit.Package
}

type hostDef struct {
	sig runtime.Signature
	fn  runtime.HostFunc
}

// Engine is a wazero-backed sandboxed-module runtime.
type Engine struct {
	rt     wazero.Runtime
	logger *zap.Logger

	mu        sync.Mutex
	modules   map[string]*loadedModule
	defs      map[string]map[string]hostDef
	committed map[string]bool
}

// New creates an engine backed by a fresh wazero runtime with WASI
// available to guests.
func New(ctx context.Context, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.ErrCodeInstantiationFailed, "failed to initialize WASI", err)
	}
	return &Engine{
		rt:        rt,
		logger:    logger,
		modules:   map[string]*loadedModule{},
		defs:      map[string]map[string]hostDef{},
		committed: map[string]bool{},
	}, nil
}

func (e *Engine) Load(ctx context.Context, name, path string, descriptor *wit.Package) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigIO, fmt.Sprintf("failed to read module %s", path), err)
	}
	compiled, err := e.rt.CompileModule(ctx, data)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInstantiationFailed,
			fmt.Sprintf("failed to compile module %q", name), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.modules[name] = &loadedModule{compiled: compiled, descriptor: descriptor}
	return nil
}

func (e *Engine) Linker() runtime.Linker {
	return (*linker)(e)
}

func (e *Engine) Instantiate(ctx context.Context, name string) (runtime.Instance, error) {
	e.mu.Lock()
	module, ok := e.modules[name]
	e.mu.Unlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeInstantiationFailed,
			fmt.Sprintf("module %q not loaded", name))
	}

	if err := e.commit(ctx); err != nil {
		return nil, err
	}

	mod, err := e.rt.InstantiateModule(ctx, module.compiled,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions("_initialize", "_start"))
	if err != nil {
		if isMissingImport(err) {
			return nil, errors.Wrap(errors.ErrCodeMissingImport,
				fmt.Sprintf("module %q has unresolved imports", name), err)
		}
		return nil, errors.Wrap(errors.ErrCodeInstantiationFailed,
			fmt.Sprintf("failed to instantiate %q", name), err)
	}

	return &instance{name: name, mod: mod, descriptor: module.descriptor}, nil
}

func (e *Engine) Close(ctx context.Context) error {
	return e.rt.Close(ctx)
}

// commit instantiates host modules for every link-table slot that gained
// definitions since the last instantiation attempt.
func (e *Engine) commit(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for slot, funcs := range e.defs {
		if e.committed[slot] {
			continue
		}
		builder := e.rt.NewHostModuleBuilder(slot)
		for fname, def := range funcs {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(e.hostShim(slot, fname, def),
					[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
					[]api.ValueType{api.ValueTypeI64}).
				Export(fname)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return errors.Wrap(errors.ErrCodeInstantiationFailed,
				fmt.Sprintf("failed to install link-table slot %q", slot), err)
		}
		e.committed[slot] = true
	}
	return nil
}

// hostShim adapts a HostFunc to the guest ABI: decode the caller's argument
// bytes, run the proxy, write the result bytes back into the caller.
func (e *Engine) hostShim(slot, fname string, def hostDef) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, caller api.Module, stack []uint64) {
		ptr, length := uint32(stack[0]), uint32(stack[1])

		payload, ok := caller.Memory().Read(ptr, length)
		if ok {
			// Read returns a view into guest memory; copy before decode.
			payload = append([]byte(nil), payload...)
		} else {
			payload = []byte("[]")
		}

		args, err := decodeArgs(payload, def.sig)
		if err == nil {
			var results []cty.Value
			results, err = def.fn(ctx, args)
			if err == nil {
				var encoded []byte
				encoded, err = encodeResults(results)
				if err == nil {
					var out uint64
					out, err = writeToGuest(ctx, caller, encoded)
					if err == nil {
						stack[0] = out
						return
					}
				}
			}
		}

		e.logger.Warn("host call failed",
			zap.String("slot", slot), zap.String("function", fname), zap.Error(err))
		stack[0] = 0
	})
}

type linker Engine

func (l *linker) Define(slot, name string, sig runtime.Signature, fn runtime.HostFunc) error {
	e := (*Engine)(l)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.committed[slot] {
		return errors.New(errors.ErrCodeInstantiationFailed,
			fmt.Sprintf("link-table slot %q already sealed", slot))
	}
	if e.defs[slot] == nil {
		e.defs[slot] = map[string]hostDef{}
	}
	e.defs[slot][name] = hostDef{sig: sig, fn: fn}
	return nil
}

type instance struct {
	name       string
	mod        api.Module
	descriptor *wit.Package
}

func (i *instance) Name() string { return i.name }

func (i *instance) Func(iface, name string) (runtime.Function, bool) {
	// Interface-nested exports use the "iface#func" naming convention;
	// root exports are exported bare.
	var fn api.Function
	if iface != "" {
		fn = i.mod.ExportedFunction(iface + "#" + name)
	}
	if fn == nil {
		fn = i.mod.ExportedFunction(name)
		if fn != nil && iface != "" {
			// A bare export only satisfies an interface lookup when the
			// descriptor places the function under that interface.
			if i.descriptor != nil {
				if decl, ok := i.descriptor.Interface(iface); ok {
					if _, ok := decl.Function(name); !ok {
						return nil, false
					}
				}
			}
		}
	}
	if fn == nil {
		return nil, false
	}

	return &function{inst: i, fn: fn, sig: i.signature(iface, name)}, true
}

func (i *instance) signature(iface, name string) runtime.Signature {
	if i.descriptor == nil {
		return runtime.Signature{}
	}
	if iface != "" {
		if decl, ok := i.descriptor.Interface(iface); ok {
			if fn, ok := decl.Function(name); ok {
				return runtime.Signature{Params: fn.Params, Results: fn.Results, Known: true}
			}
		}
		return runtime.Signature{}
	}
	for _, decl := range i.descriptor.Interfaces {
		if fn, ok := decl.Function(name); ok {
			return runtime.Signature{Params: fn.Params, Results: fn.Results, Known: true}
		}
	}
	return runtime.Signature{}
}

type function struct {
	inst *instance
	fn   api.Function
	sig  runtime.Signature
}

func (f *function) Signature() runtime.Signature { return f.sig }

func (f *function) Call(ctx context.Context, args []cty.Value) ([]cty.Value, error) {
	payload, err := values.EncodeArgs(args)
	if err != nil {
		return nil, err
	}

	packed, err := writeToGuest(ctx, f.inst.mod, payload)
	if err != nil {
		return nil, err
	}

	raw, err := f.fn.Call(ctx, packed>>32, packed&0xffffffff)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCallFailed,
			fmt.Sprintf("call into %q failed", f.inst.name), err)
	}
	if len(raw) == 0 || raw[0] == 0 {
		return nil, nil
	}

	outPtr, outLen := uint32(raw[0]>>32), uint32(raw[0]&0xffffffff)
	data, ok := f.inst.mod.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, errors.New(errors.ErrCodeCallFailed,
			fmt.Sprintf("result pointer from %q out of bounds", f.inst.name))
	}
	data = append([]byte(nil), data...)

	resultTypes := f.sig.Results
	if !f.sig.Known {
		resultTypes = []cty.Type{cty.DynamicPseudoType}
	}
	return values.DecodeResults(data, resultTypes)
}

// writeToGuest stages bytes in guest memory via the module's allocator and
// returns the packed (ptr<<32 | len).
func writeToGuest(ctx context.Context, mod api.Module, data []byte) (uint64, error) {
	size := uint64(len(data))
	if size == 0 {
		return 0, nil
	}

	var ptr uint64
	if realloc := mod.ExportedFunction("cabi_realloc"); realloc != nil {
		res, err := realloc.Call(ctx, 0, 0, 1, size)
		if err != nil || len(res) == 0 {
			return 0, errors.Wrap(errors.ErrCodeCallFailed, "guest allocator failed", err)
		}
		ptr = res[0]
	} else if alloc := mod.ExportedFunction("alloc"); alloc != nil {
		res, err := alloc.Call(ctx, size)
		if err != nil || len(res) == 0 {
			return 0, errors.Wrap(errors.ErrCodeCallFailed, "guest allocator failed", err)
		}
		ptr = res[0]
	} else {
		return 0, errors.New(errors.ErrCodeCallFailed,
			fmt.Sprintf("module %q exports no allocator", mod.Name()))
	}

	if !mod.Memory().Write(uint32(ptr), data) {
		return 0, errors.New(errors.ErrCodeCallFailed, "guest allocation out of bounds")
	}
	return ptr<<32 | size, nil
}

// decodeArgs decodes a JSON argument array using the declared parameter
// types; unknown signatures decode dynamically.
func decodeArgs(payload []byte, sig runtime.Signature) ([]cty.Value, error) {
	if sig.Known {
		return values.DecodeResults(payload, sig.ParamTypes())
	}

	decoded, err := values.FromJSON(payload, cty.DynamicPseudoType)
	if err != nil {
		return nil, err
	}
	if decoded.Type().IsTupleType() || decoded.Type().IsListType() {
		return decoded.AsValueSlice(), nil
	}
	return []cty.Value{decoded}, nil
}

// encodeResults encodes a result vector as a JSON array.
func encodeResults(results []cty.Value) ([]byte, error) {
	return values.EncodeArgs(results)
}

// isMissingImport distinguishes "a dependency is not wired yet" from real
// instantiation failures, so the wirer can retry in a later iteration.
func isMissingImport(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not instantiated") ||
		strings.Contains(msg, "not exported") ||
		strings.Contains(msg, "not defined")
}
