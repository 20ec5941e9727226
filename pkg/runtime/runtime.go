// Package runtime defines the contract between pypes and the sandboxed
// module runtime: module loading, a shared typed link table, instantiation,
// and typed function calls. Values cross the boundary as cty values; the
// concrete engine is responsible for marshalling them to its guests.
package runtime

import (
	"context"

	"github.com/davidthor/pypes/pkg/wit"
	"github.com/zclconf/go-cty/cty"
)

// Signature describes a function's typed parameter and result lists.
type Signature struct {
	Params  []wit.Param
	Results []cty.Type

	// Known is false when no interface descriptor covered the function;
	// callers fall back to the single-string-argument contract.
	Known bool
}

// ParamTypes returns just the parameter types.
func (s Signature) ParamTypes() []cty.Type {
	types := make([]cty.Type, len(s.Params))
	for i, p := range s.Params {
		types[i] = p.Type
	}
	return types
}

// HostFunc is a function installed into the link table. Proxies built by
// the wirer have this shape.
type HostFunc func(ctx context.Context, args []cty.Value) ([]cty.Value, error)

// Function is a callable export of an instantiated module.
type Function interface {
	// Signature reports the function's declared types.
	Signature() Signature

	// Call invokes the function with typed arguments.
	Call(ctx context.Context, args []cty.Value) ([]cty.Value, error)
}

// Instance is an instantiated module.
type Instance interface {
	// Name is the component name the instance was created under.
	Name() string

	// Func looks up an exported function. iface is the named interface the
	// export is nested in; the empty string addresses root exports.
	Func(iface, name string) (Function, bool)
}

// Linker is the shared typed link table. Definitions must land before any
// module importing them is instantiated.
type Linker interface {
	// Define registers a host function under slot.name with the given
	// signature. The signature comes from the consumer's declared import,
	// not the provider's export.
	Define(slot, name string, sig Signature, fn HostFunc) error
}

// Engine is the sandboxed-module runtime.
type Engine interface {
	// Load registers a module under the component name. The descriptor may
	// be nil when no interface description ships with the module.
	Load(ctx context.Context, name, path string, descriptor *wit.Package) error

	// Linker exposes the engine's shared link table.
	Linker() Linker

	// Instantiate creates an instance of a loaded module against the
	// current link table. Unresolvable imports report the
	// InstantiationMissingImport error code so callers can retry after
	// more wiring lands.
	Instantiate(ctx context.Context, name string) (Instance, error)

	// Close releases the runtime store and every instance with it.
	Close(ctx context.Context) error
}
