// Package wit loads the interface description shipped with a sandboxed
// module: a package of named interfaces, each an ordered set of typed
// functions. Types are surfaced as cty types so the wirer and workflow
// engine share one value model with the runtime.
package wit

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Param is a named, typed function parameter.
type Param struct {
	Name string
	Type cty.Type
}

// Function is a typed function signature within an interface.
type Function struct {
	Name    string
	Params  []Param
	Results []cty.Type
}

// Interface is a named set of functions, in declaration order.
type Interface struct {
	Name      string
	Functions []Function
}

// Function returns the named function, if declared.
func (i *Interface) Function(name string) (Function, bool) {
	for _, fn := range i.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}

// FunctionNames returns the interface's function names in declaration order.
func (i *Interface) FunctionNames() []string {
	names := make([]string, len(i.Functions))
	for idx, fn := range i.Functions {
		names[idx] = fn.Name
	}
	return names
}

// Package is a parsed interface description.
type Package struct {
	// Name is the package identifier (e.g. "docs:calendar").
	Name string

	// Interfaces holds the declared interfaces in declaration order.
	Interfaces []*Interface
}

// Interface looks up an interface by name. A qualified name like
// "docs:calendar/calendar-api" that misses falls back to the suffix after
// the first '/'.
func (p *Package) Interface(name string) (*Interface, bool) {
	for _, iface := range p.Interfaces {
		if iface.Name == name {
			return iface, true
		}
	}
	if pos := strings.Index(name, "/"); pos >= 0 {
		return p.Interface(name[pos+1:])
	}
	return nil, false
}

// InterfaceExports enumerates the function names under the named interface,
// with the same qualified-name fallback as Interface.
func (p *Package) InterfaceExports(name string) ([]string, bool) {
	iface, ok := p.Interface(name)
	if !ok {
		return nil, false
	}
	return iface.FunctionNames(), true
}
