// Package wiring instantiates a verified blueprint's modules and resolves
// their inter-module imports by installing middleware-wrapped proxy
// functions into the runtime's shared link table.
package wiring

import (
	"context"
	"sort"
	"strings"

	"github.com/davidthor/pypes/pkg/errors"
	"github.com/davidthor/pypes/pkg/graph"
	"github.com/davidthor/pypes/pkg/middleware"
	"github.com/google/uuid"
	"github.com/davidthor/pypes/pkg/runtime"
	"github.com/davidthor/pypes/pkg/schema/blueprint"
	"github.com/davidthor/pypes/pkg/wit"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// wire is one provider-side installation unit.
type wire struct {
	// Export is the provider's export interface (or root function) name.
	Export string

	// Slot is the consumer's import slot in the link table.
	Slot string

	// Connection carries the middleware configuration.
	Connection blueprint.Connection
}

// Wirer drives the progress-based instantiation loop.
type Wirer struct {
	engine      runtime.Engine
	descriptors map[string]*wit.Package
	logger      *zap.Logger
}

// New creates a wirer. descriptors maps component name to its parsed
// interface description; components without one fall back to root-export
// wiring.
func New(engine runtime.Engine, descriptors map[string]*wit.Package, logger *zap.Logger) *Wirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wirer{engine: engine, descriptors: descriptors, logger: logger}
}

// withRunID returns a copy of the wirer whose logger carries a fresh run
// identifier, so one run's wiring lines correlate across components.
func (w *Wirer) withRunID() *Wirer {
	scoped := *w
	scoped.logger = w.logger.With(zap.String("run_id", uuid.NewString()))
	return &scoped
}

// Wire instantiates every component, installing wiring proxies as their
// providers come up. Components whose imports never resolve are returned in
// pending; individual wire failures degrade to warnings.
func (w *Wirer) Wire(ctx context.Context, bp *blueprint.Blueprint) (map[string]runtime.Instance, []string) {
	w = w.withRunID()

	instances := make(map[string]runtime.Instance, len(bp.Components))

	// Provider name -> wires it must satisfy, deduplicated on
	// (export, slot) so parallel middleware variants install once.
	wiresByProvider := make(map[string][]wire)
	seen := make(map[[3]string]bool)
	for _, consumerKey := range sortedKeys(bp.Wiring) {
		conn := bp.Wiring[consumerKey]
		provider := conn.ProviderComponent()
		if provider == graph.HostNode {
			// Host exports are supplied by the runtime itself, not wired here.
			continue
		}
		key := [3]string{provider, conn.ProviderExport(), blueprint.SlotOf(consumerKey)}
		if seen[key] {
			continue
		}
		seen[key] = true
		wiresByProvider[provider] = append(wiresByProvider[provider], wire{
			Export:     conn.ProviderExport(),
			Slot:       blueprint.SlotOf(consumerKey),
			Connection: conn,
		})
	}

	pending := make([]string, 0, len(bp.Components))
	for name := range bp.Components {
		pending = append(pending, name)
	}
	sort.Strings(pending)

	for len(pending) > 0 {
		progressed := false
		var next []string

		for _, name := range pending {
			w.logger.Debug("attempting instantiation", zap.String("component", name))

			inst, err := w.engine.Instantiate(ctx, name)
			if err != nil {
				if !errors.Is(err, errors.ErrCodeMissingImport) {
					w.logger.Warn("instantiation error",
						zap.String("component", name), zap.Error(err))
				}
				next = append(next, name)
				continue
			}

			w.logger.Info("instantiated", zap.String("component", name))
			instances[name] = inst
			progressed = true

			for _, wr := range wiresByProvider[name] {
				w.installProxy(ctx, bp, inst, wr)
			}
		}

		pending = next
		if !progressed {
			break
		}
	}

	if len(pending) > 0 {
		w.logger.Warn("components never instantiated", zap.Strings("pending", pending))
	}

	return instances, pending
}

// installProxy resolves the provider's functions under the wire's export and
// registers a middleware-wrapped proxy for each into the consumer's link
// slot. Failures warn and skip; dependent consumers simply stay pending.
func (w *Wirer) installProxy(ctx context.Context, bp *blueprint.Blueprint, provider runtime.Instance, wr wire) {
	iface := wr.Export
	funcNames, ok := w.exportFunctions(provider.Name(), wr.Export)
	if !ok {
		// No descriptor coverage: treat the export as a root function.
		iface = ""
		funcNames = []string{wr.Export}
	}

	surrogates := w.surrogatesFor(bp, wr.Slot)
	chain := w.buildChain(wr.Connection.Middleware)

	for _, fname := range funcNames {
		providerFn, found := provider.Func(iface, fname)
		if !found {
			w.logger.Warn("export missing from provider instance",
				zap.String("provider", provider.Name()),
				zap.String("interface", iface),
				zap.String("function", fname))
			continue
		}

		sig, caller := w.surrogateSignature(surrogates, wr.Slot, fname, providerFn)

		call := middleware.CallContext{
			Provider:  provider.Name(),
			Interface: iface,
			Function:  fname,
			Caller:    caller,
		}
		terminal := func(ctx context.Context, args []cty.Value) ([]cty.Value, error) {
			return providerFn.Call(ctx, args)
		}
		proxy := middleware.Chain(chain, call, terminal)

		err := w.engine.Linker().Define(wr.Slot, fname, sig, runtime.HostFunc(proxy))
		if err != nil {
			w.logger.Warn("failed to register proxy",
				zap.String("slot", wr.Slot),
				zap.String("function", fname),
				zap.Error(err))
			continue
		}

		w.logger.Info("wired",
			zap.String("provider", provider.Name()),
			zap.String("export", wr.Export),
			zap.String("slot", wr.Slot),
			zap.String("function", fname))
	}
}

// exportFunctions enumerates the provider's functions under the named
// export interface via its descriptor.
func (w *Wirer) exportFunctions(provider, export string) ([]string, bool) {
	descriptor := w.descriptors[provider]
	if descriptor == nil {
		return nil, false
	}
	return descriptor.InterfaceExports(export)
}

// surrogatesFor lists the components that consume the given link slot, in
// surrogate preference order: any name containing "orchestrator" first,
// then lexicographic. The link table is typed per consumer, so a consumer
// must lend the proxy its declared import signature.
func (w *Wirer) surrogatesFor(bp *blueprint.Blueprint, slot string) []string {
	var surrogates []string
	for consumerKey := range bp.Wiring {
		if blueprint.SlotOf(consumerKey) != slot {
			continue
		}
		name := blueprint.ComponentOf(consumerKey)
		if _, ok := bp.Components[name]; ok {
			surrogates = append(surrogates, name)
		}
	}

	sort.Slice(surrogates, func(i, j int) bool {
		iOrch := strings.Contains(surrogates[i], "orchestrator")
		jOrch := strings.Contains(surrogates[j], "orchestrator")
		if iOrch != jOrch {
			return iOrch
		}
		return surrogates[i] < surrogates[j]
	})
	return surrogates
}

// surrogateSignature borrows the typed signature for slot.fname from the
// first surrogate whose descriptor declares it, falling back to the
// provider's own export signature.
func (w *Wirer) surrogateSignature(surrogates []string, slot, fname string, providerFn runtime.Function) (runtime.Signature, string) {
	for _, surrogate := range surrogates {
		descriptor := w.descriptors[surrogate]
		if descriptor == nil {
			continue
		}
		decl, ok := descriptor.Interface(slot)
		if !ok {
			continue
		}
		fn, ok := decl.Function(fname)
		if !ok {
			continue
		}
		return runtime.Signature{Params: fn.Params, Results: fn.Results, Known: true}, surrogate
	}

	caller := ""
	if len(surrogates) > 0 {
		caller = surrogates[0]
	}
	return providerFn.Signature(), caller
}

// buildChain resolves middleware names into handlers; unknown names warn
// and are skipped.
func (w *Wirer) buildChain(names []string) []middleware.Handler {
	var chain []middleware.Handler
	for _, name := range names {
		handler, ok := middleware.ByName(name, w.logger)
		if !ok {
			w.logger.Warn("unknown middleware requested", zap.String("middleware", name))
			continue
		}
		chain = append(chain, handler)
	}
	return chain
}

func sortedKeys(m map[string]blueprint.Connection) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
