package analyzer

import (
	"fmt"
	"sort"

	"github.com/davidthor/pypes/pkg/graph"
	"github.com/davidthor/pypes/pkg/schema/blueprint"
)

// ViolationKind names a safety rule.
type ViolationKind string

const (
	// LethalTrifecta: UntrustedInput + InternalData + Exfiltration.
	LethalTrifecta ViolationKind = "LethalTrifecta"

	// DeadlyDuo: UntrustedInput + Destructive.
	DeadlyDuo ViolationKind = "DeadlyDuo"
)

// Violation records a component that can realize a dangerous capability
// combination.
type Violation struct {
	Component string
	Kind      ViolationKind
	Detail    string
}

// Analyzer verifies blueprints against the capability-flow safety rules.
type Analyzer struct {
	classifier *Classifier
}

// New creates an analyzer with the default heuristic classifier.
func New() *Analyzer {
	return &Analyzer{classifier: DefaultClassifier()}
}

// WithClassifier substitutes the interface classification table.
func (a *Analyzer) WithClassifier(c *Classifier) *Analyzer {
	a.classifier = c
	return a
}

// Verify analyzes the blueprint and returns all rule violations, ordered by
// (component name, rule name). An empty slice means the wiring is safe. The
// analyzer itself never fails; callers decide enforcement.
func (a *Analyzer) Verify(bp *blueprint.Blueprint) []Violation {
	g, caps := a.seed(bp)
	a.propagate(g, caps)
	return check(caps)
}

// Capabilities returns the effective (post-propagation) capability set per
// component. Useful for reporting alongside violations.
func (a *Analyzer) Capabilities(bp *blueprint.Blueprint) map[string]CapabilitySet {
	g, caps := a.seed(bp)
	a.propagate(g, caps)
	return caps
}

// seed builds the dependency graph and the initial capability map from the
// wiring. Every declared component gets at least the empty set; the host
// node exists but carries no capabilities of its own.
func (a *Analyzer) seed(bp *blueprint.Blueprint) (*graph.Graph, map[string]CapabilitySet) {
	g := graph.NewGraph()
	caps := make(map[string]CapabilitySet, len(bp.Components)+1)

	for name := range bp.Components {
		g.EnsureNode(name)
		caps[name] = NewCapabilitySet()
	}
	g.EnsureNode(graph.HostNode)
	if _, ok := caps[graph.HostNode]; !ok {
		caps[graph.HostNode] = NewCapabilitySet()
	}

	for consumer, conn := range bp.Wiring {
		consumerName := blueprint.ComponentOf(consumer)
		providerName := conn.ProviderComponent()
		if g.GetNode(consumerName) == nil || g.GetNode(providerName) == nil {
			continue
		}
		_ = g.AddEdge(consumerName, providerName)

		if set, ok := caps[consumerName]; ok {
			set.Union(a.classifier.Infer(conn.Provider))
		}
	}

	return g, caps
}

// propagate runs the fixed-point closure: caps(consumer) absorbs
// caps(provider) for every edge until nothing changes. A worklist keyed on
// changed providers keeps this near O(E); termination is guaranteed because
// the lattice is finite and the join only grows sets.
func (a *Analyzer) propagate(g *graph.Graph, caps map[string]CapabilitySet) {
	worklist := g.NodeIDs()
	queued := make(map[string]bool, len(worklist))
	for _, id := range worklist {
		queued[id] = true
	}

	for len(worklist) > 0 {
		provider := worklist[0]
		worklist = worklist[1:]
		queued[provider] = false

		providerCaps := caps[provider]
		if len(providerCaps) == 0 {
			continue
		}

		for _, consumer := range g.Consumers(provider) {
			set, ok := caps[consumer]
			if !ok {
				set = NewCapabilitySet()
				caps[consumer] = set
			}
			if set.Union(providerCaps) && !queued[consumer] {
				worklist = append(worklist, consumer)
				queued[consumer] = true
			}
		}
	}
}

// check applies the safety rules to every component. Proposal is
// informational and never suppresses a rule.
func check(caps map[string]CapabilitySet) []Violation {
	var violations []Violation
	for name, set := range caps {
		if name == graph.HostNode {
			continue
		}
		if set.Has(CapUntrustedInput) && set.Has(CapInternalData) && set.Has(CapExfiltration) {
			violations = append(violations, Violation{
				Component: name,
				Kind:      LethalTrifecta,
				Detail: fmt.Sprintf(
					"Component '%s' has access to Untrusted Input, Internal Data, and Exfiltration.", name),
			})
		}
		if set.Has(CapUntrustedInput) && set.Has(CapDestructive) {
			violations = append(violations, Violation{
				Component: name,
				Kind:      DeadlyDuo,
				Detail: fmt.Sprintf(
					"Component '%s' has access to Untrusted Input and Destructive Capabilities.", name),
			})
		}
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Component != violations[j].Component {
			return violations[i].Component < violations[j].Component
		}
		return violations[i].Kind < violations[j].Kind
	})
	return violations
}
