// Package analyzer implements the static capability-flow safety gate.
//
// Given a blueprint, it builds the component dependency graph, infers the
// capability set each wire grants its consumer, propagates capabilities
// transitively (a consumer can stage any effect of its providers by proxy),
// and reports combinations that violate the safety rules.
package analyzer

import (
	"sort"
	"strings"
)

// Capability tags what an import lets a component do or see.
type Capability string

const (
	// CapUntrustedInput marks data from outside the trust boundary (user
	// prompts, web responses).
	CapUntrustedInput Capability = "UntrustedInput"

	// CapInternalData marks access to private data (calendar, files).
	CapInternalData Capability = "InternalData"

	// CapExfiltration marks an outbound channel (HTTP, network).
	CapExfiltration Capability = "Exfiltration"

	// CapDestructive marks state-changing operations (delete, write).
	CapDestructive Capability = "Destructive"

	// CapProposal marks operations gated behind human review. It never
	// triggers a rule.
	CapProposal Capability = "Proposal"
)

// CapabilitySet is a set of capabilities.
type CapabilitySet map[Capability]bool

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}

// Union adds every capability in other to the set and reports whether the
// set grew.
func (s CapabilitySet) Union(other CapabilitySet) bool {
	grew := false
	for c := range other {
		if !s[c] {
			s[c] = true
			grew = true
		}
	}
	return grew
}

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []Capability {
	list := make([]Capability, 0, len(s))
	for c := range s {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// ClassifierRule grants capabilities when any keyword matches the interface
// name, unless an exclusion keyword also matches.
type ClassifierRule struct {
	Keywords []string
	Excludes []string
	Grants   []Capability
}

// Classifier maps interface names to the capability sets they grant. The
// default rule set is a substring heuristic; callers can substitute an
// explicit per-interface table.
type Classifier struct {
	rules []ClassifierRule
}

// NewClassifier builds a classifier from the given rules.
func NewClassifier(rules []ClassifierRule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier returns the heuristic rule table. Outbound interfaces
// double-tag as Exfiltration and UntrustedInput because their responses are
// untrusted; 'propose' suppresses both the internal-data and destructive
// grants.
func DefaultClassifier() *Classifier {
	return NewClassifier([]ClassifierRule{
		{
			Keywords: []string{"http", "search", "network"},
			Grants:   []Capability{CapExfiltration, CapUntrustedInput},
		},
		{
			Keywords: []string{"calendar", "filesystem", "read"},
			Excludes: []string{"propose"},
			Grants:   []Capability{CapInternalData},
		},
		{
			Keywords: []string{"delete", "write", "modify"},
			Excludes: []string{"propose"},
			Grants:   []Capability{CapDestructive},
		},
		{
			Keywords: []string{"propose"},
			Grants:   []Capability{CapProposal},
		},
	})
}

// Infer classifies an import name into the capability set it grants. The
// result depends only on the string.
func (c *Classifier) Infer(name string) CapabilitySet {
	set := NewCapabilitySet()
rules:
	for _, rule := range c.rules {
		for _, excl := range rule.Excludes {
			if strings.Contains(name, excl) {
				continue rules
			}
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(name, kw) {
				for _, grant := range rule.Grants {
					set[grant] = true
				}
				break
			}
		}
	}
	return set
}

// Infer classifies an import name using the default heuristic table.
func Infer(name string) CapabilitySet {
	return DefaultClassifier().Infer(name)
}
