package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidthor/pypes/pkg/schema/blueprint"
)

func bp(components []string, wiring map[string]string) *blueprint.Blueprint {
	b := &blueprint.Blueprint{
		Components: map[string]string{},
		Wiring:     map[string]blueprint.Connection{},
	}
	for _, name := range components {
		b.Components[name] = name + ".wasm"
	}
	for consumer, provider := range wiring {
		b.Wiring[consumer] = blueprint.Connection{Provider: provider}
	}
	return b
}

func TestVerify_EmptyBlueprint(t *testing.T) {
	violations := New().Verify(bp(nil, nil))
	assert.Empty(t, violations)
}

func TestVerify_ComponentWithoutWires(t *testing.T) {
	a := New()
	b := bp([]string{"idle"}, nil)

	assert.Empty(t, a.Verify(b))
	caps := a.Capabilities(b)
	assert.Empty(t, caps["idle"].List())
}

func TestVerify_BenignReadOnly(t *testing.T) {
	b := bp([]string{"reader"}, map[string]string{
		"reader.read": "host.calendar/read",
	})

	a := New()
	assert.Empty(t, a.Verify(b))

	caps := a.Capabilities(b)
	assert.Equal(t, []Capability{CapInternalData}, caps["reader"].List())
}

func TestVerify_LethalTrifectaDirect(t *testing.T) {
	b := bp([]string{"agent"}, map[string]string{
		"agent.r": "host.calendar/read",
		"agent.s": "host.http/search",
	})

	violations := New().Verify(b)
	require.Len(t, violations, 1)
	assert.Equal(t, "agent", violations[0].Component)
	assert.Equal(t, LethalTrifecta, violations[0].Kind)
	assert.Contains(t, violations[0].Detail, "agent")
}

func TestVerify_LethalTrifectaTransitive(t *testing.T) {
	b := bp([]string{"orc", "cal", "web"}, map[string]string{
		"orc.c":   "cal.calendar/read",
		"orc.w":   "web.search/query",
		"cal.fs":  "host.filesystem/read",
		"web.net": "host.http/outgoing",
	})

	a := New()
	violations := a.Verify(b)
	require.NotEmpty(t, violations)
	assert.Equal(t, "orc", violations[0].Component)
	assert.Equal(t, LethalTrifecta, violations[0].Kind)

	caps := a.Capabilities(b)
	for _, c := range []Capability{CapInternalData, CapExfiltration, CapUntrustedInput} {
		assert.True(t, caps["orc"].Has(c), "orc should transitively hold %s", c)
	}
}

func TestVerify_DeadlyDuo(t *testing.T) {
	b := bp([]string{"agent"}, map[string]string{
		"agent.d": "host.fs/delete",
		"agent.u": "host.http/search",
	})

	violations := New().Verify(b)
	require.Len(t, violations, 1)
	assert.Equal(t, DeadlyDuo, violations[0].Kind)
}

func TestVerify_ProposalDowngrade(t *testing.T) {
	b := bp([]string{"agent"}, map[string]string{
		"agent.d": "host.calendar/propose_delete",
		"agent.u": "host.http/search",
	})

	a := New()
	assert.Empty(t, a.Verify(b))

	caps := a.Capabilities(b)
	assert.True(t, caps["agent"].Has(CapProposal))
	assert.False(t, caps["agent"].Has(CapDestructive))
	// propose_delete contains "calendar" but propose suppresses the
	// internal-data grant too.
	assert.False(t, caps["agent"].Has(CapInternalData))
}

func TestVerify_CycleTerminates(t *testing.T) {
	b := bp([]string{"a", "b"}, map[string]string{
		"a.x":    "b.export",
		"b.y":    "a.export",
		"a.read": "host.calendar/read",
	})

	a := New()
	assert.Empty(t, a.Verify(b))

	caps := a.Capabilities(b)
	assert.Equal(t, caps["a"].List(), caps["b"].List(),
		"components on a cycle converge to the same capability set")
	assert.True(t, caps["b"].Has(CapInternalData))
}

func TestVerify_HostProviderContributesCapabilities(t *testing.T) {
	b := bp([]string{"c"}, map[string]string{
		"c.slot": "host.anything-with-http-inside",
	})

	caps := New().Capabilities(b)
	assert.True(t, caps["c"].Has(CapExfiltration))
	assert.True(t, caps["c"].Has(CapUntrustedInput))
}

func TestVerify_DeterministicOrdering(t *testing.T) {
	b := bp([]string{"zed", "abe"}, map[string]string{
		// Both components end up with UntrustedInput + InternalData +
		// Exfiltration + Destructive: both rules fire on both.
		"zed.a": "host.http/search",
		"zed.b": "host.filesystem/read",
		"zed.c": "host.fs/delete",
		"abe.a": "zed.export",
	})

	first := New().Verify(b)
	require.Len(t, first, 4)

	// (component, rule) ordering
	assert.Equal(t, "abe", first[0].Component)
	assert.Equal(t, DeadlyDuo, first[0].Kind)
	assert.Equal(t, "abe", first[1].Component)
	assert.Equal(t, LethalTrifecta, first[1].Kind)
	assert.Equal(t, "zed", first[2].Component)

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, New().Verify(b))
	}
}

func TestVerify_ParallelWiresCollapse(t *testing.T) {
	b := bp([]string{"a", "b"}, map[string]string{
		"a.x": "b.calendar/read",
		"a.y": "b.calendar/read-other",
	})

	caps := New().Capabilities(b)
	assert.True(t, caps["a"].Has(CapInternalData))
	assert.Empty(t, New().Verify(b))
}

func TestWithClassifier_ReplacesRuleTable(t *testing.T) {
	strict := NewClassifier([]ClassifierRule{
		{Keywords: []string{"anything"}, Grants: []Capability{CapDestructive}},
	})
	b := bp([]string{"c"}, map[string]string{
		"c.slot": "host.anything",
	})

	caps := New().WithClassifier(strict).Capabilities(b)
	assert.True(t, caps["c"].Has(CapDestructive))
	assert.False(t, caps["c"].Has(CapInternalData))
}
