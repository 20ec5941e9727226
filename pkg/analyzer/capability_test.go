package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfer_OutboundDoubleTags(t *testing.T) {
	for _, name := range []string{"wasi:http/outgoing", "web.search/query", "network-io"} {
		caps := Infer(name)
		assert.True(t, caps.Has(CapExfiltration), "%s should grant Exfiltration", name)
		assert.True(t, caps.Has(CapUntrustedInput), "%s should grant UntrustedInput", name)
	}
}

func TestInfer_InternalData(t *testing.T) {
	for _, name := range []string{"calendar-api", "host.filesystem/read", "read-config"} {
		caps := Infer(name)
		assert.True(t, caps.Has(CapInternalData), "%s should grant InternalData", name)
	}
}

func TestInfer_Destructive(t *testing.T) {
	for _, name := range []string{"fs.delete", "calendar/write-event", "modify-settings"} {
		caps := Infer(name)
		assert.True(t, caps.Has(CapDestructive), "%s should grant Destructive", name)
	}
}

func TestInfer_ProposeSuppressesDangerousGrants(t *testing.T) {
	// Any name containing "propose" yields neither Destructive nor
	// InternalData, only the Proposal marker (plus outbound tags if an
	// outbound keyword also matches).
	for _, name := range []string{"calendar/propose_delete", "propose-write", "filesystem/propose-read"} {
		caps := Infer(name)
		assert.True(t, caps.Has(CapProposal), "%s should grant Proposal", name)
		assert.False(t, caps.Has(CapDestructive), "%s must not grant Destructive", name)
		assert.False(t, caps.Has(CapInternalData), "%s must not grant InternalData", name)
	}
}

func TestInfer_Unmatched(t *testing.T) {
	assert.Empty(t, Infer("llm/predict-state").List())
	assert.Empty(t, Infer("").List())
}

func TestInfer_Pure(t *testing.T) {
	name := "host.http/search"
	assert.Equal(t, Infer(name).List(), Infer(name).List())
}

func TestCapabilitySet_UnionMonotonic(t *testing.T) {
	set := NewCapabilitySet(CapInternalData)

	grew := set.Union(NewCapabilitySet(CapExfiltration))
	assert.True(t, grew)
	assert.True(t, set.Has(CapInternalData))
	assert.True(t, set.Has(CapExfiltration))

	grew = set.Union(NewCapabilitySet(CapExfiltration))
	assert.False(t, grew, "union with a subset must not report growth")
	assert.Len(t, set.List(), 2)
}
