package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/runtime/manifest"
	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/registry"
	"github.com/mediarun/runtime/wire"
)

type stubNode struct{ node.BaseNode }

func (stubNode) Process(context.Context, node.Chunk) (<-chan node.Output, error) {
	ch := make(chan node.Output)
	close(ch)
	return ch, nil
}

func (stubNode) Capabilities() node.Capabilities {
	return node.Capabilities{
		InputKinds:   map[string][]wire.Kind{"": {wire.KindText}},
		OutputKinds:  map[string][]wire.Kind{"": {wire.KindText}},
		Requirements: []node.CapabilityRequirement{{Name: "gpu_memory_mb", Value: 1024}},
	}
}

func newTestGate(t *testing.T, hostCaps map[string]float64) *Gate {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.Register(registry.Entry{
		Type:         "calculator",
		Constructor:  func([]byte) (node.Node, error) { return stubNode{}, nil },
		Capabilities: stubNode{}.Capabilities(),
	}))
	g, err := New(r, ">=1.0.0, <2.0.0", []string{"1.0", "1.1"}, hostCaps)
	require.NoError(t, err)
	return g
}

func TestAcceptsVersionWithinConstraint(t *testing.T) {
	g := newTestGate(t, nil)
	require.True(t, g.AcceptsVersion("1.0.0"))
	require.False(t, g.AcceptsVersion("2.0.0"))
	require.False(t, g.AcceptsVersion("not-a-version"))
}

func TestCheckCapabilitiesReportsUnmet(t *testing.T) {
	g := newTestGate(t, map[string]float64{"gpu_memory_mb": 512})
	unmet := g.CheckCapabilities([]manifest.CapabilityRequirement{
		{Name: "gpu_memory_mb", Value: 1024},
		{Name: "cpu_cores", Value: 4},
	})
	require.ElementsMatch(t, []string{"gpu_memory_mb", "cpu_cores"}, unmet)
}

func TestCheckCapabilitiesPassesWhenSufficient(t *testing.T) {
	g := newTestGate(t, map[string]float64{"gpu_memory_mb": 2048})
	unmet := g.CheckCapabilities([]manifest.CapabilityRequirement{{Name: "gpu_memory_mb", Value: 1024}})
	require.Empty(t, unmet)
}

func TestGetVersionReportsCatalog(t *testing.T) {
	g := newTestGate(t, nil)
	resp := g.GetVersion()
	require.Equal(t, []string{"1.0", "1.1"}, resp.ProtocolVersions)
	require.Len(t, resp.Nodes, 1)
	require.Equal(t, "calculator", resp.Nodes[0].Name)
	require.Equal(t, []string{"text"}, resp.Nodes[0].InputKinds[""])
	require.NotEmpty(t, resp.BuildFingerprint)
}
