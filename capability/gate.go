// Package capability implements the version and capability gate of §4.5:
// the set of accepted protocol versions, the GetVersion catalog response,
// and the admission check the compiler runs against a host's declared
// capabilities.
package capability

import (
	"github.com/Masterminds/semver/v3"

	"github.com/mediarun/runtime/manifest"
	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/registry"
	"github.com/mediarun/runtime/version"
	"github.com/mediarun/runtime/wire"
)

// NodeDescriptor is one entry of the GetVersion catalog (§6.3).
type NodeDescriptor struct {
	Name        string                        `json:"name"`
	InputKinds  map[string][]string           `json:"input_kinds"`
	OutputKinds map[string][]string           `json:"output_kinds"`
	Streaming   bool                          `json:"streaming"`
	Capabilities []node.CapabilityRequirement `json:"capabilities"`
}

// VersionResponse is the full GetVersion contract response (§6.3).
type VersionResponse struct {
	ProtocolVersions []string         `json:"protocol_versions"`
	Nodes            []NodeDescriptor `json:"nodes"`
	BuildFingerprint string           `json:"build_fingerprint"`
}

// Gate holds the accepted protocol version range and the host's capability
// inventory, and answers GetVersion and admission queries against them.
type Gate struct {
	constraint       *semver.Constraints
	versions         []string
	registry         *registry.Registry
	hostCapabilities map[string]float64 // capability name -> available amount
}

// New constructs a Gate. versionConstraint is a semver constraint string
// (e.g. ">=1.0.0, <2.0.0"); hostCapabilities maps a capability name to the
// amount available on this host (e.g. "gpu_memory_mb": 16384).
func New(registry *registry.Registry, versionConstraint string, acceptedVersions []string, hostCapabilities map[string]float64) (*Gate, error) {
	c, err := semver.NewConstraint(versionConstraint)
	if err != nil {
		return nil, err
	}
	return &Gate{
		constraint:       c,
		versions:         acceptedVersions,
		registry:         registry,
		hostCapabilities: hostCapabilities,
	}, nil
}

// AcceptsVersion reports whether protocolVersion satisfies this gate's
// semver constraint (§4.5 version gate).
func (g *Gate) AcceptsVersion(protocolVersion string) bool {
	v, err := semver.NewVersion(protocolVersion)
	if err != nil {
		return false
	}
	return g.constraint.Check(v)
}

// CheckCapabilities reports the subset of reqs this host cannot satisfy,
// i.e. the CapabilityChecker the compiler package expects.
func (g *Gate) CheckCapabilities(reqs []manifest.CapabilityRequirement) []string {
	var unmet []string
	for _, req := range reqs {
		available, ok := g.hostCapabilities[req.Name]
		if !ok || available < req.Value {
			unmet = append(unmet, req.Name)
		}
	}
	return unmet
}

// GetVersion builds the catalog response described in §6.3.
func (g *Gate) GetVersion() VersionResponse {
	resp := VersionResponse{
		ProtocolVersions: g.versions,
		BuildFingerprint: version.GetVersion(),
	}
	for _, name := range g.registry.List() {
		entry, ok := g.registry.Get(name)
		if !ok {
			continue
		}
		resp.Nodes = append(resp.Nodes, NodeDescriptor{
			Name:         name,
			InputKinds:   kindNamesOf(entry.Capabilities.InputKinds),
			OutputKinds:  kindNamesOf(entry.Capabilities.OutputKinds),
			Streaming:    entry.Capabilities.Streaming,
			Capabilities: entry.Capabilities.Requirements,
		})
	}
	return resp
}

func kindNamesOf(kinds map[string][]wire.Kind) map[string][]string {
	out := make(map[string][]string, len(kinds))
	for port, ks := range kinds {
		names := make([]string, len(ks))
		for i, k := range ks {
			names[i] = k.String()
		}
		out[port] = names
	}
	return out
}
