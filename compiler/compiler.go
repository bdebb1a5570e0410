// Package compiler turns a manifest.PipelineManifest into a
// graph.ExecutableGraph, implementing the six-step algorithm of §4.2.
// Every check is independent; Compile aggregates every failure it finds
// rather than stopping at the first.
package compiler

import (
	"fmt"

	"github.com/mediarun/runtime/graph"
	"github.com/mediarun/runtime/manifest"
	"github.com/mediarun/runtime/node"
	pkgerrors "github.com/mediarun/runtime/pkg/errors"
	"github.com/mediarun/runtime/registry"
	"github.com/mediarun/runtime/wire"
)

// CapabilityChecker reports which of the union of declared requirements
// cannot be satisfied on this host. An empty result means admission passes.
type CapabilityChecker func(reqs []manifest.CapabilityRequirement) (unmet []string)

// AlwaysCapable is a CapabilityChecker that admits every requirement;
// useful for hosts or tests with no capability gating configured.
func AlwaysCapable([]manifest.CapabilityRequirement) []string { return nil }

// Compiler holds the inputs to compilation that are stable across many
// manifests: the node registry, the accepted protocol versions, and the
// host's capability checker.
type Compiler struct {
	Registry          *registry.Registry
	SupportedVersions map[string]bool
	CapabilityCheck    CapabilityChecker
}

// New constructs a Compiler. If capCheck is nil, AlwaysCapable is used.
func New(reg *registry.Registry, supportedVersions []string, capCheck CapabilityChecker) *Compiler {
	versions := make(map[string]bool, len(supportedVersions))
	for _, v := range supportedVersions {
		versions[v] = true
	}
	if capCheck == nil {
		capCheck = AlwaysCapable
	}
	return &Compiler{Registry: reg, SupportedVersions: versions, CapabilityCheck: capCheck}
}

// Compile validates and builds an ExecutableGraph from m. On any
// validation failure it returns a nil graph and the full list of errors
// found (§4.2: "every failure is reported, not just the first").
func (c *Compiler) Compile(m manifest.PipelineManifest) (*graph.ExecutableGraph, []*pkgerrors.ContextualError) {
	var errs []*pkgerrors.ContextualError

	// Step 1: version gate.
	if !c.SupportedVersions[m.ProtocolVersion] {
		errs = append(errs, pkgerrors.New("compiler", "Compile", fmt.Errorf("unsupported protocol_version %q", m.ProtocolVersion)).
			WithKind(pkgerrors.KindVersion))
	}

	// Step 2: node instantiation (also catches duplicate ids).
	instances := make(map[string]*graph.Instance)
	declaredKinds := make(map[string]manifest.NodeManifest)
	seen := make(map[string]bool)
	for _, nm := range m.Nodes {
		if seen[nm.ID] {
			errs = append(errs, pkgerrors.New("compiler", "Compile", fmt.Errorf("duplicate node id %q", nm.ID)).
				WithKind(pkgerrors.KindDuplicate).WithNodeID(nm.ID))
			continue
		}
		seen[nm.ID] = true
		declaredKinds[nm.ID] = nm

		entry, ok := c.Registry.Get(nm.NodeType)
		if !ok {
			errs = append(errs, pkgerrors.New("compiler", "Compile", fmt.Errorf("unknown node type %q", nm.NodeType)).
				WithKind(pkgerrors.KindUnknownNode).WithNodeID(nm.ID))
			continue
		}

		inst, err := entry.Constructor(nm.Params)
		if err != nil {
			errs = append(errs, pkgerrors.New("compiler", "Compile", err).
				WithKind(pkgerrors.KindBadConfig).WithNodeID(nm.ID))
			continue
		}

		instances[nm.ID] = &graph.Instance{
			ID:          nm.ID,
			Type:        nm.NodeType,
			Node:        inst,
			Inbound:     make(chan node.Chunk, nm.QueueCapacity()),
			InputNames:  portNameSet(entry.Capabilities.InputKinds),
			OutputNames: portNameSet(entry.Capabilities.OutputKinds),
		}
	}

	// Step 3: capability admission (union across all nodes).
	var allReqs []manifest.CapabilityRequirement
	for _, nm := range m.Nodes {
		allReqs = append(allReqs, nm.CapabilityRequirements...)
	}
	if unmet := c.CapabilityCheck(allReqs); len(unmet) > 0 {
		for _, name := range unmet {
			errs = append(errs, pkgerrors.New("compiler", "Compile", fmt.Errorf("capability %q unmet on this host", name)).
				WithKind(pkgerrors.KindCapability))
		}
	}

	// Step 4: topology checks.
	adjacency := make(map[string][]string)
	for _, conn := range m.Connections {
		if conn.ToNode != manifest.ClientEndpoint && !seen[conn.ToNode] {
			errs = append(errs, pkgerrors.New("compiler", "Compile", fmt.Errorf("connection targets unknown node %q", conn.ToNode)).
				WithKind(pkgerrors.KindEndpoint))
			continue
		}
		if !seen[conn.FromNode] {
			errs = append(errs, pkgerrors.New("compiler", "Compile", fmt.Errorf("connection originates from unknown node %q", conn.FromNode)).
				WithKind(pkgerrors.KindEndpoint))
			continue
		}
		adjacency[conn.FromNode] = append(adjacency[conn.FromNode], conn.ToNode)
	}
	if cyc := findCycle(adjacency); cyc != "" {
		errs = append(errs, pkgerrors.New("compiler", "Compile", fmt.Errorf("cycle detected involving node %q", cyc)).
			WithKind(pkgerrors.KindCycle))
	}

	// Step 5: kind compatibility, using each NodeManifest's declared flat
	// input_kinds/output_kinds lists (§3's NodeManifest shape).
	for _, conn := range m.Connections {
		if conn.ToNode == manifest.ClientEndpoint {
			continue
		}
		from, fromOK := declaredKinds[conn.FromNode]
		to, toOK := declaredKinds[conn.ToNode]
		if !fromOK || !toOK {
			continue // already reported as an unknown endpoint above
		}
		if !kindsIntersect(from.OutputKinds, to.InputKinds) {
			errs = append(errs, pkgerrors.New("compiler", "Compile",
				fmt.Errorf("no compatible buffer kind between %q outputs and %q inputs", conn.FromNode, conn.ToNode)).
				WithKind(pkgerrors.KindKindMismatch).WithNodeID(conn.ToNode))
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	// Build outbound edges and sink flags now that every node and
	// connection is known-valid.
	for _, conn := range m.Connections {
		if conn.ToNode == manifest.ClientEndpoint {
			instances[conn.FromNode].IsSink = true
			instances[conn.FromNode].OutEdges = append(instances[conn.FromNode].OutEdges, graph.Edge{
				ToNodeID: graph.ToClient, FromOutputName: conn.FromOutputName,
			})
			continue
		}
		instances[conn.FromNode].OutEdges = append(instances[conn.FromNode].OutEdges, graph.Edge{
			ToNodeID: conn.ToNode, ToInputName: conn.ToInputName, FromOutputName: conn.FromOutputName,
		})
	}

	// Step 6: sink inference — nodes with no outbound edges are sinks too.
	hasSink := false
	for id, inst := range instances {
		if len(inst.OutEdges) == 0 || inst.IsSink {
			inst.IsSink = true
			hasSink = true
		}
		_ = id
	}
	if !hasSink {
		errs = append(errs, pkgerrors.New("compiler", "Compile", fmt.Errorf("pipeline has no terminal sink")).
			WithKind(pkgerrors.KindValidation))
		return nil, errs
	}

	topo := topologicalOrder(m.Nodes, adjacency)

	return &graph.ExecutableGraph{
		ProtocolVersion: m.ProtocolVersion,
		Nodes:           instances,
		TopoOrder:       topo,
	}, nil
}

func portNameSet(kinds map[string][]wire.Kind) map[string]bool {
	out := make(map[string]bool, len(kinds))
	for name := range kinds {
		out[name] = true
	}
	return out
}

func kindsIntersect(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	for _, k := range b {
		if set[k] {
			return true
		}
	}
	return false
}

// findCycle runs DFS-based cycle detection over the connection adjacency
// list, returning a node id on the cycle or "" if the graph is acyclic.
func findCycle(adjacency map[string][]string) string {
	visited := make(map[string]int) // 0=unvisited 1=in-stack 2=done
	var dfs func(n string) string
	dfs = func(n string) string {
		visited[n] = 1
		for _, next := range adjacency[n] {
			switch visited[next] {
			case 1:
				return next
			case 0:
				if found := dfs(next); found != "" {
					return found
				}
			}
		}
		visited[n] = 2
		return ""
	}
	for n := range adjacency {
		if visited[n] == 0 {
			if found := dfs(n); found != "" {
				return found
			}
		}
	}
	return ""
}

// topologicalOrder returns node ids ordered so every node appears after
// all of its upstream dependencies, for greedy scheduling (§4.2). Nodes
// unreachable from any edge are appended in manifest order.
func topologicalOrder(nodes []manifest.NodeManifest, adjacency map[string][]string) []string {
	indegree := make(map[string]int)
	order := make([]string, 0, len(nodes))
	for _, n := range nodes {
		indegree[n.ID] = 0
	}
	for _, targets := range adjacency {
		for _, t := range targets {
			if t != manifest.ClientEndpoint {
				indegree[t]++
			}
		}
	}

	var queue []string
	for _, n := range nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	visited := make(map[string]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		order = append(order, id)
		for _, next := range adjacency[id] {
			if next == manifest.ClientEndpoint {
				continue
			}
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	for _, n := range nodes {
		if !visited[n.ID] {
			order = append(order, n.ID)
		}
	}
	return order
}
