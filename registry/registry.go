// Package registry holds the process-wide, read-mostly map from a
// manifest's node_type string to a node.Constructor plus the metadata the
// compiler and GetVersion need without constructing an instance (§4.1,
// §4.5). Registry lookup is the only path by which a manifest's node
// string becomes running code.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mediarun/runtime/node"
)

// Entry is one registered node type: its constructor plus the static
// capabilities a template instance would report, used for admission and
// cataloging without paying construction cost.
type Entry struct {
	Type         string
	Constructor  node.Constructor
	Capabilities node.Capabilities
}

// Registry is a process-wide map from node_type to Entry. Writes
// (registrations) are only permitted before the first session starts;
// after that it is read-mostly and safe for concurrent Get/List from
// many session compiles.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	sealed  bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a node type. It returns an error if called after Seal, since
// registration after the first session start would let two sessions
// observe different catalogs (§5, "Shared resources").
func (r *Registry) Register(entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("registry: cannot register %q after Seal", entry.Type)
	}
	if _, exists := r.entries[entry.Type]; exists {
		return fmt.Errorf("registry: node type %q already registered", entry.Type)
	}
	r.entries[entry.Type] = entry
	return nil
}

// Seal prevents further registration. The server calls this once, before
// accepting the first session.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Get returns the entry for a node type, or false if unregistered —
// the UNKNOWN_NODE_TYPE case from §4.2.
func (r *Registry) Get(nodeType string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[nodeType]
	return e, ok
}

// List returns every registered type name, sorted for deterministic
// GetVersion responses (§4.5, §8 property 1: compile determinism).
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Construct looks up nodeType and invokes its constructor with params.
func (r *Registry) Construct(nodeType string, params []byte) (node.Node, error) {
	entry, ok := r.Get(nodeType)
	if !ok {
		return nil, fmt.Errorf("registry: unknown node type %q", nodeType)
	}
	return entry.Constructor(params)
}
