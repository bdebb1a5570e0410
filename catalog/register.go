package catalog

import (
	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/registry"
)

// capabilitiesFor constructs a throwaway instance to read its static
// Capabilities, since registry.Entry needs them at registration time but
// node.Constructor only produces an instance from params.
func capabilitiesFor(ctor node.Constructor) node.Capabilities {
	n, err := ctor(nil)
	if err != nil {
		return node.Capabilities{}
	}
	return n.Capabilities()
}

// Register adds every built-in node type to r. Call before r.Seal().
func Register(r *registry.Registry) error {
	entries := []struct {
		nodeType string
		ctor     node.Constructor
	}{
		{"calculator", NewCalculator},
		{"expander", NewExpander},
		{"sync_av", NewSyncAV},
		{"vad", NewVAD},
		{"resample", NewResample},
		{"transcription", NewTranscription},
		{"synthesis", NewSynthesis},
		{"llm", NewLLM},
	}

	for _, e := range entries {
		if err := r.Register(registry.Entry{
			Type:         e.nodeType,
			Constructor:  e.ctor,
			Capabilities: capabilitiesFor(e.ctor),
		}); err != nil {
			return err
		}
	}
	return nil
}
