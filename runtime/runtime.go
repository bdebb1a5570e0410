// Package runtime owns the process-lifetime structures every session
// borrows from: the sealed node registry, the compiler, the capability
// gate, the scheduler, the event bus, and (when configured) the IPC bus.
// Spec §9 flags the source's module-level caches and global registries
// for re-architecture into explicitly-owned structures; Runtime is that
// structure. A session never reaches for a package-level global — it is
// handed everything through the Runtime it was opened from.
package runtime

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mediarun/runtime/capability"
	"github.com/mediarun/runtime/catalog"
	"github.com/mediarun/runtime/compiler"
	"github.com/mediarun/runtime/events"
	"github.com/mediarun/runtime/ipc"
	"github.com/mediarun/runtime/pkg/config"
	"github.com/mediarun/runtime/registry"
	"github.com/mediarun/runtime/scheduler"
	"github.com/mediarun/runtime/session"
)

// Options configures a Runtime at construction. VersionConstraint and
// SupportedVersions feed the capability gate (§4.5); HostCapabilities
// describes what this host declares it can satisfy; RedisClient backs
// the IPC bus (§4.4) when this host runs out-of-process nodes — it may
// be nil if none of the registered node types need one.
type Options struct {
	Config            config.Config
	VersionConstraint string
	SupportedVersions []string
	HostCapabilities  map[string]float64
	RedisClient       redis.UniversalClient
}

// Runtime is the process-lifetime handle constructed once at startup and
// shared read-only by every session it opens.
type Runtime struct {
	Config    config.Config
	Registry  *registry.Registry
	Gate      *capability.Gate
	Compiler  *compiler.Compiler
	Scheduler *scheduler.Scheduler
	Bus       *events.EventBus
	IPC       *ipc.Bus // nil if Options.RedisClient was nil

	sessions *session.Manager
}

// New seals the built-in catalog into a registry, builds the capability
// gate and compiler against it, and constructs one Scheduler and one
// EventBus shared by every session this Runtime opens.
func New(opts Options) (*Runtime, error) {
	reg := registry.New()
	if err := catalog.Register(reg); err != nil {
		return nil, fmt.Errorf("runtime: register catalog: %w", err)
	}
	reg.Seal()

	gate, err := capability.New(reg, opts.VersionConstraint, opts.SupportedVersions, opts.HostCapabilities)
	if err != nil {
		return nil, fmt.Errorf("runtime: build capability gate: %w", err)
	}

	comp := compiler.New(reg, opts.SupportedVersions, gate.CheckCapabilities)
	sched := scheduler.New(opts.Config.MaxConcurrentBlocking, opts.Config.DrainTimeout, opts.Config.NodeTimeout)
	bus := events.NewEventBus()

	rt := &Runtime{
		Config:    opts.Config,
		Registry:  reg,
		Gate:      gate,
		Compiler:  comp,
		Scheduler: sched,
		Bus:       bus,
	}
	if opts.RedisClient != nil {
		rt.IPC = ipc.NewBus(opts.RedisClient)
	}
	rt.sessions = session.NewManager(comp, gate, sched, bus)
	return rt, nil
}

// Sessions returns the Manager tracking every session this Runtime has
// opened, for a transport to route inbound messages by session id.
func (rt *Runtime) Sessions() *session.Manager { return rt.sessions }

// OpenSession creates and registers a new Session borrowing this
// Runtime's shared compiler, gate, scheduler, and event bus. The caller
// still calls Init on it with the client's manifest.
func (rt *Runtime) OpenSession(sessionID string) *session.Session {
	return rt.sessions.Open(sessionID)
}

// Shutdown closes every tracked session, releasing the structures this
// Runtime owns back to the process. It does not close an injected
// RedisClient — the caller that constructed it owns its lifecycle.
func (rt *Runtime) Shutdown() error {
	return rt.sessions.CloseAll()
}
