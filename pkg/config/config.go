// Package config loads the core's environment configuration (spec §6.5):
// the listening endpoint, worker-pool sizes, per-call timeout, drain
// window, and maximum inbound-queue depth. Everything else — TLS
// material, logging levels, telemetry destinations — is the surrounding
// glue's concern, not the core's, and is not read here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// DefaultListenAddr is used when MEDIARUN_LISTEN_ADDR is unset.
	DefaultListenAddr = ":7300"
	// DefaultMaxConcurrentBlocking is the default blocking-pool size
	// gating concurrent Process calls (spec §5).
	DefaultMaxConcurrentBlocking = 8
	// DefaultNodeTimeout bounds a single node's Process call.
	DefaultNodeTimeout = 30 * time.Second
	// DefaultDrainTimeout bounds how long Close waits for in-flight work
	// before forcing cleanup.
	DefaultDrainTimeout = 5 * time.Second
	// DefaultQueueCapacity is the default per-node inbound queue depth,
	// overridable per node via manifest.NodeManifest.QueueCapacity.
	DefaultQueueCapacity = 64
)

// Config is the closed set of environment-driven settings the core reads
// directly (spec §6.5). It carries no persona, prompt-template, or
// provider-routing settings — those belonged to the teacher's LLM
// orchestration domain and have no equivalent here.
type Config struct {
	// ListenAddr is the address the session transport listens on.
	ListenAddr string

	// MaxConcurrentBlocking bounds concurrent Process calls across every
	// session sharing one Scheduler (spec §5's blocking pool).
	MaxConcurrentBlocking int64

	// NodeTimeout bounds a single node's Process call.
	NodeTimeout time.Duration

	// DrainTimeout bounds the drain window on session Close.
	DrainTimeout time.Duration

	// MaxQueueDepth is loaded from MEDIARUN_MAX_QUEUE_DEPTH. Nothing else
	// in the module reads it: the compiler sizes each inbound queue from
	// manifest.NodeManifest.QueueCapacity (default 64).
	MaxQueueDepth int
}

// FromEnv loads a Config from environment variables, falling back to the
// package defaults for anything unset. It returns an error if a set
// variable fails to parse, rather than silently falling back — a typo in
// an operator's environment should fail loudly at startup.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:            DefaultListenAddr,
		MaxConcurrentBlocking: DefaultMaxConcurrentBlocking,
		NodeTimeout:           DefaultNodeTimeout,
		DrainTimeout:          DefaultDrainTimeout,
		MaxQueueDepth:         DefaultQueueCapacity,
	}

	if v, ok := os.LookupEnv("MEDIARUN_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if err := parseInt64(&cfg.MaxConcurrentBlocking, "MEDIARUN_MAX_CONCURRENT_BLOCKING"); err != nil {
		return Config{}, err
	}
	if err := parseDuration(&cfg.NodeTimeout, "MEDIARUN_NODE_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if err := parseDuration(&cfg.DrainTimeout, "MEDIARUN_DRAIN_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if err := parseInt(&cfg.MaxQueueDepth, "MEDIARUN_MAX_QUEUE_DEPTH"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseInt64(dst *int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func parseInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func parseDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}
