package strategy

import (
	"sort"
	"sync"

	"github.com/quantrove/vaultbot/internal/domain"
)

// Constructor builds one strategy variant from its config and dependencies.
// It returns a real Implementation or an error; an error can never be
// mistaken for a valid instance.
type Constructor func(cfg Config, deps Deps) (Implementation, error)

// Registry maps mode names to variant constructors. It is safe for
// concurrent use.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// DefaultRegistry returns a registry with the built-in variants registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ModeLending, NewLending)
	r.Register(ModeStaking, NewStaking)
	r.Register(ModeBasis, NewBasis)
	return r
}

// Built-in mode names.
const (
	ModeLending = "pure_lending"
	ModeStaking = "staking_only"
	ModeBasis   = "leveraged_basis"
)

// Register adds a constructor under the given mode, replacing any previous
// registration.
func (r *Registry) Register(mode string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[mode] = ctor
}

// Resolve constructs the implementation for a mode. An unknown mode and any
// constructor failure both come back as errors, typed as ConfigError where
// the cause is configuration.
func (r *Registry) Resolve(mode string, cfg Config, deps Deps) (Implementation, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[mode]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewConfigError("strategy", "unknown mode %q", mode)
	}
	return ctor(cfg, deps)
}

// Modes returns the registered mode names in sorted order.
func (r *Registry) Modes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := make([]string, 0, len(r.constructors))
	for m := range r.constructors {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	return modes
}
