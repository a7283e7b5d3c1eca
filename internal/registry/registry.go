// SPDX-License-Identifier: Apache-2.0

// Package registry is the in-memory catalog of deterministic analysis
// modules. Registration happens once at startup; enable/disable are the
// runtime kill-switch primitives.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/patternloop/assistant-runtime/internal/domain"
)

// Context is everything a module may read during one invocation: the
// batch's events, the current pattern set for the subjects touched by
// the batch, and the single wall-clock reading stamped on results.
// No network, no randomness source.
type Context struct {
	Subject    string
	Events     []domain.Event
	Patterns   []domain.Pattern
	ComputedAt time.Time
}

// Module is a pure, versioned function from events/patterns to results.
// Compute must be deterministic: byte-identical output for identical
// input, ComputedAt aside.
type Module interface {
	Descriptor() domain.ModuleDescriptor
	Compute(ctx Context) ([]domain.ModuleResult, error)
}

type entry struct {
	module  Module
	enabled bool
}

type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a module. Duplicate names fail with ErrDuplicateModule;
// that is a startup programming error, not a runtime condition.
func (r *Registry) Register(m Module) error {
	desc := m.Descriptor()
	if desc.Name == "" {
		return fmt.Errorf("%w: empty module name", domain.ErrDuplicateModule)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateModule, desc.Name)
	}

	r.order = append(r.order, desc.Name)
	r.entries[desc.Name] = &entry{module: m, enabled: true}
	return nil
}

// ListEnabled returns descriptors of enabled modules in registration
// order. Deterministic iteration keeps evidence ordering reproducible.
func (r *Registry) ListEnabled() []domain.ModuleDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ModuleDescriptor, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		if !e.enabled {
			continue
		}
		desc := e.module.Descriptor()
		desc.Enabled = true
		out = append(out, desc)
	}
	return out
}

// ListAll returns every registered descriptor in registration order,
// with the current enabled flag.
func (r *Registry) ListAll() []domain.ModuleDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ModuleDescriptor, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		desc := e.module.Descriptor()
		desc.Enabled = e.enabled
		out = append(out, desc)
	}
	return out
}

// Snapshot returns the enabled modules in registration order. The
// pipeline takes one snapshot per batch, so a module toggled mid-batch
// never affects the in-flight batch.
func (r *Registry) Snapshot() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Module, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e.enabled {
			out = append(out, e.module)
		}
	}
	return out
}

// Disable switches a module off before the next batch. Idempotent;
// unknown names are ignored.
func (r *Registry) Disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.enabled = false
	}
}

// Enable switches a previously disabled module back on.
func (r *Registry) Enable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.enabled = true
	}
}
