package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry is a map of plugin name → lifecycle object (spec.md §4.4).
// Grounded on the teacher's Container (runtime/container.go), generalized
// from reflection-based method/task discovery to the explicit Plugin
// interface spec.md defines, and from a fail-fast panic to a returned
// error (idiomatic Go — the teacher's own panic-on-setup-failure is noted
// there as a "Phase 1 MVP" shortcut, not a pattern worth preserving).
//
// Avoid any ambient/global singleton (spec.md §9): the registry is
// constructed explicitly and passed to the executor, never reached via a
// package-level variable.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string // setup order, for reverse-order teardown
	ready   map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		plugins: map[string]Plugin{},
		ready:   map[string]bool{},
	}
}

// Setup starts the already-constructed p, awaiting its Setup, and
// registers it under logicalKey.
// Any setup failure aborts startup with the error surfaced (spec.md
// §4.4.2) — the caller is expected to treat a non-nil error as fatal.
func (r *Registry) Setup(ctx context.Context, logicalKey string, p Plugin, config map[string]any) error {
	if err := p.Setup(ctx, config); err != nil {
		return fmt.Errorf("plugin %q setup failed: %w", logicalKey, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[logicalKey] = p
	r.order = append(r.order, logicalKey)
	r.ready[logicalKey] = true
	return nil
}

// InjectInto copies name → getClient() for every ready plugin into dst
// (spec.md §4.4.3: "Before executing a flow, the executor copies name →
// getClient() into context.plugins"). A plugin whose client can't be
// fetched is skipped with a logged warning rather than aborting the
// request — client construction failures after a successful Setup
// indicate a degraded dependency, not a malformed flow.
func (r *Registry) InjectInto(dst map[string]any) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, p := range r.plugins {
		client, err := p.GetClient()
		if err != nil {
			slog.Warn("plugin client unavailable", "plugin", name, "error", err)
			continue
		}
		dst[name] = client
	}
}

// Teardown calls Teardown once per registered plugin in reverse setup
// order (spec.md §4.4.4). Errors are logged, not rethrown.
func (r *Registry) Teardown(ctx context.Context) {
	r.mu.RLock()
	order := append([]string(nil), r.order...)
	plugins := r.plugins
	r.mu.RUnlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := plugins[name].Teardown(ctx); err != nil {
			slog.Error("plugin teardown failed", "plugin", name, "error", err)
		}
	}
}

// Get returns the plugin registered under logicalKey, if any.
func (r *Registry) Get(logicalKey string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[logicalKey]
	return p, ok
}
