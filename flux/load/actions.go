// Package load discovers the two in-memory tables the executor consumes at
// startup: the action handler table and the flux definition table
// (spec.md §4.2).
package load

import (
	"fmt"
	"sync"

	"fluxcore/flux"
)

// Action is the Go-native shape of spec.md §6's action module interface —
// "a callable handler(ctx) → value | promise<value>". There is no dynamic
// module loading in Go the way the source language discovers exported
// functions from files on disk, so actions are registered in-process by
// the embedding program (see examples/actions) under the same dotted/
// slash path convention the flux's action nodes reference.
type Action func(ctx *flux.Context) (any, error)

// ActionTable is the path→handler map described in spec.md §4.2. Safe for
// concurrent reads (lookups happen on every action node execution) and
// writes (registration may happen while plugins are still starting up).
type ActionTable struct {
	mu       sync.RWMutex
	handlers map[string]Action
}

func NewActionTable() *ActionTable {
	return &ActionTable{handlers: map[string]Action{}}
}

// Register binds handler under path, the filename-relative, extension-
// stripped, slash-separated key an action node's `path` field refers to
// (spec.md §6). Registering the same path twice overwrites the previous
// handler — this mirrors a redeploy of the same action module.
func (t *ActionTable) Register(path string, handler Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[path] = handler
}

// Get returns the handler registered at path, or (nil, false) — the
// "getAction(path) → handler | nil" contract of spec.md §4.2.
func (t *ActionTable) Get(path string) (Action, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[path]
	return h, ok
}

// Len reports how many actions are currently registered.
func (t *ActionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// ActionError records a path whose registration could not be used — kept
// for symmetry with FluxError even though Go's static registration makes
// this structurally rare (spec.md §4.2: "non-function exports are skipped
// with a warning").
type ActionError struct {
	Path   string
	Reason string
}

func (e ActionError) String() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}
