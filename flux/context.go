package flux

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// state holds the mutable fields of a Context that must stay consistent
// across Parallel branches operating on copies of the same request
// (spec.md §5: "per-request context is owned by the request and shared
// only between its own Parallel branches"). It is reference-shared — every
// Context derived from the same request via WithContext points at the same
// *state — so the mutex actually guards concurrent branch writes instead of
// merely protecting a private copy.
type state struct {
	mu        sync.RWMutex
	results   map[string]any
	scratch   map[string]any
	bindings  map[string]any // dynamic ctx[name] / ctx[as] / ctx[errorVar] entries
	args      map[string]any
	responded bool

	// debugWrites records, per parallel branch tag, every name Bind was
	// called with — backing the debug-mode collision detector (spec.md §9:
	// "provide a debug-mode detector that snapshots keys written per
	// branch and asserts disjointness").
	debugWrites map[string][]string
}

// Context is the per-request mutable state carried through a flow (spec.md
// §3). It implements context.Context so it can be handed directly to
// plugin clients (resty, database pools, …) that expect cancellation and
// deadline propagation — mirrored from the teacher's
// runtime/execution.go Execution type.
type Context struct {
	ID string

	Request  *http.Request
	Response http.ResponseWriter

	Input   map[string]any
	Plugins map[string]any

	// Debug enables the parallel-branch write-collision detector
	// (SPEC_FULL.md §12.4).
	Debug bool

	// branchTag identifies which Parallel branch this *Context view belongs
	// to, set via WithBranchTag. Empty outside of a Parallel branch.
	branchTag string

	s   *state
	ctx context.Context
}

// NewContext builds a fresh request context. input is the merged
// body/query/path-parameter bag (spec.md §9: {...body, ...query, ...params},
// later wins — callers build this merge before calling NewContext).
func NewContext(r *http.Request, w http.ResponseWriter, input map[string]any, plugins map[string]any) *Context {
	if input == nil {
		input = map[string]any{}
	}
	if plugins == nil {
		plugins = map[string]any{}
	}

	parent := context.Background()
	if r != nil {
		parent = r.Context()
	}

	return &Context{
		ID:       uuid.New().String(),
		Request:  r,
		Response: w,
		Input:    input,
		Plugins:  plugins,
		s: &state{
			results:  map[string]any{},
			scratch:  map[string]any{},
			bindings: map[string]any{},
		},
		ctx: parent,
	}
}

// context.Context implementation — delegates to the embedded request
// context so cancellation/deadlines reach action handlers and plugin
// clients that accept a context.Context.

func (c *Context) Deadline() (time.Time, bool) { return c.ctx.Deadline() }
func (c *Context) Done() <-chan struct{}       { return c.ctx.Done() }
func (c *Context) Err() error                  { return c.ctx.Err() }

func (c *Context) Value(key any) any {
	if k, ok := key.(string); ok {
		if v, found := c.GetBinding(k); found {
			return v
		}
	}
	return c.ctx.Value(key)
}

// Results returns the results map (action name -> returned value). Safe
// for concurrent reads while Parallel branches run.
func (c *Context) Results() map[string]any {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	cp := make(map[string]any, len(c.s.results))
	for k, v := range c.s.results {
		cp[k] = v
	}
	return cp
}

// State returns the free-form scratch space actions may read and write.
func (c *Context) State() map[string]any {
	return c.s.scratch
}

// Args returns the resolved argument bag for the currently executing
// action, or nil outside of an action invocation (spec.md invariant 2).
func (c *Context) Args() map[string]any {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.args
}

// Bind sets both ctx.results[name] and ctx[name] (spec.md invariant 1).
func (c *Context) Bind(name string, value any) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.results[name] = value
	c.s.bindings[name] = value
	if c.Debug && c.branchTag != "" {
		if c.s.debugWrites == nil {
			c.s.debugWrites = map[string][]string{}
		}
		c.s.debugWrites[c.branchTag] = append(c.s.debugWrites[c.branchTag], name)
	}
}

// WithBranchTag returns a shallow copy of c tagged with branchID, used by
// the Parallel node handler to attribute each Bind call to the branch that
// made it. Safe to call before the branch's goroutine starts; the copy
// shares the same *state as c, so results/bindings are still the single
// shared map Parallel branches write into (spec.md §5).
func (c *Context) WithBranchTag(branchID int) *Context {
	cp := *c
	cp.branchTag = fmt.Sprintf("branch[%d]", branchID)
	return &cp
}

// DebugWrites returns a snapshot of the names Bind was called with, keyed
// by branch tag. Empty unless Debug is set.
func (c *Context) DebugWrites() map[string][]string {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make(map[string][]string, len(c.s.debugWrites))
	for k, v := range c.s.debugWrites {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// SetBinding sets a dynamic top-level binding without touching Results —
// used for forEach's `as` and try/catch's `errorVar`.
func (c *Context) SetBinding(name string, value any) {
	if name == "" {
		return
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.bindings[name] = value
}

// UnsetBinding removes a dynamic binding — used when a forEach loop exits
// to unbind `as`, restoring scope.
func (c *Context) UnsetBinding(name string) {
	if name == "" {
		return
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	delete(c.s.bindings, name)
}

// GetBinding reads a dynamic top-level binding.
func (c *Context) GetBinding(name string) (any, bool) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	v, ok := c.s.bindings[name]
	return v, ok
}

// SetArgs assigns the resolved argument bag for the currently executing
// action (spec.md invariant 2). Pass nil to clear.
func (c *Context) SetArgs(args map[string]any) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.args = args
}

// ClearArgs clears ctx.args; always safe to call, including on error exit
// paths (spec.md invariant 2).
func (c *Context) ClearArgs() {
	c.SetArgs(nil)
}

// Snapshot returns the full tree the interpolator walks: input, results,
// state, plugins, args, and every dynamic binding merged at the top level.
// Read-only — callers must not mutate the returned map.
func (c *Context) Snapshot() map[string]any {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	m := make(map[string]any, len(c.s.bindings)+5)
	for k, v := range c.s.bindings {
		m[k] = v
	}
	m["input"] = c.Input
	m["results"] = c.s.results
	m["state"] = c.s.scratch
	m["plugins"] = c.Plugins
	m["args"] = c.s.args
	return m
}

// Responded reports whether an HTTP response has already been written for
// this request (spec.md invariant 4).
func (c *Context) Responded() bool {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.responded
}

// MarkResponded records that a response has been written. Returns false if
// a response was already written (Return-after-return is a no-op, spec.md
// §7).
func (c *Context) MarkResponded() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.responded {
		return false
	}
	c.s.responded = true
	return true
}

// WithContext returns a copy of Context sharing the same mutable state
// (results/scratch/bindings/args, via the shared *state) but carrying a new
// embedded context.Context — used to give a Parallel branch or a single
// action its own cancellation scope without disturbing siblings that share
// the same flow-level state, mirroring the teacher's
// Execution.WithContext/WithScopedContext.
func (c *Context) WithContext(ctx context.Context) *Context {
	return &Context{
		ID:       c.ID,
		Request:  c.Request,
		Response: c.Response,
		Input:    c.Input,
		Plugins:  c.Plugins,
		Debug:    c.Debug,
		s:        c.s,
		ctx:      ctx,
	}
}

var _ context.Context = (*Context)(nil)
