// Package exec implements the flow interpreter (spec.md §4.5): the state
// machine that walks a flux's node tree, manages per-request context,
// honors parallelism and try/catch failure semantics, and writes the
// HTTP response.
package exec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fluxcore/flux"
	"fluxcore/flux/interpolate"
	"fluxcore/flux/load"
	"fluxcore/flux/plugin"
	"fluxcore/flux/telemetry"
)

// Executor interprets flux definitions over a flux.Context. Grounded on the
// teacher's Executor (runtime/executor.go) — same step-loop/condition/retry
// shape — generalized from its single linear step list to the six-node
// tagged-variant tree spec.md §3 defines, and from the teacher's
// expr-lang-based ExpressionEvaluator to the interpolate package's
// hand-written parser (spec.md §9 redesign flag).
type Executor struct {
	actions *load.ActionTable
	plugins *plugin.Registry
	metrics telemetry.MetricsRecorder
}

// NewExecutor builds an Executor. metrics may be nil, in which case node
// and flux-run metrics are discarded (telemetry.NoopMetrics).
func NewExecutor(actions *load.ActionTable, plugins *plugin.Registry, metrics telemetry.MetricsRecorder) *Executor {
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	return &Executor{actions: actions, plugins: plugins, metrics: metrics}
}

// ExecuteFlux is spec.md §4.5's public entry point: inject plugins, walk
// the flow, and guarantee exactly one HTTP response is written (invariant
// 4) — either by a Return node, by the outermost failure handler, or by
// the implicit `200 {success:true}` tail.
func (e *Executor) ExecuteFlux(ctx context.Context, def *flux.Definition, fc *flux.Context) {
	start := time.Now()

	if e.plugins != nil {
		e.plugins.InjectInto(fc.Plugins)
	}

	terminated, err := e.walk(ctx, def.Flow, fc, "flow")

	if err != nil {
		slog.Error("flux execution failed", "endpoint", def.Endpoint, "method", def.Method, "error", err)
		e.respond(fc, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
	} else if !terminated {
		e.respond(fc, http.StatusOK, map[string]any{"success": true})
	}

	e.metrics.RecordFluxRun(ctx, def.Endpoint, err == nil, time.Since(start))
}

// walk executes nodes in order. It returns (true, nil) as soon as a node
// signals early-terminate or a response has already been written
// (invariant 4 / spec.md §4.5 bullet 2), and (false, err) as soon as a
// node fails without that failure being caught. Checking ctx.Done() at
// each node boundary is what makes a sibling Parallel branch's
// early-return "signal all branches to stop at their next node boundary"
// (spec.md §4.5 Parallel) cooperative rather than preemptive.
func (e *Executor) walk(ctx context.Context, nodes []flux.Node, fc *flux.Context, path string) (bool, error) {
	for i, n := range nodes {
		select {
		case <-ctx.Done():
			return false, nil
		default:
		}

		terminated, err := e.executeNode(ctx, n, fc, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return false, err
		}
		if terminated || fc.Responded() {
			return true, nil
		}
	}
	return false, nil
}

func (e *Executor) executeNode(ctx context.Context, n flux.Node, fc *flux.Context, path string) (bool, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "flux.node."+string(n.Type), map[string]string{"path": path})

	var terminated bool
	var err error

	switch n.Type {
	case flux.NodeAction:
		terminated, err = e.executeAction(ctx, n.Action, fc, path)
	case flux.NodeCondition:
		terminated, err = e.executeCondition(ctx, n.Condition, fc, path)
	case flux.NodeForEach:
		terminated, err = e.executeForEach(ctx, n.ForEach, fc, path)
	case flux.NodeParallel:
		terminated, err = e.executeParallel(ctx, n.Parallel, fc, path)
	case flux.NodeTry:
		terminated, err = e.executeTry(ctx, n.Try, fc, path)
	case flux.NodeReturn:
		terminated, err = e.executeReturn(fc, n.Return)
	default:
		err = flux.WrapError(fmt.Errorf("unknown node type %q", n.Type), path)
	}

	telemetry.EndSpan(span, err)
	e.metrics.RecordNodeExecution(ctx, string(n.Type), path, time.Since(start), err)
	return terminated, err
}

// executeAction implements spec.md §4.5's Action semantics, including the
// supplemented retry feature (SPEC_FULL.md §12.1).
func (e *Executor) executeAction(ctx context.Context, a *flux.ActionNode, fc *flux.Context, path string) (bool, error) {
	handler, ok := e.actions.Get(a.Path)
	if !ok {
		return false, flux.WrapError(fmt.Errorf("action not found: %s", a.Path), path)
	}

	invoke := func() (any, error) {
		var args map[string]any
		if a.Args != nil {
			if resolved, ok := interpolate.Resolve(a.Args, fc.Snapshot()).(map[string]any); ok {
				args = resolved
			}
		}
		fc.SetArgs(args)
		defer fc.ClearArgs()
		return handler(fc)
	}

	// A *flux.TaskError whose Retryable hint is false is never retried.
	retryable := func(err error) bool {
		var te *flux.TaskError
		return !errors.As(err, &te) || te.Retryable
	}

	result, err := invoke()
	if err != nil && a.Retry != nil {
		for i := 0; i < a.Retry.MaxRetries && err != nil && retryable(err); i++ {
			timer := time.NewTimer(retryDelay(i, a.Retry.Delay, a.Retry.Backoff))
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, flux.WrapError(err, path)
			case <-timer.C:
			}
			result, err = invoke()
		}
	}
	if err != nil {
		return false, flux.WrapError(err, path)
	}

	fc.Bind(a.Name, result)
	return false, nil
}

// executeCondition implements spec.md §4.5's Condition semantics.
func (e *Executor) executeCondition(ctx context.Context, c *flux.ConditionNode, fc *flux.Context, path string) (bool, error) {
	if interpolate.EvaluateCondition(c.If, fc.Snapshot()) {
		return e.walk(ctx, c.Then, fc, path+".then")
	}
	return e.walk(ctx, c.Else, fc, path+".else")
}

// executeForEach implements spec.md §4.5's ForEach semantics: sequential
// iteration, `as` bound only for the body's duration, non-array resolution
// treated as a warned no-op (spec.md §8 boundary behaviour).
func (e *Executor) executeForEach(ctx context.Context, fe *flux.ForEachNode, fc *flux.Context, path string) (bool, error) {
	resolved := interpolate.Resolve(fe.Items, fc.Snapshot())
	items, ok := resolved.([]any)
	if !ok {
		slog.Warn("forEach items did not resolve to an array; treating as no-op", "items", fe.Items, "path", path)
		return false, nil
	}

	defer fc.UnsetBinding(fe.As)

	for i, elem := range items {
		fc.SetBinding(fe.As, elem)
		terminated, err := e.walk(ctx, fe.Do, fc, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return false, err
		}
		if terminated {
			return true, nil
		}
	}
	return false, nil
}

type branchOutcome struct {
	terminated bool
	err        error
}

// executeParallel implements spec.md §4.5's Parallel semantics: branches
// run concurrently over the shared context; an empty branch list is a
// no-op (spec.md §8); the first failure observed propagates; a branch's
// early-return cooperatively signals the rest to stop at their next node
// boundary via ctx cancellation, never mid-action (spec.md §4.5).
func (e *Executor) executeParallel(ctx context.Context, p *flux.ParallelNode, fc *flux.Context, path string) (bool, error) {
	if len(p.Branches) == 0 {
		return false, nil
	}

	var debugBefore map[string][]string
	if fc.Debug {
		debugBefore = fc.DebugWrites()
	}

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]branchOutcome, len(p.Branches))
	var wg sync.WaitGroup

	for i, branch := range p.Branches {
		wg.Add(1)
		go func(i int, branch []flux.Node) {
			defer wg.Done()
			branchFC := fc.WithContext(branchCtx).WithBranchTag(i)
			terminated, err := e.walk(branchCtx, branch, branchFC, fmt.Sprintf("%s.branches[%d]", path, i))
			outcomes[i] = branchOutcome{terminated: terminated, err: err}
			if terminated || err != nil {
				cancel()
			}
		}(i, branch)
	}
	wg.Wait()

	if fc.Debug {
		// Only the writes made by this node's branches are compared.
		writes := fc.DebugWrites()
		for tag, names := range writes {
			writes[tag] = names[len(debugBefore[tag]):]
		}
		if collisions := checkDisjoint(writes); len(collisions) > 0 {
			slog.Warn("parallel branches wrote overlapping result keys", "path", path, "keys", collisions)
		}
	}

	terminated := false
	for _, o := range outcomes {
		if o.err != nil {
			return false, o.err
		}
		if o.terminated {
			terminated = true
		}
	}
	return terminated, nil
}

// executeTry implements spec.md §4.5's Try semantics: catch binds the
// error at errorVar when specified; early-return from try skips catch
// entirely; a failure thrown inside catch escapes to the enclosing scope
// unchanged.
func (e *Executor) executeTry(ctx context.Context, t *flux.TryNode, fc *flux.Context, path string) (bool, error) {
	terminated, err := e.walk(ctx, t.Try, fc, path+".try")
	if err == nil {
		return terminated, nil
	}

	fe := flux.WrapError(err, path+".try")
	if t.ErrorVar != "" {
		fc.SetBinding(t.ErrorVar, fe.ToMap())
		defer fc.UnsetBinding(t.ErrorVar)
	}

	return e.walk(ctx, t.Catch, fc, path+".catch")
}

// executeReturn implements spec.md §4.5's Return semantics. A second
// Return (or any node racing a prior Return) is a no-op — respond
// enforces that via fc.MarkResponded.
func (e *Executor) executeReturn(fc *flux.Context, r *flux.ReturnNode) (bool, error) {
	status := http.StatusOK
	if r.Status != nil {
		status = *r.Status
	}
	body := interpolate.Resolve(r.Body, fc.Snapshot())
	e.respond(fc, status, body)
	return true, nil
}

func (e *Executor) respond(fc *flux.Context, status int, body any) {
	if !fc.MarkResponded() {
		return
	}
	if fc.Response == nil {
		return
	}
	fc.Response.Header().Set("Content-Type", "application/json")
	fc.Response.WriteHeader(status)
	if err := json.NewEncoder(fc.Response).Encode(body); err != nil {
		slog.Error("failed to write flux response", "error", err)
	}
}
