package exec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fluxcore/flux"
	"fluxcore/flux/load"
)

func newTestExecutor(t *testing.T, register func(*load.ActionTable)) *Executor {
	t.Helper()
	actions := load.NewActionTable()
	if register != nil {
		register(actions)
	}
	return NewExecutor(actions, nil, nil)
}

func runFlux(t *testing.T, e *Executor, def *flux.Definition, input map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	fc := flux.NewContext(req, rec, input, nil)
	e.ExecuteFlux(context.Background(), def, fc)
	return rec
}

func mustDecode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// scenario 1: Echo
func TestExecuteFluxEcho(t *testing.T) {
	e := newTestExecutor(t, func(a *load.ActionTable) {
		a.Register("hello", func(ctx *flux.Context) (any, error) {
			return map[string]any{"message": "hi"}, nil
		})
	})

	def := &flux.Definition{
		Endpoint: "/hello",
		Method:   flux.MethodGet,
		Flow: []flux.Node{
			{Type: flux.NodeAction, Action: &flux.ActionNode{Name: "r", Path: "hello"}},
			{Type: flux.NodeReturn, Return: &flux.ReturnNode{Body: "${r}"}},
		},
	}

	rec := runFlux(t, e, def, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := mustDecode(t, rec)
	if body["message"] != "hi" {
		t.Fatalf("expected echoed message, got %v", body)
	}
}

// scenario 2: Branch
func TestExecuteFluxBranch(t *testing.T) {
	e := newTestExecutor(t, nil)
	def := &flux.Definition{
		Endpoint: "/branch",
		Method:   flux.MethodPost,
		Flow: []flux.Node{
			{Type: flux.NodeCondition, Condition: &flux.ConditionNode{
				If:   "${input.flag}",
				Then: []flux.Node{{Type: flux.NodeReturn, Return: &flux.ReturnNode{Body: "yes"}}},
				Else: []flux.Node{{Type: flux.NodeReturn, Return: &flux.ReturnNode{Body: "no"}}},
			}},
		},
	}

	recTrue := runFlux(t, e, def, map[string]any{"flag": true})
	var gotTrue string
	json.Unmarshal(recTrue.Body.Bytes(), &gotTrue)
	if gotTrue != "yes" {
		t.Fatalf("expected yes, got %q", gotTrue)
	}

	recFalse := runFlux(t, e, def, map[string]any{"flag": false})
	var gotFalse string
	json.Unmarshal(recFalse.Body.Bytes(), &gotFalse)
	if gotFalse != "no" {
		t.Fatalf("expected no, got %q", gotFalse)
	}
}

// scenario 3: Loop
func TestExecuteFluxLoop(t *testing.T) {
	var observed []any
	e := newTestExecutor(t, func(a *load.ActionTable) {
		a.Register("double", func(ctx *flux.Context) (any, error) {
			args := ctx.Args()
			observed = append(observed, args["x"])
			return nil, nil
		})
	})

	def := &flux.Definition{
		Endpoint: "/loop",
		Method:   flux.MethodPost,
		Flow: []flux.Node{
			{Type: flux.NodeForEach, ForEach: &flux.ForEachNode{
				Items: "${input.xs}",
				As:    "x",
				Do: []flux.Node{
					{Type: flux.NodeAction, Action: &flux.ActionNode{
						Name: "d", Path: "double",
						Args: map[string]any{"x": "${x}"},
					}},
				},
			}},
		},
	}

	rec := runFlux(t, e, def, map[string]any{"xs": []any{float64(1), float64(2), float64(3)}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(observed) != 3 || observed[0] != float64(1) || observed[1] != float64(2) || observed[2] != float64(3) {
		t.Fatalf("expected sequential [1 2 3], got %v", observed)
	}
}

// scenario 4: Try/Catch
func TestExecuteFluxTryCatch(t *testing.T) {
	e := newTestExecutor(t, func(a *load.ActionTable) {
		a.Register("boom", func(ctx *flux.Context) (any, error) {
			return nil, errBoom{}
		})
	})

	def := &flux.Definition{
		Endpoint: "/try",
		Method:   flux.MethodGet,
		Flow: []flux.Node{
			{Type: flux.NodeTry, Try: &flux.TryNode{
				Try:      []flux.Node{{Type: flux.NodeAction, Action: &flux.ActionNode{Name: "x", Path: "boom"}}},
				Catch:    []flux.Node{{Type: flux.NodeReturn, Return: &flux.ReturnNode{Body: "caught"}}},
				ErrorVar: "e",
			}},
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/try", nil)
	fc := flux.NewContext(req, rec, nil, nil)
	e.ExecuteFlux(context.Background(), def, fc)

	var body string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body != "caught" {
		t.Fatalf("expected caught, got %q", body)
	}

	if _, bound := fc.GetBinding("e"); bound {
		t.Fatal("expected errorVar to be unbound after catch completes")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// scenario 4 (continued): the caught error is visible at ctx[errorVar]
// while catch is running.
func TestExecuteFluxTryCatchBindsErrorVar(t *testing.T) {
	var seenMessage any
	e := newTestExecutor(t, func(a *load.ActionTable) {
		a.Register("boom", func(ctx *flux.Context) (any, error) {
			return nil, errBoom{}
		})
		a.Register("inspect", func(ctx *flux.Context) (any, error) {
			errVal, _ := ctx.GetBinding("e")
			if m, ok := errVal.(map[string]any); ok {
				seenMessage = m["message"]
			}
			return nil, nil
		})
	})

	def := &flux.Definition{
		Endpoint: "/try-inspect",
		Method:   flux.MethodGet,
		Flow: []flux.Node{
			{Type: flux.NodeTry, Try: &flux.TryNode{
				Try: []flux.Node{{Type: flux.NodeAction, Action: &flux.ActionNode{Name: "x", Path: "boom"}}},
				Catch: []flux.Node{
					{Type: flux.NodeAction, Action: &flux.ActionNode{Name: "i", Path: "inspect"}},
					{Type: flux.NodeReturn, Return: &flux.ReturnNode{Body: "caught"}},
				},
				ErrorVar: "e",
			}},
		},
	}

	runFlux(t, e, def, nil)
	if seenMessage != "boom" {
		t.Fatalf("expected ctx.e.message == \"boom\", got %v", seenMessage)
	}
}

// scenario 5: Parallel
func TestExecuteFluxParallel(t *testing.T) {
	e := newTestExecutor(t, func(a *load.ActionTable) {
		a.Register("b1", func(ctx *flux.Context) (any, error) { return "r1", nil })
		a.Register("b2", func(ctx *flux.Context) (any, error) { return "r2", nil })
	})

	def := &flux.Definition{
		Endpoint: "/parallel",
		Method:   flux.MethodGet,
		Flow: []flux.Node{
			{Type: flux.NodeParallel, Parallel: &flux.ParallelNode{
				Branches: [][]flux.Node{
					{{Type: flux.NodeAction, Action: &flux.ActionNode{Name: "b1", Path: "b1"}}},
					{{Type: flux.NodeAction, Action: &flux.ActionNode{Name: "b2", Path: "b2"}}},
				},
			}},
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/parallel", nil)
	fc := flux.NewContext(req, rec, nil, nil)
	e.ExecuteFlux(context.Background(), def, fc)

	results := fc.Results()
	if results["b1"] != "r1" || results["b2"] != "r2" {
		t.Fatalf("expected {b1:r1, b2:r2}, got %v", results)
	}
}

// boundary: parallel with empty branches is a no-op
func TestExecuteFluxParallelEmptyBranches(t *testing.T) {
	e := newTestExecutor(t, nil)
	def := &flux.Definition{
		Endpoint: "/empty-parallel",
		Method:   flux.MethodGet,
		Flow: []flux.Node{
			{Type: flux.NodeParallel, Parallel: &flux.ParallelNode{Branches: nil}},
		},
	}

	rec := runFlux(t, e, def, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 success tail, got %d", rec.Code)
	}
}

// boundary: uncaught error yields 500 with an opaque body
func TestExecuteFluxUncaughtErrorRespondsInternalServerError(t *testing.T) {
	e := newTestExecutor(t, nil)
	def := &flux.Definition{
		Endpoint: "/missing-action",
		Method:   flux.MethodGet,
		Flow: []flux.Node{
			{Type: flux.NodeAction, Action: &flux.ActionNode{Name: "x", Path: "does-not-exist"}},
		},
	}

	rec := runFlux(t, e, def, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := mustDecode(t, rec)
	if body["error"] != "Internal server error" {
		t.Fatalf("expected opaque error body, got %v", body)
	}
}

// boundary: forEach over a non-array is a no-op
func TestExecuteFluxForEachNonArrayIsNoop(t *testing.T) {
	e := newTestExecutor(t, nil)
	def := &flux.Definition{
		Endpoint: "/bad-loop",
		Method:   flux.MethodGet,
		Flow: []flux.Node{
			{Type: flux.NodeForEach, ForEach: &flux.ForEachNode{Items: "${input.notArray}", As: "x", Do: []flux.Node{
				{Type: flux.NodeReturn, Return: &flux.ReturnNode{Body: "unreachable"}},
			}}},
		},
	}

	rec := runFlux(t, e, def, map[string]any{"notArray": "oops"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 success tail, got %d", rec.Code)
	}
	body := mustDecode(t, rec)
	if body["success"] != true {
		t.Fatalf("expected implicit success tail, got %v", body)
	}
}
