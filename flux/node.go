// Package flux defines the Flux AST: the tagged-variant flow node types and
// the flux definition that binds a flow to an HTTP endpoint.
package flux

import (
	"encoding/json"
	"fmt"
)

// NodeType discriminates the six flow node kinds.
type NodeType string

const (
	NodeAction    NodeType = "action"
	NodeCondition NodeType = "condition"
	NodeForEach   NodeType = "forEach"
	NodeParallel  NodeType = "parallel"
	NodeTry       NodeType = "try"
	NodeReturn    NodeType = "return"
)

// Method is one of the seven HTTP verbs a flux can bind to.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodOptions Method = "OPTIONS"
	MethodHead    Method = "HEAD"
)

// Definition is an immutable-after-load flux: an endpoint/method pair and
// its ordered flow of nodes.
type Definition struct {
	Endpoint    string `json:"endpoint"`
	Method      Method `json:"method"`
	Description string `json:"description,omitempty"`
	Flow        []Node `json:"flow"`
}

// RetryConfig controls action-node retry behavior (supplemented feature,
// see SPEC_FULL.md §12.1). Absent on a node, the action runs exactly once.
type RetryConfig struct {
	MaxRetries int  `json:"maxRetries"`
	Delay      int  `json:"delay"` // base delay in milliseconds
	Backoff    bool `json:"backoff"`
}

// ActionNode invokes the handler registered at Path and stores its result
// under Name.
type ActionNode struct {
	Name  string         `json:"name"`
	Path  string         `json:"path"`
	Args  map[string]any `json:"args,omitempty"`
	Retry *RetryConfig   `json:"retry,omitempty"`
}

// ConditionNode branches on the boolean expression If.
type ConditionNode struct {
	If   string `json:"if"`
	Then []Node `json:"then"`
	Else []Node `json:"else,omitempty"`
}

// ForEachNode iterates the array resolved from Items, binding each element
// at As for the duration of Do.
type ForEachNode struct {
	Items string `json:"items"`
	As    string `json:"as"`
	Do    []Node `json:"do"`
}

// ParallelNode runs each branch concurrently over the shared context.
type ParallelNode struct {
	Branches [][]Node `json:"branches"`
}

// TryNode catches any failure raised while walking Try and walks Catch
// instead, optionally binding the caught error at ErrorVar.
type TryNode struct {
	Try      []Node `json:"try"`
	Catch    []Node `json:"catch"`
	ErrorVar string `json:"errorVar,omitempty"`
}

// ReturnNode terminates the flow and writes the HTTP response.
type ReturnNode struct {
	Status *int `json:"status,omitempty"`
	Body   any  `json:"body"`
}

// Node is a tagged union over the six flow node kinds. Exactly one of the
// typed fields is non-nil, matching Type.
type Node struct {
	Type      NodeType
	Action    *ActionNode
	Condition *ConditionNode
	ForEach   *ForEachNode
	Parallel  *ParallelNode
	Try       *TryNode
	Return    *ReturnNode
}

// UnmarshalJSON decodes a node by first reading its "type" tag, then
// decoding the full object into the matching typed payload. Unknown
// root-level keys are tolerated (forward-compatible), matching spec.md §4.1.
func (n *Node) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type NodeType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("flux: decoding node type tag: %w", err)
	}

	n.Type = tag.Type
	switch tag.Type {
	case NodeAction:
		n.Action = &ActionNode{}
		return json.Unmarshal(data, n.Action)
	case NodeCondition:
		n.Condition = &ConditionNode{}
		return json.Unmarshal(data, n.Condition)
	case NodeForEach:
		n.ForEach = &ForEachNode{}
		return json.Unmarshal(data, n.ForEach)
	case NodeParallel:
		n.Parallel = &ParallelNode{}
		return json.Unmarshal(data, n.Parallel)
	case NodeTry:
		n.Try = &TryNode{}
		return json.Unmarshal(data, n.Try)
	case NodeReturn:
		n.Return = &ReturnNode{}
		return json.Unmarshal(data, n.Return)
	default:
		// Leave fields nil; the validator reports unrecognised types. The
		// executor guards against this too (spec.md §7, Resolution errors).
		return nil
	}
}

// MarshalJSON re-serializes a node back to its tagged form. Used by the
// `visualize`-style tooling external to the core.
func (n Node) MarshalJSON() ([]byte, error) {
	var payload any
	switch n.Type {
	case NodeAction:
		payload = n.Action
	case NodeCondition:
		payload = n.Condition
	case NodeForEach:
		payload = n.ForEach
	case NodeParallel:
		payload = n.Parallel
	case NodeTry:
		payload = n.Try
	case NodeReturn:
		payload = n.Return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("flux: marshaling node %s: %w", n.Type, err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	m["type"] = string(n.Type)
	return json.Marshal(m)
}
