// Package validate implements the schema check a parsed flux JSON object
// must pass before the loader will hand it to the executor (spec.md §4.1).
package validate

import (
	"fmt"

	"fluxcore/flux"
)

// Error is a single validation failure with a dotted/JSON-pointer-style
// path identifying where in the definition it occurred.
type Error struct {
	Path    string
	Message string
}

func (e Error) String() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Result is the outcome of validating one flux definition.
type Result struct {
	Valid  bool
	Errors []Error
}

var validMethods = map[flux.Method]bool{
	flux.MethodGet:     true,
	flux.MethodPost:    true,
	flux.MethodPut:     true,
	flux.MethodDelete:  true,
	flux.MethodPatch:   true,
	flux.MethodOptions: true,
	flux.MethodHead:    true,
}

// Definition validates a parsed flux definition against the rules in
// spec.md §4.1. Every error is collected — validation never fail-fasts, so
// the loader and the `validate` collaborator can report everything wrong
// with a file in one pass.
func Definition(def *flux.Definition) Result {
	var errs []Error

	if def == nil {
		return Result{Valid: false, Errors: []Error{{Path: "", Message: "definition is nil"}}}
	}

	if def.Endpoint == "" {
		errs = append(errs, Error{Path: "endpoint", Message: "endpoint is required"})
	}
	if def.Method == "" {
		errs = append(errs, Error{Path: "method", Message: "method is required"})
	} else if !validMethods[def.Method] {
		errs = append(errs, Error{Path: "method", Message: fmt.Sprintf("unsupported method %q", def.Method)})
	}
	if len(def.Flow) == 0 {
		errs = append(errs, Error{Path: "flow", Message: "flow must contain at least one node"})
	}

	errs = append(errs, validateNodes(def.Flow, "flow")...)

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func validateNodes(nodes []flux.Node, path string) []Error {
	var errs []Error
	for i, n := range nodes {
		nodePath := fmt.Sprintf("%s[%d]", path, i)
		errs = append(errs, validateNode(n, nodePath)...)
	}
	return errs
}

func validateNode(n flux.Node, path string) []Error {
	var errs []Error

	switch n.Type {
	case flux.NodeAction:
		if n.Action == nil {
			errs = append(errs, Error{Path: path, Message: "action node missing payload"})
			break
		}
		if n.Action.Name == "" {
			errs = append(errs, Error{Path: path + ".name", Message: "action requires name"})
		}
		if n.Action.Path == "" {
			errs = append(errs, Error{Path: path + ".path", Message: "action requires path"})
		}

	case flux.NodeCondition:
		if n.Condition == nil {
			errs = append(errs, Error{Path: path, Message: "condition node missing payload"})
			break
		}
		if n.Condition.If == "" {
			errs = append(errs, Error{Path: path + ".if", Message: "condition requires if"})
		}
		if len(n.Condition.Then) == 0 {
			errs = append(errs, Error{Path: path + ".then", Message: "condition requires then"})
		}
		errs = append(errs, validateNodes(n.Condition.Then, path+".then")...)
		errs = append(errs, validateNodes(n.Condition.Else, path+".else")...)

	case flux.NodeForEach:
		if n.ForEach == nil {
			errs = append(errs, Error{Path: path, Message: "forEach node missing payload"})
			break
		}
		if n.ForEach.Items == "" {
			errs = append(errs, Error{Path: path + ".items", Message: "forEach requires items"})
		}
		if n.ForEach.As == "" {
			errs = append(errs, Error{Path: path + ".as", Message: "forEach requires as"})
		}
		if len(n.ForEach.Do) == 0 {
			errs = append(errs, Error{Path: path + ".do", Message: "forEach requires do"})
		}
		errs = append(errs, validateNodes(n.ForEach.Do, path+".do")...)

	case flux.NodeParallel:
		if n.Parallel == nil {
			errs = append(errs, Error{Path: path, Message: "parallel node missing payload"})
			break
		}
		for i, branch := range n.Parallel.Branches {
			errs = append(errs, validateNodes(branch, fmt.Sprintf("%s.branches[%d]", path, i))...)
		}

	case flux.NodeTry:
		if n.Try == nil {
			errs = append(errs, Error{Path: path, Message: "try node missing payload"})
			break
		}
		if len(n.Try.Try) == 0 {
			errs = append(errs, Error{Path: path + ".try", Message: "try requires try"})
		}
		if n.Try.Catch == nil {
			errs = append(errs, Error{Path: path + ".catch", Message: "try requires catch"})
		}
		errs = append(errs, validateNodes(n.Try.Try, path+".try")...)
		errs = append(errs, validateNodes(n.Try.Catch, path+".catch")...)

	case flux.NodeReturn:
		if n.Return == nil {
			errs = append(errs, Error{Path: path, Message: "return node missing payload"})
			break
		}
		if n.Return.Body == nil {
			errs = append(errs, Error{Path: path + ".body", Message: "return requires body"})
		}

	default:
		errs = append(errs, Error{Path: path + ".type", Message: fmt.Sprintf("unrecognised node type %q", n.Type)})
	}

	return errs
}
