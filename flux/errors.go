package flux

import "fmt"

// FlowErrorType classifies error severity and retry behavior.
// Grounded on the teacher's runtime/flow_error.go.
type FlowErrorType string

const (
	ErrorTypeTransient FlowErrorType = "transient"
	ErrorTypePermanent FlowErrorType = "permanent"
	ErrorTypeTimeout    FlowErrorType = "timeout"
)

// FlowError is the error value bound at ctx[errorVar] by a Try node
// (spec.md §4.5). It is the canonical error type propagated through flow
// execution — plain errors raised by action handlers are wrapped in one
// before being bound so catch bodies always see a structured value
// (spec.md E2E scenario 4: "ctx.e.message === 'boom'").
type FlowError struct {
	Type    FlowErrorType
	Code    string
	Message string
	Node    string // path of the node that raised the failure, e.g. "flow[0].try[1]"
	Cause   error
	Meta    map[string]any
}

func (e *FlowError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("[%s/%s] %s (node: %s)", e.Type, e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Type, e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// ToMap converts the error into the value bound at ctx[errorVar] — a plain
// map so `${e.message}` and `${e.code}` resolve through the interpolator
// exactly like any other context value.
func (e *FlowError) ToMap() map[string]any {
	m := map[string]any{
		"type":    string(e.Type),
		"code":    e.Code,
		"message": e.Message,
		"node":    e.Node,
	}
	if len(e.Meta) > 0 {
		m["meta"] = e.Meta
	}
	return m
}

// WrapError converts an arbitrary error raised inside a flow into a
// *FlowError, preserving it unchanged if it already is one.
func WrapError(err error, node string) *FlowError {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*FlowError); ok {
		return fe
	}
	if te, ok := err.(*TaskError); ok {
		return te.toFlowError(node)
	}
	return &FlowError{
		Type:    ErrorTypePermanent,
		Code:    "RUNTIME_ERROR",
		Message: err.Error(),
		Node:    node,
		Cause:   err,
	}
}

// TaskError is the metadata envelope an action handler may return instead
// of a bare error, to attach retry hints and a classification consumed by
// the executor's retry feature (SPEC_FULL.md §12.3). Grounded on the
// teacher's runtime/error.go.
type TaskError struct {
	Err       error
	Retryable bool
	ErrorType string // "transient" | "permanent" | "user_error"
	Metadata  map[string]any
}

func NewTaskError(err error) *TaskError {
	return &TaskError{Err: err, Metadata: map[string]any{}}
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "task failed"
}

func (e *TaskError) Unwrap() error { return e.Err }

func (e *TaskError) WithRetryable(retryable bool) *TaskError {
	e.Retryable = retryable
	return e
}

func (e *TaskError) WithType(errorType string) *TaskError {
	e.ErrorType = errorType
	return e
}

func (e *TaskError) toFlowError(node string) *FlowError {
	t := ErrorTypePermanent
	if e.Retryable {
		t = ErrorTypeTransient
	}
	return &FlowError{
		Type:    t,
		Code:    "TASK_ERROR",
		Message: e.Error(),
		Node:    node,
		Cause:   e.Err,
		Meta:    e.Metadata,
	}
}
