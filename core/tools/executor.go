package tools

import (
	"context"
	"fmt"
)

// ExecutionError is the typed failure an Executor reports for one tool
// call. It never terminates the session; it is relayed to the provider as a
// failed tool output so the model can react.
type ExecutionError struct {
	Code    string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool execution failed (%s): %s", e.Code, e.Message)
}

// Result is what an Executor returns for a completed call.
type Result struct {
	Success  bool
	Response string
	Err      *ExecutionError
}

// Executor runs a named tool with already-parsed JSON parameters. The
// engine passes arguments through untouched and never interprets tool
// semantics beyond safe/unsafe classification.
//
// Execute is network-bound and may block until the remote call completes;
// callers must not invoke it from the session event loop.
type Executor interface {
	Execute(ctx context.Context, name string, parameters map[string]any, callID string) (Result, error)
}
