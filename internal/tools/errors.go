package tools

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Registration failures. They are always wrapped in a *SchemaError.
var (
	ErrDuplicateTool            = errors.New("duplicate tool")
	ErrMissingParameterMetadata = errors.New("missing parameter metadata")
	ErrUnsupportedParameterType = errors.New("unsupported parameter type")
	ErrInvalidName              = errors.New("invalid name")
	ErrDuplicateParameter       = errors.New("duplicate parameter")
	ErrNilHandler               = errors.New("nil handler")
)

// ErrUnknownTool is returned (wrapped in a *ToolDispatchError) when the
// model calls a tool that was never registered.
var ErrUnknownTool = errors.New("unknown tool")

// SchemaError reports why a tool could not be registered.
type SchemaError struct {
	Tool  string
	Param string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("register tool %q: parameter %q: %v", e.Tool, e.Param, e.Err)
	}
	return fmt.Sprintf("register tool %q: %v", e.Tool, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ToolDispatchError carries the tool name and the arguments of a call that
// failed in a way the session cannot recover from.
type ToolDispatchError struct {
	Tool string
	Args map[string]any
	Err  error
}

func (e *ToolDispatchError) Error() string {
	args, err := json.Marshal(e.Args)
	if err != nil {
		args = []byte(fmt.Sprintf("%v", e.Args))
	}
	return fmt.Sprintf("dispatch tool %q with args %s: %v", e.Tool, args, e.Err)
}

func (e *ToolDispatchError) Unwrap() error { return e.Err }
