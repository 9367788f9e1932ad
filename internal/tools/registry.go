// Package tools holds the tool registry the orchestrator dispatches model
// function calls through, together with the built-in tool bodies.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Call is a single tool invocation. Name is the name the tool was invoked
// under, so one handler may serve several registrations.
type Call struct {
	Name string
	Args map[string]any
}

// Handler executes a tool call. The returned value is JSON-encoded and sent
// back to the model; []byte and json.RawMessage are sent verbatim.
//
// Operational failures (missing file, failed spawn) must be reported in the
// returned value, typically as {"error": "..."}. A non-nil error aborts the
// session.
type Handler func(ctx context.Context, call Call) (any, error)

type entry struct {
	spec       ToolSpec
	descriptor Descriptor
	handler    Handler
}

// Registry maps tool names to their descriptors and handlers.
type Registry struct {
	logger  *slog.Logger
	aliases map[string]map[string]string

	mu    sync.RWMutex
	tools map[string]*entry
	order []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithArgumentAliases sets the per-tool argument rename table, keyed by tool
// name then by the misspelled argument name.
func WithArgumentAliases(aliases map[string]map[string]string) Option {
	return func(r *Registry) { r.aliases = aliases }
}

// DefaultArgumentAliases returns the rename table used when none is
// configured.
func DefaultArgumentAliases() map[string]map[string]string {
	return map[string]map[string]string{
		"recursive_ls_paginated": {"page": "current_page"},
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:  logger.With("component", "tool_registry"),
		aliases: DefaultArgumentAliases(),
		tools:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. On error the registry is left unchanged.
func (r *Registry) Register(spec ToolSpec, handler Handler) error {
	if handler == nil {
		return &SchemaError{Tool: spec.Name, Err: ErrNilHandler}
	}
	descriptor, err := BuildDescriptor(spec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return &SchemaError{Tool: spec.Name, Err: ErrDuplicateTool}
	}
	spec.Params = append([]Param(nil), spec.Params...)
	r.tools[spec.Name] = &entry{spec: spec, descriptor: descriptor, handler: handler}
	r.order = append(r.order, spec.Name)

	r.logger.Debug("registered tool", "tool", spec.Name, "params", len(spec.Params))
	return nil
}

// Descriptors returns the descriptors of all tools in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].descriptor)
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Dispatch invokes the handler registered under name. Unknown tools,
// handler errors and handler panics come back as *ToolDispatchError.
// A call missing a required argument is not fatal: the model gets an
// error payload and may retry.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result any, err error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ToolDispatchError{Tool: name, Args: args, Err: ErrUnknownTool}
	}

	args = r.applyAliases(name, args)
	for _, p := range e.spec.Params {
		if _, present := args[p.Name]; p.Required && !present {
			r.logger.Warn("tool call missing required argument", "tool", name, "param", p.Name)
			return errorResult("missing required argument %q", p.Name), nil
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &ToolDispatchError{Tool: name, Args: args, Err: fmt.Errorf("handler panic: %v", rec)}
		}
	}()

	r.logger.Debug("dispatching tool", "tool", name, "args", args)
	result, err = e.handler(ctx, Call{Name: name, Args: args})
	if err != nil {
		return nil, &ToolDispatchError{Tool: name, Args: args, Err: err}
	}
	return result, nil
}

// applyAliases renames misspelled arguments. The caller's map is not
// modified.
func (r *Registry) applyAliases(tool string, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for wrong, right := range r.aliases[tool] {
		v, found := out[wrong]
		if !found {
			continue
		}
		if _, taken := out[right]; taken {
			continue
		}
		r.logger.Warn("renaming tool argument", "tool", tool, "from", wrong, "to", right)
		out[right] = v
		delete(out, wrong)
	}
	return out
}
