package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/internal/util"
	"github.com/hupe1980/wikiagent/model"
)

// Registry holds tools keyed by name and preserves registration order.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry holding tools, in order.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Empty and duplicate names are rejected.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("register tool: nil tool")
	}
	name := t.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("register tool: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = map[string]Tool{}
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register tool %q: %w", name, core.ErrDuplicateName)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, core.ErrUnknownTool)
	}
	return t, nil
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Available returns the tools that currently report themselves available,
// in registration order.
func (r *Registry) Available(ctx context.Context) []Tool {
	var out []Tool
	for _, t := range r.List() {
		if IsAvailable(ctx, t) {
			out = append(out, t)
		}
	}
	return out
}

// Definitions returns model definitions for the available tools.
func (r *Registry) Definitions(ctx context.Context) []model.ToolDefinition {
	tools := r.Available(ctx)
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = Definition(t)
	}
	return defs
}

// Resolve turns a model supplied call into a validated Command. rawArgs is
// the JSON object produced by the model; an empty string means no arguments.
//
// Failures are *ToolError values: UNKNOWN_TOOL (wrapping core.ErrUnknownTool)
// for unregistered names and VALIDATION_ERROR for malformed or schema
// violating arguments.
func (r *Registry) Resolve(name, rawArgs string) (Command, error) {
	t, err := r.Get(name)
	if err != nil {
		return Command{}, &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("tool %q is not registered; available tools: %s", name, strings.Join(r.Names(), ", ")),
			Code:    CodeUnknownTool,
			Err:     err,
		}
	}

	args := map[string]any{}
	if trimmed := strings.TrimSpace(rawArgs); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return Command{}, &ToolError{
				Tool:    name,
				Message: fmt.Sprintf("arguments are not a JSON object: %v", err),
				Code:    CodeValidation,
				Err:     err,
			}
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	args = util.ApplyDefaults(args, t.Parameters())
	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		return Command{}, &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Err:     err,
		}
	}

	return Command{tool: t, raw: rawArgs, args: args}, nil
}

// Command is a resolved, validated tool call. The zero value is not usable;
// Commands are obtained from Registry.Resolve.
type Command struct {
	tool Tool
	raw  string
	args map[string]any
}

// Name returns the target tool name.
func (c Command) Name() string {
	if c.tool == nil {
		return ""
	}
	return c.tool.Name()
}

// RawInput returns the arguments as produced by the model.
func (c Command) RawInput() string { return c.raw }

// Args returns a copy of the normalized arguments.
func (c Command) Args() map[string]any {
	out := make(map[string]any, len(c.args))
	for k, v := range c.args {
		out[k] = v
	}
	return out
}

// Stateless reports whether the target tool may run concurrently.
func (c Command) Stateless() bool { return c.tool != nil && IsStateless(c.tool) }

// Execute runs the tool. Errors are normalized to *ToolError.
func (c Command) Execute(ctx context.Context) (any, error) {
	if c.tool == nil {
		return nil, &ToolError{Message: "command was not resolved", Code: CodeUnknownTool, Err: core.ErrUnknownTool}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := c.tool.Call(ctx, c.Args())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, AsToolError(c.tool.Name(), err)
	}
	return result, nil
}
