package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/wikiagent/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// It validates arguments against its schema (after filling in schema
// defaults) before invoking the function, and normalizes failures into
// *ToolError:
//
//	VALIDATION_ERROR      -> schema / argument mismatch
//	PROVIDER_UNAVAILABLE  -> the function failed with core.ErrProviderUnavailable
//	RATE_LIMITED          -> the function failed with core.ErrRateLimited
//	EXECUTION_ERROR       -> any other error
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	stateless   bool
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewTypedTool derives the parameter schema from T (see util.CreateSchema)
// and decodes validated arguments into a T before calling fn.
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewTypedTool("calculate_sum", "Calculate the sum of two numbers",
//	  func(ctx context.Context, args SumArgs) (any, error) { return args.A + args.B, nil })
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) *FunctionTool {
	var zero T
	return NewFunctionTool(name, description, util.CreateSchema(zero), func(ctx context.Context, args map[string]any) (any, error) {
		typed, err := decodeArgs[T](args)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return fn(ctx, typed)
	})
}

// WithStateless marks the tool as safe for concurrent calls within a round.
func (t *FunctionTool) WithStateless() *FunctionTool {
	t.stateless = true
	return t
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Stateless implements Stateless.
func (t *FunctionTool) Stateless() bool { return t.stateless }

// Call validates args against the declared schema then invokes the function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	args = util.ApplyDefaults(args, t.parameters)
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Err:     err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		return nil, AsToolError(t.name, err)
	}
	return result, nil
}

func decodeArgs[T any](args map[string]any) (T, error) {
	var out T
	b, err := json.Marshal(args)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

var (
	_ Tool      = (*FunctionTool)(nil)
	_ Stateless = (*FunctionTool)(nil)
)
