// Package tool implements the function / tool calling subsystem: the Tool
// contract, schema validated FunctionTools, the name-keyed Registry and the
// closed Command boundary through which the agent loop executes tools.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/internal/util"
	"github.com/hupe1980/wikiagent/model"
)

// Tool defines the interface for extending the agent with external functions.
//
// Tool implementations should:
//   - Provide a unique snake_case name and a description aimed at the model
//   - Define a JSON schema for their parameters
//   - Be safe for concurrent use if they declare themselves Stateless
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the model to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with already decoded arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Availability is implemented by tools that can be temporarily unable to
// serve, such as knowledge search over an empty index. Unavailable tools are
// not offered to the model.
type Availability interface {
	Available(ctx context.Context) bool
}

// Stateless is implemented by tools whose calls neither share mutable state
// nor depend on call order, which allows the agent to run them concurrently.
type Stateless interface {
	Stateless() bool
}

// IsAvailable reports whether t can currently serve calls.
func IsAvailable(ctx context.Context, t Tool) bool {
	if a, ok := t.(Availability); ok {
		return a.Available(ctx)
	}
	return true
}

// IsStateless reports whether t declares itself stateless.
func IsStateless(t Tool) bool {
	s, ok := t.(Stateless)
	return ok && s.Stateless()
}

// Definition converts a tool to the provider-agnostic model definition.
func Definition(t Tool) model.ToolDefinition {
	return model.NewToolDefinition(t.Name(), t.Description(), t.Parameters())
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ErrInvalidArgument marks tool errors caused by argument values that pass
// the schema but are semantically invalid.
var ErrInvalidArgument = errors.New("invalid argument")

// Error codes carried by ToolError.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeExecution           = "EXECUTION_ERROR"
	CodeUnknownTool         = "UNKNOWN_TOOL"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeRateLimited         = "RATE_LIMITED"
)

// ToolError represents errors that occur during tool resolution or execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`                 // Underlying cause
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// CodeOf returns the ToolError code carried by err, or "".
func CodeOf(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// AsToolError normalizes err into a *ToolError for the named tool. Existing
// ToolErrors pass through unchanged.
func AsToolError(name string, err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	code := CodeExecution
	var ve *ValidationError
	switch {
	case errors.Is(err, core.ErrRateLimited):
		code = CodeRateLimited
	case errors.Is(err, core.ErrProviderUnavailable):
		code = CodeProviderUnavailable
	case errors.As(err, &ve), errors.Is(err, ErrInvalidArgument):
		code = CodeValidation
	}
	return &ToolError{Tool: name, Message: err.Error(), Code: code, Err: err}
}

// Render converts a tool result into the text fed back to the model.
// Strings pass through, Stringers and Summary() providers use their text
// form, and everything else is encoded as JSON.
func Render(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case interface{ Summary() string }:
		return v.Summary()
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(b)
}
