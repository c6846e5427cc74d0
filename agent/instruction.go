package agent

import (
	"context"
	"time"

	"github.com/hupe1980/wikiagent/internal/util"
	"github.com/hupe1980/wikiagent/model"
)

// DefaultInstruction is the system instruction used when none is configured.
// It is rendered with the fields of InstructionContext.State.
const DefaultInstruction = `You are a helpful research assistant. Today is {{.date}}.
{{if .tools}}
You can call these tools:
{{bullets .tool_lines}}

Use the knowledge search for factual questions, the weather tools for current
conditions and forecasts, and the calculator for any arithmetic instead of
computing by hand. Call several tools when a question needs them.
When an answer uses tool output, say which tool produced which fact, for
example "(source: calculator)". If a tool returns an error, explain what
went wrong instead of guessing.
{{else}}
No tools are available right now. Answer from general knowledge and say so.
{{end}}
Keep answers concise.`

// InstructionContext describes the turn an instruction is resolved for.
type InstructionContext struct {
	SessionID string
	Tools     []model.ToolDefinition
	Now       time.Time
}

// State returns the template data exposed to static instructions:
// tools (names), tool_lines ("name: description"), date and session_id.
func (ic InstructionContext) State() map[string]any {
	names := make([]string, len(ic.Tools))
	lines := make([]string, len(ic.Tools))
	for i, d := range ic.Tools {
		names[i] = d.Function.Name
		lines[i] = d.Function.Name + ": " + d.Function.Description
	}
	return map[string]any{
		"tools":      names,
		"tool_lines": lines,
		"date":       ic.Now.Format("2006-01-02"),
		"session_id": ic.SessionID,
	}
}

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(ctx context.Context, ic InstructionContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, ic InstructionContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, ic InstructionContext) (string, error) {
	return f(ctx, ic)
}

// Instruction represents either a static instruction template or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a text/template string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, ic InstructionContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider or rendering
// the template as needed.
func (i Instruction) Resolve(ctx context.Context, ic InstructionContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, ic)
	}
	return util.RenderTemplate(i.text, ic.State())
}
