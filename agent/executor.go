package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/model"
	"github.com/hupe1980/wikiagent/tool"
)

// outcome is the executed form of one model tool call.
type outcome struct {
	call       model.ToolCall
	invocation core.ToolInvocation
	feedback   string // text returned to the model
	err        error  // nil on success
}

// executor resolves and runs the tool calls of one round. Implementations
// must:
//   - return outcomes in request order
//   - never panic (recover internally and record an error)
//   - stop early once the context is cancelled or a call fails upstream
type executor struct {
	registry    *tool.Registry
	logger      logging.Logger
	maxParallel int
	toolTimeout time.Duration
}

// run executes calls and returns one outcome per executed call. The returned
// slice is shorter than calls only when execution stopped early.
func (e *executor) run(ctx context.Context, calls []model.ToolCall) []outcome {
	if len(calls) == 0 {
		return nil
	}

	cmds := make([]tool.Command, len(calls))
	resolveErrs := make([]error, len(calls))
	parallel := e.maxParallel > 1 && len(calls) > 1
	for i, call := range calls {
		cmds[i], resolveErrs[i] = e.registry.Resolve(call.Function.Name, call.Function.Arguments)
		if resolveErrs[i] != nil || !cmds[i].Stateless() {
			parallel = false
		}
	}

	if parallel {
		return e.runParallel(ctx, calls, cmds)
	}

	out := make([]outcome, 0, len(calls))
	for i, call := range calls {
		if ctx.Err() != nil {
			break
		}
		var o outcome
		if resolveErrs[i] != nil {
			o = e.rejected(call, resolveErrs[i])
		} else {
			o = e.execute(ctx, call, cmds[i])
		}
		out = append(out, o)
		if o.err != nil && core.IsUpstreamFailure(o.err) {
			break
		}
	}
	return out
}

func (e *executor) runParallel(ctx context.Context, calls []model.ToolCall, cmds []tool.Command) []outcome {
	n := len(calls)
	maxPar := e.maxParallel
	if maxPar > n {
		maxPar = n
	}

	results := make([]outcome, n)
	done := make([]bool, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			results[idx] = e.execute(ctx, calls[idx], cmds[idx])
			done[idx] = true
		}(i)
	}
	wg.Wait()

	out := make([]outcome, 0, n)
	for i := range results {
		if done[i] {
			out = append(out, results[i])
		}
	}

	e.logger.Debug(
		"tool.batch.complete",
		"count", n,
		"executed", len(out),
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return out
}

// rejected records a call that never reached its tool.
func (e *executor) rejected(call model.ToolCall, err error) outcome {
	te := tool.AsToolError(call.Function.Name, err)
	if te.Code == tool.CodeUnknownTool {
		e.logger.Warn("tool.call.unknown", "tool", call.Function.Name, "call_id", call.ID)
	} else {
		e.logger.Warn("tool.call.rejected", "tool", call.Function.Name, "call_id", call.ID, "code", te.Code, "error", te.Message)
	}
	return outcome{
		call: call,
		invocation: core.ToolInvocation{
			ID:        core.NewID(),
			ToolName:  call.Function.Name,
			RawInput:  call.Function.Arguments,
			Error:     te.Message,
			ErrorCode: te.Code,
			StartedAt: time.Now().UTC(),
		},
		feedback: errorFeedback(te),
		err:      te,
	}
}

func (e *executor) execute(ctx context.Context, call model.ToolCall, cmd tool.Command) outcome {
	inv := core.ToolInvocation{
		ID:              core.NewID(),
		ToolName:        cmd.Name(),
		RawInput:        cmd.RawInput(),
		NormalizedInput: cmd.Args(),
		StartedAt:       time.Now().UTC(),
	}

	e.logger.Info("tool.call.start", "tool", inv.ToolName, "call_id", call.ID, "input", inv.RawInput)

	callCtx := ctx
	if e.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	var (
		result any
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(inv.ToolName, r)
				e.logger.Error("tool.call.panic", "tool", inv.ToolName, "recover", r)
			}
		}()
		result, err = cmd.Execute(callCtx)
	}()
	inv.Duration = time.Since(start)

	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: tool %s timed out after %s", core.ErrProviderUnavailable, inv.ToolName, e.toolTimeout)
	}

	if err != nil {
		te := tool.AsToolError(inv.ToolName, err)
		inv.Error = te.Message
		inv.ErrorCode = te.Code
		logging.ToolInvocation(e.logger, inv, "call_id", call.ID)
		return outcome{call: call, invocation: inv, feedback: errorFeedback(te), err: te}
	}

	inv.Result = result
	logging.ToolInvocation(e.logger, inv, "call_id", call.ID)
	return outcome{call: call, invocation: inv, feedback: tool.Render(result)}
}

func errorFeedback(te *tool.ToolError) string {
	return fmt.Sprintf("Error [%s]: %s", te.Code, te.Message)
}

// panicError converts a recovered panic value to an error.
func panicError(name string, r any) error {
	return &tool.ToolError{
		Tool:    name,
		Message: fmt.Sprintf("tool panicked: %v", r),
		Code:    tool.CodeExecution,
		Details: string(debug.Stack()),
	}
}
