package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/model"
	"github.com/hupe1980/wikiagent/session"
	"github.com/hupe1980/wikiagent/tool"
)

// DefaultMaxRounds bounds the reasoning rounds of one turn.
const DefaultMaxRounds = 3

// synthesisInstruction is appended to the system instruction for the final
// tool-less call made once the round budget is spent.
const synthesisInstruction = "The tool call budget for this question is used up. " +
	"Answer now using only the tool results above, and say what could not be determined."

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	// MaxRounds bounds the reasoning rounds per turn. Values <= 0 use DefaultMaxRounds.
	MaxRounds int

	// Instruction is the system instruction; defaults to DefaultInstruction.
	Instruction Instruction

	// ParallelTools is the maximum number of tool calls run concurrently within
	// a round. Values <= 1 run calls sequentially. Concurrency only applies
	// when every call of the round targets a stateless tool.
	ParallelTools int

	// ToolTimeout bounds a single tool invocation; zero disables the bound.
	ToolTimeout time.Duration

	// EventSink receives round and invocation trace events.
	EventSink core.EventSink

	// Logger receives loop diagnostics.
	Logger logging.Logger
}

// WithParallelTools enables concurrent execution of up to n stateless calls per round.
func WithParallelTools(n int) func(o *Options) {
	return func(o *Options) { o.ParallelTools = n }
}

// WithMaxRounds sets the reasoning round budget.
func WithMaxRounds(n int) func(o *Options) {
	return func(o *Options) { o.MaxRounds = n }
}

// WithEventSink sets the trace sink.
func WithEventSink(s core.EventSink) func(o *Options) {
	return func(o *Options) { o.EventSink = s }
}

// Result is the outcome of one turn.
type Result struct {
	TurnID      string                `json:"turn_id"`
	Answer      string                `json:"answer"`
	Invocations []core.ToolInvocation `json:"tool_invocations"`
	Rounds      int                   `json:"rounds"`
	Partial     bool                  `json:"partial"`
}

// Agent drives the tool-selecting reasoning loop. It holds no conversation
// state; memory is passed to every Respond call, so one Agent serves many
// sessions concurrently.
type Agent struct {
	llm         model.Model
	registry    *tool.Registry
	instruction Instruction
	maxRounds   int
	sink        core.EventSink
	logger      logging.Logger
	exec        *executor
}

// New creates an Agent reasoning with llm over the tools in registry.
//
// Defaults:
//   - DefaultMaxRounds reasoning rounds
//   - DefaultInstruction
//   - sequential tool execution
//   - 30 second tool timeout
func New(llm model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxRounds:   DefaultMaxRounds,
		Instruction: NewInstructionFromText(DefaultInstruction),
		ToolTimeout: 30 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.EventSink == nil {
		opts.EventSink = core.NoOpSink{}
	}
	if registry == nil {
		registry, _ = tool.NewRegistry()
	}

	logger := logging.Ensure(opts.Logger)

	return &Agent{
		llm:         llm,
		registry:    registry,
		instruction: opts.Instruction,
		maxRounds:   opts.MaxRounds,
		sink:        opts.EventSink,
		logger:      logger,
		exec: &executor{
			registry:    registry,
			logger:      logger,
			maxParallel: opts.ParallelTools,
			toolTimeout: opts.ToolTimeout,
		},
	}
}

// Registry returns the tool registry the agent selects from.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// MaxRounds returns the configured round budget.
func (a *Agent) MaxRounds() int { return a.maxRounds }

// turn is the scratch state of one Respond call.
type turn struct {
	id          string
	sessionID   string
	started     time.Time
	instruction string
	messages    []model.Message
	tools       []model.ToolDefinition
	invocations []core.ToolInvocation
	rounds      int
	logger      logging.Logger
}

func (t *turn) result(answer string, partial bool) *Result {
	return &Result{
		TurnID:      t.id,
		Answer:      answer,
		Invocations: core.CloneInvocations(t.invocations),
		Rounds:      t.rounds,
		Partial:     partial,
	}
}

// Respond answers userMessage in the conversation held by mem.
//
// The returned Result lists every tool invocation in execution order. On a
// terminal upstream failure Respond returns the partial Result, with Answer
// set to a user safe message, and a *TurnError. On cancellation it returns
// the partial Result and ctx.Err(). mem is updated only for completed turns
// and may be nil.
func (a *Agent) Respond(ctx context.Context, userMessage string, mem *session.Memory) (*Result, error) {
	t := &turn{
		id:        core.NewID(),
		sessionID: core.SessionIDFrom(ctx),
		started:   time.Now(),
		tools:     a.registry.Definitions(ctx),
	}
	t.logger = logging.WithSession(a.logger, t.sessionID, t.id)

	instruction, err := a.instruction.Resolve(ctx, InstructionContext{
		SessionID: t.sessionID,
		Tools:     t.tools,
		Now:       t.started,
	})
	if err != nil {
		return t.result("", false), fmt.Errorf("resolve instruction: %w", err)
	}
	t.instruction = instruction
	t.messages = append(historyMessages(mem), model.UserMessage(userMessage))

	t.logger.Info(
		"agent.turn.start",
		"tools", len(t.tools),
		"history", len(t.messages)-1,
	)

	limiter := core.NewRoundLimiter(a.maxRounds)
	for {
		if err := ctx.Err(); err != nil {
			return a.cancelled(ctx, t, err)
		}

		round, err := limiter.Next()
		if err != nil {
			break
		}
		t.rounds = round

		answer, done, err := a.round(ctx, t, round)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return a.cancelled(ctx, t, ctxErr)
			}
			return a.fail(ctx, t, err)
		}
		if done {
			return a.complete(ctx, t, mem, userMessage, answer, false), nil
		}
	}

	t.logger.Warn("agent.round.limit", "rounds", t.rounds, "invocations", len(t.invocations))

	answer, err := a.synthesize(ctx, t)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return a.cancelled(ctx, t, ctxErr)
		}
		t.logger.Warn("agent.synthesis.failed", "error", err.Error())
		answer = summarize(t.invocations, t.rounds)
	}

	return a.complete(ctx, t, mem, userMessage, answer, true), nil
}

// round runs one reasoning step. done is true when the model produced a
// final answer. A returned error ends the turn.
func (a *Agent) round(ctx context.Context, t *turn, round int) (answer string, done bool, err error) {
	start := time.Now()

	ev := core.NewEvent(core.EventRoundStart, t.id)
	ev.SessionID = t.sessionID
	ev.Round = round
	a.sink.Emit(ctx, ev)

	t.logger.Debug("agent.round.start", "round", round, "messages", len(t.messages))

	resp, err := a.llm.Generate(ctx, model.Request{
		Instructions: t.instruction,
		Messages:     t.messages,
		Tools:        t.tools,
	})
	if err != nil {
		a.emitRoundEnd(ctx, t, round, 0, start, err)
		return "", false, &TurnError{TurnID: t.id, Round: round, Stage: StageModel, Err: err}
	}

	if !resp.HasToolCalls() {
		a.emitRoundEnd(ctx, t, round, 0, start, nil)
		return resp.Content, true, nil
	}

	calls := make([]model.ToolCall, len(resp.ToolCalls))
	for i, c := range resp.ToolCalls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d_%d", round, i)
		}
		if c.Type == "" {
			c.Type = "function"
		}
		calls[i] = c
	}
	t.messages = append(t.messages, model.AssistantMessage(resp.Content, calls...))

	t.logger.Debug("agent.round.tool_calls", "round", round, "calls", len(calls))

	var terminal error
	for _, o := range a.exec.run(ctx, calls) {
		t.invocations = append(t.invocations, o.invocation)
		a.sink.Emit(ctx, withSession(core.NewInvocationEvent(t.id, round, o.invocation), t.sessionID))
		t.messages = append(t.messages, model.ToolMessage(o.call.ID, o.call.Function.Name, o.feedback))

		if o.err != nil && terminal == nil && core.IsUpstreamFailure(o.err) {
			terminal = &TurnError{TurnID: t.id, Round: round, Stage: StageTool, Tool: o.invocation.ToolName, Err: o.err}
		}
	}

	a.emitRoundEnd(ctx, t, round, len(calls), start, terminal)

	if terminal != nil {
		return "", false, terminal
	}
	return "", false, ctx.Err()
}

// synthesize asks the model for a final answer with tools disabled.
func (a *Agent) synthesize(ctx context.Context, t *turn) (string, error) {
	resp, err := a.llm.Generate(ctx, model.Request{
		Instructions: t.instruction + "\n\n" + synthesisInstruction,
		Messages:     t.messages,
	})
	if err != nil {
		return "", err
	}
	if resp.HasToolCalls() || strings.TrimSpace(resp.Content) == "" {
		return "", errors.New("synthesis produced no answer")
	}
	return resp.Content, nil
}

func (a *Agent) complete(ctx context.Context, t *turn, mem *session.Memory, userMessage, answer string, partial bool) *Result {
	res := t.result(answer, partial)
	if mem != nil {
		mem.Append(
			core.NewUserTurn(userMessage),
			core.NewAssistantTurn(answer, res.Invocations),
		)
	}

	ev := core.NewEvent(core.EventTurnComplete, t.id)
	ev.SessionID = t.sessionID
	ev.Round = t.rounds
	ev.ToolCalls = len(t.invocations)
	ev.Partial = partial
	ev.Duration = time.Since(t.started)
	a.sink.Emit(ctx, ev)

	logging.Turn(t.logger, t.rounds, len(t.invocations), ev.Duration, partial, nil)
	return res
}

func (a *Agent) fail(ctx context.Context, t *turn, err error) (*Result, error) {
	a.emitFailed(ctx, t, err)
	logging.Turn(t.logger, t.rounds, len(t.invocations), time.Since(t.started), true, err)
	return t.result(SafeAnswer(err), true), err
}

func (a *Agent) cancelled(ctx context.Context, t *turn, err error) (*Result, error) {
	// Sinks still get the failure record after the turn context is done.
	a.emitFailed(context.WithoutCancel(ctx), t, err)
	t.logger.Warn("agent.turn.cancelled", "rounds", t.rounds, "error", err.Error())
	return t.result("", true), err
}

func (a *Agent) emitFailed(ctx context.Context, t *turn, err error) {
	ev := core.NewEvent(core.EventTurnFailed, t.id)
	ev.SessionID = t.sessionID
	ev.Round = t.rounds
	ev.ToolCalls = len(t.invocations)
	ev.Partial = true
	ev.Error = err.Error()
	ev.Duration = time.Since(t.started)
	a.sink.Emit(ctx, ev)
}

func (a *Agent) emitRoundEnd(ctx context.Context, t *turn, round, calls int, start time.Time, err error) {
	ev := core.NewEvent(core.EventRoundEnd, t.id)
	ev.SessionID = t.sessionID
	ev.Round = round
	ev.ToolCalls = calls
	ev.Duration = time.Since(start)
	if err != nil {
		ev.Error = err.Error()
	}
	a.sink.Emit(ctx, ev)
}

func withSession(e core.Event, sessionID string) core.Event {
	e.SessionID = sessionID
	return e
}

// historyMessages converts session memory into provider messages. Past tool
// invocations are not replayed; the assistant answers already reflect them.
// Assistant turns left at the head by eviction are skipped so the replayed
// conversation always opens with a user message.
func historyMessages(mem *session.Memory) []model.Message {
	if mem == nil {
		return nil
	}
	turns := mem.Turns()
	for len(turns) > 0 && turns[0].Role != core.RoleUser {
		turns = turns[1:]
	}
	msgs := make([]model.Message, 0, len(turns)+1)
	for _, t := range turns {
		switch t.Role {
		case core.RoleUser:
			msgs = append(msgs, model.UserMessage(t.Content))
		case core.RoleAssistant:
			msgs = append(msgs, model.AssistantMessage(t.Content))
		}
	}
	return msgs
}

// summarize builds a deterministic answer from the transcript when the model
// could not synthesize one.
func summarize(invocations []core.ToolInvocation, rounds int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I could not reach a final answer within %d reasoning rounds.", rounds)

	var ok, failed []core.ToolInvocation
	for _, inv := range invocations {
		if inv.Failed() {
			failed = append(failed, inv)
		} else {
			ok = append(ok, inv)
		}
	}

	if len(ok) == 0 {
		b.WriteString(" No tool returned a usable result.")
	} else {
		b.WriteString(" Here is what the tools returned:")
		for _, inv := range ok {
			fmt.Fprintf(&b, "\n- %s: %s", inv.ToolName, truncate(tool.Render(inv.Result), 500))
		}
	}
	for _, inv := range failed {
		fmt.Fprintf(&b, "\n- %s failed: %s", inv.ToolName, inv.Error)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
