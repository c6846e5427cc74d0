// Package wikiagent provides a high-level façade over the agent loop and the
// session store. Most applications interact with this package by:
//  1. Building a tool registry (knowledge search, weather, calculator)
//  2. Creating a WikiAgent via New() with a reasoning model
//  3. Calling Chat with a session id for every user message
//
// The façade delegates reasoning to agent.Agent while keeping per-session
// memory, turn serialization and concurrency limits in one place.
package wikiagent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hupe1980/wikiagent/agent"
	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/model"
	"github.com/hupe1980/wikiagent/session"
	"github.com/hupe1980/wikiagent/tool"
)

// ErrEmptyMessage is returned by Chat for a blank message.
var ErrEmptyMessage = errors.New("message must not be empty")

// maxToolInputDisplay bounds ToolUse.Input.
const maxToolInputDisplay = 100

// Options configures the WikiAgent instance.
type Options struct {
	// HistoryTurns bounds each session's memory.
	HistoryTurns int

	// MaxConcurrentTurns limits the number of turns that can execute
	// simultaneously across all sessions. Set to 0 for unlimited.
	MaxConcurrentTurns int

	// AgentOptions are passed to agent.New.
	AgentOptions []func(o *agent.Options)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// WikiAgent is the high-level façade aggregating the agent loop and sessions.
type WikiAgent struct {
	agent    *agent.Agent
	sessions *session.Store
	slots    chan struct{}
	logger   logging.Logger
}

// New creates a WikiAgent reasoning with llm over registry.
func New(llm model.Model, registry *tool.Registry, optFns ...func(o *Options)) *WikiAgent {
	opts := Options{
		HistoryTurns:       session.DefaultHistoryTurns,
		MaxConcurrentTurns: 10,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.Ensure(opts.Logger)
	agentOpts := append([]func(o *agent.Options){func(o *agent.Options) { o.Logger = logger }}, opts.AgentOptions...)

	w := &WikiAgent{
		agent:    agent.New(llm, registry, agentOpts...),
		sessions: session.NewStore(opts.HistoryTurns),
		logger:   logger,
	}
	if opts.MaxConcurrentTurns > 0 {
		w.slots = make(chan struct{}, opts.MaxConcurrentTurns)
	}
	return w
}

// ToolUse is the short display form of an invocation.
type ToolUse struct {
	Name  string `json:"name"`
	Input string `json:"input"`
}

// Response is the outcome of one Chat call.
type Response struct {
	SessionID   string                `json:"session_id"`
	TurnID      string                `json:"turn_id"`
	Answer      string                `json:"response"`
	Partial     bool                  `json:"partial"`
	Rounds      int                   `json:"rounds"`
	Invocations []core.ToolInvocation `json:"tool_invocations"`
}

// ToolsUsed lists the invocations with their raw input truncated for display.
func (r *Response) ToolsUsed() []ToolUse {
	out := make([]ToolUse, len(r.Invocations))
	for i, inv := range r.Invocations {
		in := []rune(inv.RawInput)
		input := inv.RawInput
		if len(in) > maxToolInputDisplay {
			input = string(in[:maxToolInputDisplay]) + "..."
		}
		out[i] = ToolUse{Name: inv.ToolName, Input: input}
	}
	return out
}

// Agent returns the underlying agent loop.
func (w *WikiAgent) Agent() *agent.Agent { return w.agent }

// Chat runs one turn in the session identified by sessionID, creating the
// session on first use. An empty sessionID starts a new session; its id is
// returned in the Response. Turns of one session are serialized.
//
// When the turn fails upstream, Chat returns a non-nil Response carrying the
// user safe answer together with the error.
func (w *WikiAgent) Chat(ctx context.Context, sessionID, message string) (*Response, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = core.NewID()
	}

	sess, created := w.sessions.GetOrCreate(sessionID)
	if created {
		w.logger.Info("session.created", "session", sessionID)
	}

	if err := sess.Lock(ctx); err != nil {
		return nil, err
	}
	defer sess.Unlock()

	// the slot is taken only once the session is ours, so turns queued on a
	// busy session never hold capacity other sessions need
	if w.slots != nil {
		select {
		case w.slots <- struct{}{}:
			defer func() { <-w.slots }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	res, err := w.agent.Respond(core.WithSessionID(ctx, sessionID), message, sess.Memory)
	if res == nil {
		return nil, err
	}
	return &Response{
		SessionID:   sessionID,
		TurnID:      res.TurnID,
		Answer:      res.Answer,
		Partial:     res.Partial,
		Rounds:      res.Rounds,
		Invocations: res.Invocations,
	}, err
}

// History returns a copy of the session's memory.
func (w *WikiAgent) History(sessionID string) ([]core.ConversationTurn, bool) {
	sess, ok := w.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	return sess.Memory.Turns(), true
}

// DeleteSession drops a session and reports whether it existed.
func (w *WikiAgent) DeleteSession(sessionID string) bool {
	ok := w.sessions.Delete(sessionID)
	if ok {
		w.logger.Info("session.deleted", "session", sessionID)
	}
	return ok
}

// SessionCount returns the number of live sessions.
func (w *WikiAgent) SessionCount() int { return w.sessions.Len() }

// PruneSessions removes sessions idle for longer than maxIdle.
func (w *WikiAgent) PruneSessions(maxIdle time.Duration) int {
	n := w.sessions.PruneIdle(maxIdle)
	if n > 0 {
		w.logger.Info("session.pruned", "count", n, "max_idle", maxIdle.String())
	}
	return n
}

// RunJanitor prunes idle sessions every interval until ctx is done.
func (w *WikiAgent) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PruneSessions(maxIdle)
		}
	}
}
