// Package agent implements the tool-selecting conversational loop.
//
// An Agent combines a reasoning model (model.Model) with a tool registry
// (tool.Registry). For every user turn it:
//
//  1. Seeds a scratch context with the system instruction, the bounded
//     session history and the new message
//  2. Runs up to MaxRounds reasoning rounds; each round either yields the
//     final answer or a batch of tool calls that are resolved into validated
//     commands, executed, recorded as core.ToolInvocation values and fed back
//  3. Falls back to a tool-less synthesis call, then to a deterministic
//     summary, when the round budget is spent
//
// Validation errors and unknown tools are fed back to the model and the turn
// continues. Upstream failures (core.ErrProviderUnavailable,
// core.ErrRateLimited) end the turn with a *TurnError and a user safe answer.
//
// The Agent holds no conversation state. Session memory is passed into each
// Respond call, so one Agent serves any number of sessions concurrently.
package agent
