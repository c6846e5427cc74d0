// Package core provides the shared domain types used across wikiagent:
//
//   - ToolInvocation (one recorded tool call inside a turn transcript)
//   - ConversationTurn (one entry of bounded session memory)
//   - Event and EventSink (round and invocation trace records)
//   - RoundLimiter (the reasoning round budget of a single turn)
//   - sentinel errors shared by the registry, providers and the agent loop
//
// The package has no knowledge of concrete tools, providers or storage so that
// every other package can depend on it without cycles.
package core
