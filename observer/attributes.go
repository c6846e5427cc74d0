package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for agent spans and metrics.
var (
	AttrTurnID    = attribute.Key("agent.turn.id")
	AttrSessionID = attribute.Key("agent.session.id")
	AttrRound     = attribute.Key("agent.round")
	AttrToolCalls = attribute.Key("agent.tool_calls")
	AttrPartial   = attribute.Key("agent.partial")
	AttrStatus    = attribute.Key("status")

	AttrToolName       = attribute.Key("tool.name")
	AttrToolInvocation = attribute.Key("tool.invocation.id")
	AttrToolInput      = attribute.Key("tool.input")
	AttrToolErrorCode  = attribute.Key("tool.error_code")
)
