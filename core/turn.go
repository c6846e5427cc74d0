package core

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the agent loop.
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one entry of session memory. Assistant turns carry the
// tool invocations that produced them, in execution order.
type ConversationTurn struct {
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// NewUserTurn creates a user turn stamped with the current time.
func NewUserTurn(content string) ConversationTurn {
	return ConversationTurn{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewAssistantTurn creates an assistant turn holding a copy of invocations.
func NewAssistantTurn(content string, invocations []ToolInvocation) ConversationTurn {
	return ConversationTurn{
		Role:            RoleAssistant,
		Content:         content,
		ToolInvocations: CloneInvocations(invocations),
		Timestamp:       time.Now().UTC(),
	}
}
