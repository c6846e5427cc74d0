package testutil

import (
	"strconv"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/session"
)

// MemoryBuilder helps construct pre-populated session memory for tests.
// Example:
//
//	mem := NewMemoryBuilder(10).User("hi").Assistant("hello").Build()
type MemoryBuilder struct {
	limit int
	turns []core.ConversationTurn
}

// NewMemoryBuilder creates a builder for a memory bounded to limit turns.
func NewMemoryBuilder(limit int) *MemoryBuilder {
	return &MemoryBuilder{limit: limit}
}

// User appends a user turn (chainable).
func (b *MemoryBuilder) User(content string) *MemoryBuilder {
	b.turns = append(b.turns, core.NewUserTurn(content))
	return b
}

// Assistant appends an assistant turn with optional invocations (chainable).
func (b *MemoryBuilder) Assistant(content string, invocations ...core.ToolInvocation) *MemoryBuilder {
	b.turns = append(b.turns, core.NewAssistantTurn(content, invocations))
	return b
}

// Exchanges appends n user/assistant pairs numbered from 1 (chainable).
func (b *MemoryBuilder) Exchanges(n int) *MemoryBuilder {
	for i := 1; i <= n; i++ {
		b.User("question " + strconv.Itoa(i)).Assistant("answer " + strconv.Itoa(i))
	}
	return b
}

// Build returns the memory holding the appended turns.
func (b *MemoryBuilder) Build() *session.Memory {
	m := session.NewMemory(b.limit)
	m.Append(b.turns...)
	return m
}
