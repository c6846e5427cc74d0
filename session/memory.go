package session

import (
	"sync"

	"github.com/hupe1980/wikiagent/core"
)

// DefaultHistoryTurns is the Memory limit used when none is configured.
const DefaultHistoryTurns = 10

// Memory is an ordered sequence of conversation turns bounded to the most
// recent Limit turns. Appending beyond the limit evicts the oldest turns.
// It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	limit int
	turns []core.ConversationTurn
}

// NewMemory returns an empty Memory keeping at most limit turns. A
// non-positive limit selects DefaultHistoryTurns.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultHistoryTurns
	}
	return &Memory{limit: limit}
}

// Append adds turns in order, evicting the oldest ones beyond the limit.
func (m *Memory) Append(turns ...core.ConversationTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
	if over := len(m.turns) - m.limit; over > 0 {
		kept := make([]core.ConversationTurn, m.limit)
		copy(kept, m.turns[over:])
		m.turns = kept
	}
}

// Turns returns a copy of the stored turns, oldest first.
func (m *Memory) Turns() []core.ConversationTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.ConversationTurn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len returns the number of stored turns.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Limit returns the maximum number of retained turns.
func (m *Memory) Limit() int { return m.limit }

// Clear drops all turns.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}
