package core

import (
	"fmt"
	"sync"
)

// RoundLimiter enforces the maximum number of reasoning rounds in one turn.
type RoundLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewRoundLimiter creates a limiter allowing max rounds.
// If max <= 0, rounds are unlimited.
func NewRoundLimiter(max int) *RoundLimiter {
	return &RoundLimiter{max: max}
}

// Next claims the next round and returns its 1-based number. Once the budget
// is spent it returns an error wrapping ErrRoundLimitExceeded.
func (rl *RoundLimiter) Next() (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.max > 0 && rl.count >= rl.max {
		return rl.count, fmt.Errorf("%w: %d", ErrRoundLimitExceeded, rl.max)
	}

	rl.count++

	return rl.count, nil
}

// Count returns the number of rounds claimed so far.
func (rl *RoundLimiter) Count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.count
}

// Remaining returns how many rounds are left, or -1 when unlimited.
func (rl *RoundLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.max <= 0 {
		return -1
	}

	return rl.max - rl.count
}
