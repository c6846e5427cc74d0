package agent

import (
	"errors"
	"fmt"

	"github.com/hupe1980/wikiagent/core"
)

// Messages returned as Result.Answer when a turn ends on an upstream failure.
const (
	UnavailableAnswer = "Sorry, I could not complete your request because an external service is temporarily unavailable. Please try again in a moment."
	RateLimitedAnswer = "Sorry, an external service is receiving too many requests right now. Please wait a moment and try again."
)

// Stages at which a turn can fail.
const (
	StageModel = "model"
	StageTool  = "tool"
)

// TurnError reports a turn that ended on a terminal upstream failure.
// The partial Result is returned alongside it.
type TurnError struct {
	TurnID string
	Round  int
	Stage  string
	Tool   string // set when Stage is StageTool
	Err    error
}

func (e *TurnError) Error() string {
	if e.Stage == StageTool {
		return fmt.Sprintf("turn %s failed in round %d: tool %s: %v", e.TurnID, e.Round, e.Tool, e.Err)
	}
	return fmt.Sprintf("turn %s failed in round %d: %s: %v", e.TurnID, e.Round, e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// SafeAnswer returns the user facing message for err.
func SafeAnswer(err error) string {
	if errors.Is(err, core.ErrRateLimited) {
		return RateLimitedAnswer
	}
	return UnavailableAnswer
}
