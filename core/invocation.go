package core

import "time"

// ToolInvocation records a single tool call made during a turn. It is created
// when the call starts and treated as immutable once appended to a transcript.
// Result and Error are mutually exclusive.
type ToolInvocation struct {
	ID              string         `json:"id"`
	ToolName        string         `json:"tool_name"`
	RawInput        string         `json:"raw_input"`
	NormalizedInput map[string]any `json:"normalized_input,omitempty"`
	Result          any            `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorCode       string         `json:"error_code,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	Duration        time.Duration  `json:"duration"`
}

// Failed reports whether the invocation recorded an error.
func (i ToolInvocation) Failed() bool { return i.Error != "" }

// Clone returns a copy whose NormalizedInput map is not shared with i.
func (i ToolInvocation) Clone() ToolInvocation {
	if i.NormalizedInput != nil {
		in := make(map[string]any, len(i.NormalizedInput))
		for k, v := range i.NormalizedInput {
			in[k] = v
		}
		i.NormalizedInput = in
	}
	return i
}

// CloneInvocations deep copies a transcript.
func CloneInvocations(src []ToolInvocation) []ToolInvocation {
	if len(src) == 0 {
		return nil
	}
	out := make([]ToolInvocation, len(src))
	for idx, inv := range src {
		out[idx] = inv.Clone()
	}
	return out
}
