package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/hupe1980/wikiagent"
	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/internal/telemetry"
	"github.com/hupe1980/wikiagent/logging"
)

type handlers struct {
	agent        *wikiagent.WikiAgent
	index        ChunkCounter
	environment  string
	telemetry    telemetry.Status
	maxBodyBytes int64
	logger       logging.Logger
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Response        string                `json:"response"`
	SessionID       string                `json:"session_id"`
	TurnID          string                `json:"turn_id,omitempty"`
	Partial         bool                  `json:"partial"`
	ToolsUsed       []wikiagent.ToolUse   `json:"tools_used"`
	ToolInvocations []core.ToolInvocation `json:"tool_invocations"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// AskResponse is returned by POST /ask.
type AskResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Environment string `json:"environment"`
	IndexChunks int    `json:"index_chunks"`
}

func (h *handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, status, ok := h.turn(w, r, req.SessionID, req.Message)
	if !ok {
		return
	}

	invocations := resp.Invocations
	if invocations == nil {
		invocations = []core.ToolInvocation{}
	}
	writeJSON(w, status, ChatResponse{
		Response:        resp.Answer,
		SessionID:       resp.SessionID,
		TurnID:          resp.TurnID,
		Partial:         resp.Partial,
		ToolsUsed:       resp.ToolsUsed(),
		ToolInvocations: invocations,
	})
}

func (h *handlers) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, status, ok := h.turn(w, r, req.SessionID, req.Question)
	if !ok {
		return
	}
	writeJSON(w, status, AskResponse{Answer: resp.Answer, SessionID: resp.SessionID})
}

// turn runs Chat and maps its error to a status. When ok is false the error
// response has already been written.
func (h *handlers) turn(w http.ResponseWriter, r *http.Request, sessionID, message string) (*wikiagent.Response, int, bool) {
	resp, err := h.agent.Chat(r.Context(), sessionID, message)
	switch {
	case err == nil:
		return resp, http.StatusOK, true
	case errors.Is(err, wikiagent.ErrEmptyMessage):
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, err.Error())
		return nil, 0, false
	case resp != nil && core.IsUpstreamFailure(err):
		h.logger.Warn("http.chat.upstream_failure", "session", resp.SessionID, "error", err.Error())
		return resp, http.StatusServiceUnavailable, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, codeRequestFailed, "request cancelled before the turn completed")
		return nil, 0, false
	default:
		h.logger.Error("http.chat.failed", "session", sessionID, "error", err.Error())
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal server error")
		return nil, 0, false
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "healthy",
		Sessions:    h.agent.SessionCount(),
		Environment: h.environment,
	}
	if h.index != nil {
		n, err := h.index.Count(r.Context())
		if err != nil {
			h.logger.Warn("http.health.index_count", "error", err.Error())
			resp.Status = "degraded"
		} else {
			resp.IndexChunks = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.agent.DeleteSession(id) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

func (h *handlers) handleObservabilityStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.telemetry)
}

// decode reads a size-limited JSON body. When it returns false the error
// response has already been written.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	if err := decodeJSON(r, target); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, "invalid request body: "+err.Error())
		return false
	}
	return true
}
