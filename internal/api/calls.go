package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Matsukatm/callcenter/internal/engine"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CallController is the engine surface used by the call endpoints
type CallController interface {
	ActiveCalls() []types.ActiveCall
	AssignQueued(ctx context.Context, channelID, agentID string) (types.CallAssigned, error)
	Reject(ctx context.Context, sessionID string) error
}

// QueueView summarizes the waiting calls
type QueueView interface {
	Snapshot() types.QueueSnapshot
}

type assignCallRequest struct {
	AgentID string `json:"agentId"`
}

// CallsHandler serves live calls and operator call commands
type CallsHandler struct {
	calls  CallController
	queue  QueueView
	logger zerolog.Logger
}

// NewCallsHandler creates a new CallsHandler
func NewCallsHandler(calls CallController, queue QueueView, logger zerolog.Logger) *CallsHandler {
	return &CallsHandler{
		calls:  calls,
		queue:  queue,
		logger: logger.With().Str("component", "calls_handler").Logger(),
	}
}

// GetCalls handles GET /api/calls
func (h *CallsHandler) GetCalls(w http.ResponseWriter, r *http.Request) {
	calls := h.calls.ActiveCalls()
	writeJSON(w, http.StatusOK, map[string]any{
		"calls": calls,
		"total": len(calls),
	})
}

// AssignCall handles POST /api/calls/{channelId}/assign
func (h *CallsHandler) AssignCall(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")

	var req assignCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agentId is required")
		return
	}

	assigned, err := h.calls.AssignQueued(r.Context(), channelID, req.AgentID)
	if err != nil {
		h.logger.Info().Err(err).Str("channel_id", channelID).Str("agent_id", req.AgentID).Msg("manual assignment refused")
		writeError(w, engineStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, assigned)
}

// RejectCall handles POST /api/calls/{sessionId}/reject
func (h *CallsHandler) RejectCall(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	if err := h.calls.Reject(r.Context(), sessionID); err != nil {
		writeError(w, engineStatus(err), err.Error())
		return
	}

	h.logger.Info().Str("session_id", sessionID).Msg("call rejected via API")
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "call rejected",
		"sessionId": sessionID,
	})
}

// GetQueue handles GET /api/queue
func (h *CallsHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Snapshot())
}

func engineStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound), errors.Is(err, engine.ErrUnknownAgent):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotQueued), errors.Is(err, engine.ErrNotRinging),
		errors.Is(err, engine.ErrNotAssigned), errors.Is(err, engine.ErrAtCapacity):
		return http.StatusConflict
	case errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
