package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Matsukatm/callcenter/internal/directory"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Refresher schedules a directory refresh
type Refresher interface {
	RequestRefresh()
}

type assignExtensionRequest struct {
	Extension string `json:"extension"`
	Reason    string `json:"reason"`
}

// AgentActionsHandler changes agent to extension assignments in the directory
type AgentActionsHandler struct {
	writer    directory.Writer
	dir       *directory.Directory
	refresher Refresher
	logger    zerolog.Logger
}

// NewAgentActionsHandler creates a new AgentActionsHandler
func NewAgentActionsHandler(writer directory.Writer, dir *directory.Directory, refresher Refresher, logger zerolog.Logger) *AgentActionsHandler {
	return &AgentActionsHandler{
		writer:    writer,
		dir:       dir,
		refresher: refresher,
		logger:    logger.With().Str("component", "agent_actions").Logger(),
	}
}

// AssignExtension handles POST /api/agents/{agentId}/extension
func (h *AgentActionsHandler) AssignExtension(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	var req assignExtensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Extension == "" {
		writeError(w, http.StatusBadRequest, "extension is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual_assignment"
	}

	if err := h.writer.AssignExtension(r.Context(), agentID, req.Extension, req.Reason); err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Str("extension", req.Extension).Msg("failed to assign extension")
		writeError(w, directoryStatus(err), err.Error())
		return
	}
	h.refresher.RequestRefresh()

	h.logger.Info().
		Str("agent_id", agentID).
		Str("extension", req.Extension).
		Msg("extension assigned via API")

	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "extension assigned",
		"agentId":   agentID,
		"extension": req.Extension,
	})
}

// ReleaseExtension handles DELETE /api/agents/{agentId}/extension
func (h *AgentActionsHandler) ReleaseExtension(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")

	assignment, ok := h.dir.Snapshot().Assignment(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, directory.ErrUnknownAgent.Error())
		return
	}

	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual_release"
	}

	if err := h.writer.ReleaseAssignment(r.Context(), assignment.ID, reason); err != nil {
		h.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to release extension")
		writeError(w, directoryStatus(err), err.Error())
		return
	}
	h.refresher.RequestRefresh()

	h.logger.Info().
		Str("agent_id", agentID).
		Str("extension", assignment.Extension).
		Msg("extension released via API")

	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "extension released",
		"agentId":   agentID,
		"extension": assignment.Extension,
	})
}

func directoryStatus(err error) int {
	switch {
	case errors.Is(err, directory.ErrUnknownAgent), errors.Is(err, directory.ErrUnknownExtension):
		return http.StatusNotFound
	case errors.Is(err, directory.ErrStatus):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
