// Package api exposes the engine and directory over REST.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
)

// AgentView lists agents with their live capacity
type AgentView interface {
	Agents() []types.AgentCapacity
	AvailableAgents() []types.AgentCapacity
}

type agentList struct {
	Agents []types.AgentCapacity `json:"agents"`
	Total  int                   `json:"total"`
}

// RosterHandler serves the agent roster
type RosterHandler struct {
	agents AgentView
	logger zerolog.Logger
}

// NewRosterHandler creates a new RosterHandler
func NewRosterHandler(agents AgentView, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		agents: agents,
		logger: logger.With().Str("component", "roster").Logger(),
	}
}

// GetAgents handles GET /api/agents
func (h *RosterHandler) GetAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.agents.Agents()
	writeJSON(w, http.StatusOK, agentList{Agents: agents, Total: len(agents)})
}

// GetAvailable handles GET /api/agents/available
func (h *RosterHandler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	agents := h.agents.AvailableAgents()
	if agents == nil {
		agents = []types.AgentCapacity{}
	}
	writeJSON(w, http.StatusOK, agentList{Agents: agents, Total: len(agents)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
