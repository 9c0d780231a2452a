package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Matsukatm/callcenter/internal/directory"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
)

// DirectorySyncer refreshes the local directory mirror on demand
type DirectorySyncer interface {
	Refresh(ctx context.Context) error
	Directory() *directory.Directory
}

type directoryView struct {
	Source      string             `json:"source"`
	FetchedAt   time.Time          `json:"fetchedAt"`
	Total       int                `json:"total"`
	Assignments []types.Assignment `json:"assignments"`
}

// AdminHandler exposes directory maintenance endpoints
type AdminHandler struct {
	syncer DirectorySyncer
	logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(syncer DirectorySyncer, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		syncer: syncer,
		logger: logger.With().Str("component", "admin").Logger(),
	}
}

// GetDirectory handles GET /api/directory
func (h *AdminHandler) GetDirectory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view())
}

// RefreshDirectory handles POST /api/directory/refresh
func (h *AdminHandler) RefreshDirectory(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.Refresh(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("on-demand directory refresh failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	view := h.view()
	h.logger.Info().Int("assignments", view.Total).Msg("directory refreshed via API")
	writeJSON(w, http.StatusOK, view)
}

func (h *AdminHandler) view() directoryView {
	snap := h.syncer.Directory().Snapshot()
	return directoryView{
		Source:      snap.Source,
		FetchedAt:   snap.FetchedAt,
		Total:       snap.Len(),
		Assignments: snap.Assignments(),
	}
}
