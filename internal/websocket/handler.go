package websocket

import (
	"context"
	"net/http"

	"github.com/Matsukatm/callcenter/internal/config"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Controller is the engine surface observers can reach
type Controller interface {
	SystemState() types.SystemState
	AssignQueued(ctx context.Context, channelID, agentID string) (types.CallAssigned, error)
}

// Encoder wraps a payload in the observer envelope
type Encoder interface {
	Encode(eventType types.EventType, data any) ([]byte, error)
}

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub        *Hub
	controller Controller
	encoder    Encoder
	config     *config.Config
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, controller Controller, encoder Encoder, cfg *config.Config, logger zerolog.Logger) *Handler {
	h := &Handler{
		hub:        hub,
		controller: controller,
		encoder:    encoder,
		config:     cfg,
		logger:     logger.With().Str("component", "ws_handler").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.logger.Warn().Str("origin", origin).Msg("rejected websocket origin")
	return false
}

// ServeHTTP upgrades the connection, registers the client for broadcasts and
// then sends it the current system state
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, h.controller, h.encoder, h.config, h.logger)
	if !h.hub.Register(client) {
		h.logger.Warn().Msg("hub stopped, refusing connection")
		conn.Close()
		return
	}

	// registered first so no transition between snapshot and broadcast is lost
	snapshot, err := h.encoder.Encode(types.EventSystemState, h.controller.SystemState())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode system state")
	} else if !h.hub.Send(client, snapshot) {
		h.logger.Warn().Str("client_id", client.id).Msg("failed to queue system state")
	}

	client.Start()
}
