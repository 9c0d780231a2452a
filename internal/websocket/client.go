package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Matsukatm/callcenter/internal/config"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// CommandAssignCall asks the engine to bind a queued call to an agent
const CommandAssignCall = "assign_call_to_agent"

const commandTimeout = 5 * time.Second

// Client is a middleman between the websocket connection and the hub
type Client struct {
	// Unique client ID
	id string

	// The hub this client belongs to
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	controller Controller
	encoder    Encoder
	config     *config.Config
	logger     zerolog.Logger
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, controller Controller, encoder Encoder, cfg *config.Config, logger zerolog.Logger) *Client {
	clientID := uuid.New().String()
	return &Client{
		id:         clientID,
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		controller: controller,
		encoder:    encoder,
		config:     cfg,
		logger:     logger.With().Str("client_id", clientID).Logger(),
	}
}

// readPump pumps commands from the websocket connection to the engine
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read error")
			}
			break
		}
		c.handleCommand(message)
	}
}

func (c *Client) handleCommand(message []byte) {
	var cmd types.ObserverCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.logger.Debug().Err(err).Msg("ignoring malformed client message")
		return
	}

	switch cmd.Type {
	case CommandAssignCall:
		c.assignCall(cmd.Data)
	default:
		c.logger.Debug().Str("type", cmd.Type).Msg("ignoring unknown client command")
	}
}

// assignCall runs a manual assignment; success is broadcast by the engine,
// failure is answered to this client only
func (c *Client) assignCall(data types.AssignCallData) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	_, err := c.controller.AssignQueued(ctx, data.ChannelID, data.AgentID)
	if err == nil {
		return
	}

	c.logger.Info().
		Err(err).
		Str("channel_id", data.ChannelID).
		Str("agent_id", data.AgentID).
		Msg("manual assignment refused")

	reply, encErr := c.encoder.Encode(types.EventAssignmentFailed, types.AssignmentFailed{
		ChannelID: data.ChannelID,
		AgentID:   data.AgentID,
		Error:     err.Error(),
	})
	if encErr != nil {
		c.logger.Error().Err(encErr).Msg("failed to encode assignment failure")
		return
	}
	if !c.hub.Send(c, reply) {
		c.logger.Warn().Msg("could not deliver assignment failure")
	}
}

// writePump pumps messages from the hub to the websocket connection
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one envelope per frame so clients can parse each message directly
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
