// Package event accepts normalized signaling events over HTTP.
package event

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Matsukatm/callcenter/internal/ingestion"
	"github.com/Matsukatm/callcenter/internal/signaling"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxEventBytes = 64 << 10

// Receiver handles signaling events posted by sources other than ARI
type Receiver struct {
	sink           ingestion.EventSink
	logger         zerolog.Logger
	eventsReceived int64
	eventsRejected int64
	lastReceived   time.Time
	mu             sync.RWMutex
}

// NewReceiver creates a new event receiver
func NewReceiver(sink ingestion.EventSink, logger zerolog.Logger) *Receiver {
	return &Receiver{
		sink:   sink,
		logger: logger.With().Str("component", "signal_receiver").Logger(),
	}
}

type acceptedResponse struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
}

// HandleEvent decodes one event and submits it to the engine
func (r *Receiver) HandleEvent(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var evt signaling.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxEventBytes)).Decode(&evt); err != nil {
		r.logger.Error().Err(err).Msg("failed to decode event")
		atomic.AddInt64(&r.eventsRejected, 1)
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	if err := r.sink.Submit(req.Context(), evt); err != nil {
		atomic.AddInt64(&r.eventsRejected, 1)
		if errors.Is(err, signaling.ErrInvalidEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.logger.Warn().Err(err).Str("channel_id", evt.ChannelID).Msg("failed to submit event")
		http.Error(w, "event not accepted", http.StatusServiceUnavailable)
		return
	}

	count := atomic.AddInt64(&r.eventsReceived, 1)
	r.mu.Lock()
	r.lastReceived = time.Now()
	r.mu.Unlock()

	// Log periodically
	if count%1000 == 0 {
		r.logger.Info().Int64("total_received", count).Msg("signaling events received")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(acceptedResponse{ID: uuid.New().String(), Accepted: true})
}

// GetStats returns receiver statistics
func (r *Receiver) GetStats(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	lastReceived := r.lastReceived
	r.mu.RUnlock()

	stats := map[string]interface{}{
		"events_received": atomic.LoadInt64(&r.eventsReceived),
		"events_rejected": atomic.LoadInt64(&r.eventsRejected),
		"last_received":   lastReceived,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
