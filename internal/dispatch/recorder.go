package dispatch

import (
	"sync"

	"github.com/Matsukatm/callcenter/internal/types"
)

// Recorded is one event captured by a Recorder
type Recorded struct {
	Type types.EventType
	Data any
}

// Recorder is a Publisher that keeps every event in memory. It backs tests
// and any wiring that needs to inspect what would have been sent.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(eventType types.EventType, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Type: eventType, Data: data})
}

// Events returns a copy of everything recorded
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded payloads of one event type
func (r *Recorder) OfType(eventType types.EventType) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e.Data)
		}
	}
	return out
}

// Reset clears recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
