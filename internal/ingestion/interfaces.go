// Package ingestion adapts signaling transports to the engine's event model.
package ingestion

import (
	"context"

	"github.com/Matsukatm/callcenter/internal/signaling"
)

// EventSink accepts normalized signaling events in arrival order
type EventSink interface {
	Submit(ctx context.Context, evt signaling.Event) error
}

// EventSource represents a source of signaling events (ARI, HTTP, etc.)
type EventSource interface {
	// Start receives events and forwards them to the sink until ctx is cancelled
	Start(ctx context.Context, sink EventSink) error

	// Name identifies the source in logs
	Name() string
}
