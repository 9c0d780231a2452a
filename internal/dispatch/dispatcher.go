// Package dispatch turns lifecycle milestones into observer notifications.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Matsukatm/callcenter/internal/metrics"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
)

// Publisher is the publish contract used by the state machine and the
// directory sync. Publish never blocks on delivery.
type Publisher interface {
	Publish(eventType types.EventType, data any)
}

// Sink delivers an encoded envelope to one class of observers
type Sink interface {
	Name() string
	Deliver(ctx context.Context, eventType types.EventType, payload []byte) error
}

type outbound struct {
	eventType types.EventType
	payload   []byte
}

// Dispatcher encodes events on the caller's goroutine and delivers them to the
// sinks from a single worker, preserving publish order. When the buffer is
// full the event is dropped and counted.
type Dispatcher struct {
	sinks       []Sink
	queue       chan outbound
	clock       func() time.Time
	sinkTimeout time.Duration
	logger      zerolog.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithClock sets the time source used for server timestamps
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

// WithSinkTimeout bounds each sink delivery
func WithSinkTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.sinkTimeout = timeout }
}

// New creates a dispatcher with the given buffer size and sinks
func New(bufferSize int, logger zerolog.Logger, sinks []Sink, opts ...Option) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	d := &Dispatcher{
		sinks:       sinks,
		queue:       make(chan outbound, bufferSize),
		clock:       time.Now,
		sinkTimeout: 5 * time.Second,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Encode wraps data in a timestamped envelope
func (d *Dispatcher) Encode(eventType types.EventType, data any) ([]byte, error) {
	return json.Marshal(types.NewEnvelope(eventType, data, d.clock()))
}

// Publish queues an event for delivery
func (d *Dispatcher) Publish(eventType types.EventType, data any) {
	payload, err := d.Encode(eventType, data)
	if err != nil {
		d.logger.Error().Err(err).Str("event", string(eventType)).Msg("failed to encode event")
		return
	}

	select {
	case d.queue <- outbound{eventType: eventType, payload: payload}:
	default:
		metrics.Get().RecordEventDropped()
		d.logger.Warn().Str("event", string(eventType)).Msg("dispatch buffer full, dropping event")
	}
}

// Run delivers queued events until the context is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info().Int("sinks", len(d.sinks)).Msg("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("dispatcher stopped")
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg outbound) {
	for _, sink := range d.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
		err := sink.Deliver(sinkCtx, msg.eventType, msg.payload)
		cancel()
		if err != nil {
			d.logger.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("event", string(msg.eventType)).
				Msg("failed to deliver event")
		}
	}
	metrics.Get().RecordEventDispatched()
}
