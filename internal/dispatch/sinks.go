package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/Matsukatm/callcenter/internal/publisher"
	"github.com/Matsukatm/callcenter/internal/types"
)

var ErrBroadcastFull = errors.New("broadcast buffer full")

// Broadcaster fans a message out to connected observers
type Broadcaster interface {
	Broadcast(message []byte) bool
}

// BroadcastSink delivers to a websocket hub
type BroadcastSink struct {
	broadcaster Broadcaster
}

// NewBroadcastSink wraps a hub
func NewBroadcastSink(b Broadcaster) *BroadcastSink {
	return &BroadcastSink{broadcaster: b}
}

func (s *BroadcastSink) Name() string { return "websocket" }

func (s *BroadcastSink) Deliver(_ context.Context, _ types.EventType, payload []byte) error {
	if !s.broadcaster.Broadcast(payload) {
		return ErrBroadcastFull
	}
	return nil
}

// BrokerSink publishes each event to <prefix>/events/<type>
type BrokerSink struct {
	publisher publisher.Publisher
	prefix    string
}

// NewBrokerSink wraps a broker publisher
func NewBrokerSink(p publisher.Publisher, topicPrefix string) *BrokerSink {
	return &BrokerSink{
		publisher: p,
		prefix:    strings.TrimSuffix(topicPrefix, "/"),
	}
}

func (s *BrokerSink) Name() string { return "mqtt" }

// Topic returns the topic an event type is published on
func (s *BrokerSink) Topic(eventType types.EventType) string {
	return s.prefix + "/events/" + string(eventType)
}

func (s *BrokerSink) Deliver(ctx context.Context, eventType types.EventType, payload []byte) error {
	return s.publisher.Publish(ctx, s.Topic(eventType), payload)
}
