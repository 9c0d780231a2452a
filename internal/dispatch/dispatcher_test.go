package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Matsukatm/callcenter/internal/publisher"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	mu       sync.Mutex
	messages [][]byte
	full     bool
}

func (h *fakeHub) Broadcast(message []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return false
	}
	h.messages = append(h.messages, message)
	return true
}

func (h *fakeHub) received() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.messages))
	copy(out, h.messages)
	return out
}

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestPublishDeliversToAllSinksInOrder(t *testing.T) {
	hub := &fakeHub{}
	broker := publisher.NewMockPublisher()
	d := New(16, zerolog.Nop(), []Sink{NewBroadcastSink(hub), NewBrokerSink(broker, "ccr/")},
		WithClock(func() time.Time { return fixedNow }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Publish(types.EventIncomingCall, types.IncomingCall{SessionID: "s1", ChannelID: "c1"})
	d.Publish(types.EventCallEnded, types.CallEnded{SessionID: "s1", EndReason: types.EndReasonNormal})

	require.Eventually(t, func() bool {
		return len(hub.received()) == 2 && len(broker.Messages()) == 2
	}, time.Second, 5*time.Millisecond)

	var env struct {
		Type            types.EventType `json:"type"`
		Timestamp       string          `json:"timestamp"`
		ServerTimestamp int64           `json:"serverTimestamp"`
		Data            json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(hub.received()[0], &env))
	assert.Equal(t, types.EventIncomingCall, env.Type)
	assert.Equal(t, fixedNow.UnixMilli(), env.ServerTimestamp)
	assert.NotEmpty(t, env.Timestamp)

	require.NoError(t, json.Unmarshal(hub.received()[1], &env))
	assert.Equal(t, types.EventCallEnded, env.Type)

	msgs := broker.Messages()
	assert.Equal(t, "ccr/events/incoming_call", msgs[0].Topic)
	assert.Equal(t, "ccr/events/call_ended", msgs[1].Topic)
}

func TestSinkFailureDoesNotBlockOtherSinks(t *testing.T) {
	hub := &fakeHub{}
	broker := publisher.NewMockPublisher()
	broker.SetError(errors.New("broker down"))
	d := New(16, zerolog.Nop(), []Sink{NewBrokerSink(broker, "ccr"), NewBroadcastSink(hub)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Publish(types.EventAgentStatusUpdated, types.AgentStatusUpdated{AgentID: "a1"})

	require.Eventually(t, func() bool { return len(hub.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, broker.Messages())
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	hub := &fakeHub{}
	d := New(1, zerolog.Nop(), []Sink{NewBroadcastSink(hub)})

	// no worker running: the second publish must not block
	done := make(chan struct{})
	go func() {
		d.Publish(types.EventChannelStateChange, types.ChannelStateChange{ChannelID: "c1"})
		d.Publish(types.EventChannelStateChange, types.ChannelStateChange{ChannelID: "c2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full buffer")
	}
	assert.Len(t, d.queue, 1)
}

func TestBroadcastSinkReportsFullHub(t *testing.T) {
	sink := NewBroadcastSink(&fakeHub{full: true})
	err := sink.Deliver(context.Background(), types.EventCallBridged, []byte("{}"))
	assert.ErrorIs(t, err, ErrBroadcastFull)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Publish(types.EventIncomingCall, "a")
	r.Publish(types.EventCallEnded, "b")
	r.Publish(types.EventIncomingCall, "c")

	assert.Len(t, r.Events(), 3)
	assert.Equal(t, []any{"a", "c"}, r.OfType(types.EventIncomingCall))

	r.Reset()
	assert.Empty(t, r.Events())
}
