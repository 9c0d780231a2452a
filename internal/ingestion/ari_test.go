package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Matsukatm/callcenter/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stasisStart = `{
  "type": "StasisStart",
  "timestamp": "2026-03-02T09:00:00.250+0000",
  "args": [],
  "channel": {
    "id": "1709370000.42",
    "name": "PJSIP/1001-0000002a",
    "state": "Ring",
    "caller": {"name": "Jane", "number": "0712345678"}
  }
}`

func TestTranslateARI(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		wantOK bool
		check  func(t *testing.T, evt signaling.Event)
	}{
		{
			name:   "stasis start",
			data:   stasisStart,
			wantOK: true,
			check: func(t *testing.T, evt signaling.Event) {
				assert.Equal(t, signaling.KindChannelAppeared, evt.Kind)
				assert.Equal(t, "1709370000.42", evt.ChannelID)
				assert.Equal(t, "PJSIP/1001-0000002a", evt.ChannelName)
				assert.Equal(t, "0712345678", evt.CallerNumber)
				assert.Equal(t, "Jane", evt.CallerName)
				assert.False(t, evt.Dialed)
				assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 250000000, time.UTC), evt.Timestamp.UTC())
			},
		},
		{
			name:   "dialed leg",
			data:   `{"type":"StasisStart","args":["dialed"],"channel":{"id":"c2","name":"PJSIP/1001-0000002b"}}`,
			wantOK: true,
			check: func(t *testing.T, evt signaling.Event) {
				assert.True(t, evt.Dialed)
			},
		},
		{
			name:   "state change",
			data:   `{"type":"ChannelStateChange","channel":{"id":"c1","name":"PJSIP/1001-0000002a","state":"Up"}}`,
			wantOK: true,
			check: func(t *testing.T, evt signaling.Event) {
				assert.Equal(t, signaling.KindStateChanged, evt.Kind)
				assert.Equal(t, signaling.StateUp, evt.State)
			},
		},
		{
			name:   "entered bridge",
			data:   `{"type":"ChannelEnteredBridge","bridge":{"id":"b-1"},"channel":{"id":"c1"}}`,
			wantOK: true,
			check: func(t *testing.T, evt signaling.Event) {
				assert.Equal(t, signaling.KindEnteredBridge, evt.Kind)
				assert.Equal(t, "b-1", evt.BridgeID)
			},
		},
		{
			name:   "hangup request",
			data:   `{"type":"ChannelHangupRequest","cause":16,"channel":{"id":"c1","name":"PJSIP/1001-0000002a"}}`,
			wantOK: true,
			check: func(t *testing.T, evt signaling.Event) {
				assert.Equal(t, signaling.KindHangupRequested, evt.Kind)
				assert.Equal(t, signaling.CauseNormalClearing, evt.Cause)
			},
		},
		{
			name:   "stasis end",
			data:   `{"type":"StasisEnd","channel":{"id":"c1"}}`,
			wantOK: true,
			check: func(t *testing.T, evt signaling.Event) {
				assert.Equal(t, signaling.KindChannelTerminated, evt.Kind)
				assert.Empty(t, evt.Cause)
			},
		},
		{
			name:   "channel destroyed carries cause",
			data:   `{"type":"ChannelDestroyed","cause":17,"cause_txt":"User busy","channel":{"id":"c1"}}`,
			wantOK: true,
			check: func(t *testing.T, evt signaling.Event) {
				assert.Equal(t, signaling.KindChannelTerminated, evt.Kind)
				assert.Equal(t, signaling.CauseUserBusy, evt.Cause)
			},
		},
		{
			name: "bridge event without bridge",
			data: `{"type":"ChannelEnteredBridge","channel":{"id":"c1"}}`,
		},
		{
			name: "unrelated event",
			data: `{"type":"ChannelDtmfReceived","digit":"1","channel":{"id":"c1"}}`,
		},
		{
			name: "no channel",
			data: `{"type":"BridgeDestroyed","bridge":{"id":"b-1"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, ok, err := TranslateARI([]byte(tt.data))
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			if tt.check != nil {
				tt.check(t, evt)
				assert.NoError(t, evt.Validate())
			}
		})
	}
}

func TestTranslateARIRejectsGarbage(t *testing.T) {
	_, _, err := TranslateARI([]byte("not json"))
	assert.Error(t, err)
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://pbx:8088", "ws://pbx:8088/ari/events?api_key=ccr%3Asecret&app=ccr"},
		{"https://pbx/ari/", "wss://pbx/ari/events?api_key=ccr%3Asecret&app=ccr"},
		{"ws://pbx:8088/ari", "ws://pbx:8088/ari/events?api_key=ccr%3Asecret&app=ccr"},
	}
	for _, tt := range tests {
		s := NewARISource(ARIConfig{URL: tt.in, Username: "ccr", Password: "secret", App: "ccr"}, zerolog.Nop())
		got, err := s.EventsURL()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	s := NewARISource(ARIConfig{URL: "ftp://pbx"}, zerolog.Nop())
	_, err := s.EventsURL()
	assert.Error(t, err)
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []signaling.Event
}

func (s *sinkRecorder) Submit(_ context.Context, evt signaling.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *sinkRecorder) received() []signaling.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaling.Event(nil), s.events...)
}

func TestARISourceStreamsAndReconnects(t *testing.T) {
	var (
		mu    sync.Mutex
		dials int
		query string
	)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		query = r.URL.RawQuery
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(stasisStart))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ChannelDtmfReceived","channel":{"id":"c1"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"StasisEnd","channel":{"id":"1709370000.42"}}`))
		conn.Close()
	}))
	defer server.Close()

	source := NewARISource(ARIConfig{
		URL:            server.URL,
		Username:       "ccr",
		Password:       "secret",
		App:            "ccr",
		ReconnectDelay: 10 * time.Millisecond,
	}, zerolog.Nop())

	sink := &sinkRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- source.Start(ctx, sink) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 2
	}, 2*time.Second, 5*time.Millisecond, "expected a reconnect after the server closed")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("source did not stop")
	}

	events := sink.received()
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, signaling.KindChannelAppeared, events[0].Kind)
	assert.Equal(t, signaling.KindChannelTerminated, events[1].Kind)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.Contains(query, "app=ccr"))
}
