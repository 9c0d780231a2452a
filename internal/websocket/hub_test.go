package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Matsukatm/callcenter/internal/config"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestNewHub(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	hub := NewHub(logger)

	if hub == nil {
		t.Fatal("expected hub to be created")
	}
	if hub.clients == nil {
		t.Error("expected clients map to be initialized")
	}
	if hub.broadcast == nil {
		t.Error("expected broadcast channel to be initialized")
	}
	if hub.register == nil || hub.unregister == nil {
		t.Error("expected register channels to be initialized")
	}
}

func TestHubClientCount(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	hub.mu.Lock()
	hub.clients[&Client{id: "test1"}] = true
	hub.clients[&Client{id: "test2"}] = true
	hub.mu.Unlock()

	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestHubBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	// no Run loop: the buffer fills and further broadcasts are refused
	for i := 0; i < cap(hub.broadcast); i++ {
		if !hub.Broadcast([]byte("msg")) {
			t.Fatalf("broadcast %d refused before buffer was full", i)
		}
	}
	if hub.Broadcast([]byte("overflow")) {
		t.Error("expected broadcast to report a full buffer")
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &Client{id: "test-client", hub: hub, send: make(chan []byte, 1)}

	if !hub.Register(client) {
		t.Fatal("expected register to succeed on a running hub")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after register, got %d", hub.ClientCount())
	}

	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("expected send channel to be closed")
	}
}

func TestHubBroadcastToMultipleClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client1 := &Client{id: "client1", hub: hub, send: make(chan []byte, 10)}
	client2 := &Client{id: "client2", hub: hub, send: make(chan []byte, 10)}
	hub.Register(client1)
	hub.Register(client2)

	message := []byte("test broadcast")
	hub.Broadcast(message)

	for _, c := range []*Client{client1, client2} {
		select {
		case msg := <-c.send:
			if string(msg) != string(message) {
				t.Errorf("%s expected %s, got %s", c.id, message, msg)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("%s did not receive message", c.id)
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	slow := &Client{id: "slow", hub: hub, send: make(chan []byte, 1)}
	hub.Register(slow)

	hub.Broadcast([]byte("one"))
	hub.Broadcast([]byte("two"))
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected slow client to be dropped, got %d clients", hub.ClientCount())
	}
}

func TestHubStoppedNeverBlocks(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := &Client{id: "late", hub: hub, send: make(chan []byte, 1)}
	hub.Register(client)
	cancel()
	<-stopped

	finished := make(chan bool)
	go func() {
		hub.Unregister(client)
		finished <- hub.Register(&Client{id: "after-stop", hub: hub, send: make(chan []byte, 1)})
	}()

	select {
	case ok := <-finished:
		if ok {
			t.Error("expected register to fail on a stopped hub")
		}
	case <-time.After(time.Second):
		t.Fatal("unregister or register blocked after the hub stopped")
	}
	if _, ok := <-client.send; ok {
		t.Error("expected send channel to be closed when the hub stopped")
	}
}

func TestHubSendOnlyToRegistered(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{id: "c", hub: hub, send: make(chan []byte, 1)}

	if hub.Send(client, []byte("x")) {
		t.Error("expected send to unregistered client to fail")
	}

	hub.mu.Lock()
	hub.clients[client] = true
	hub.mu.Unlock()

	if !hub.Send(client, []byte("x")) {
		t.Error("expected send to registered client to succeed")
	}
}

type fakeController struct {
	mu       sync.Mutex
	assigned []types.AssignCallData
	err      error
	onState  func()
}

func (f *fakeController) SystemState() types.SystemState {
	if f.onState != nil {
		f.onState()
	}
	return types.SystemState{
		ExtensionStates: map[string]types.AgentStatus{"1001": types.AgentOnCall},
		Timestamp:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeController) AssignQueued(_ context.Context, channelID, agentID string) (types.CallAssigned, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = append(f.assigned, types.AssignCallData{ChannelID: channelID, AgentID: agentID})
	if f.err != nil {
		return types.CallAssigned{}, f.err
	}
	return types.CallAssigned{ChannelID: channelID, AgentID: agentID}, nil
}

type envelopeEncoder struct{}

func (envelopeEncoder) Encode(eventType types.EventType, data any) ([]byte, error) {
	return json.Marshal(types.NewEnvelope(eventType, data, time.Now()))
}

func testConfig() *config.Config {
	return &config.Config{
		AllowedOrigins: []string{"http://dashboard.local"},
		PongWait:       time.Second,
		PingPeriod:     900 * time.Millisecond,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("invalid envelope %s: %v", data, err)
	}
	return env
}

func TestHandlerSendsSnapshotAndAnswersFailedAssignment(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	controller := &fakeController{err: errors.New("agent is at capacity")}
	server := httptest.NewServer(NewHandler(hub, controller, envelopeEncoder{}, testConfig(), zerolog.Nop()))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	env := readEnvelope(t, conn)
	if env["type"] != string(types.EventSystemState) {
		t.Fatalf("expected system_state first, got %v", env["type"])
	}

	cmd := `{"type":"assign_call_to_agent","data":{"channelId":"ch9","agentId":"a1"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	env = readEnvelope(t, conn)
	if env["type"] != string(types.EventAssignmentFailed) {
		t.Fatalf("expected assignment_failed, got %v", env["type"])
	}
	data := env["data"].(map[string]any)
	if data["channelId"] != "ch9" || data["error"] != "agent is at capacity" {
		t.Errorf("unexpected failure payload: %v", data)
	}

	controller.mu.Lock()
	defer controller.mu.Unlock()
	if len(controller.assigned) != 1 || controller.assigned[0].AgentID != "a1" {
		t.Errorf("unexpected assignment calls: %+v", controller.assigned)
	}
}

func TestHandlerReceivesBroadcasts(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(NewHandler(hub, &fakeController{}, envelopeEncoder{}, testConfig(), zerolog.Nop()))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	readEnvelope(t, conn)

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	payload, _ := envelopeEncoder{}.Encode(types.EventCallEnded, types.CallEnded{SessionID: "s1"})
	hub.Broadcast(payload)

	env := readEnvelope(t, conn)
	if env["type"] != string(types.EventCallEnded) {
		t.Errorf("expected call_ended, got %v", env["type"])
	}
}

func TestHandlerKeepsTransitionsDuringSnapshot(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// a call ends while the snapshot is being built
	ended, _ := envelopeEncoder{}.Encode(types.EventCallEnded, types.CallEnded{SessionID: "s1"})
	controller := &fakeController{onState: func() { hub.Broadcast(ended) }}

	server := httptest.NewServer(NewHandler(hub, controller, envelopeEncoder{}, testConfig(), zerolog.Nop()))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	seen := map[any]bool{}
	for i := 0; i < 2; i++ {
		seen[readEnvelope(t, conn)["type"]] = true
	}
	if !seen[string(types.EventSystemState)] || !seen[string(types.EventCallEnded)] {
		t.Errorf("expected both system_state and call_ended, got %v", seen)
	}
}

func TestHandlerRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server := httptest.NewServer(NewHandler(hub, &fakeController{}, envelopeEncoder{}, testConfig(), zerolog.Nop()))
	defer server.Close()

	header := map[string][]string{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Errorf("expected 403, got %+v", resp)
	}
}
