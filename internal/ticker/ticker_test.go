package ticker

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Matsukatm/callcenter/internal/dispatch"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
)

type fakeStats struct{}

func (fakeStats) Stats(connectedObservers int) types.SystemStats {
	return types.SystemStats{
		TotalSessions:      4,
		ActiveAgents:       2,
		Queued:             1,
		ConnectedObservers: connectedObservers,
		Timestamp:          time.Now(),
	}
}

type fakeObservers int

func (f fakeObservers) ClientCount() int { return int(f) }

func TestNewTicker(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	rec := dispatch.NewRecorder()
	ticker := NewTicker(fakeStats{}, fakeObservers(0), rec, time.Second, logger)

	if ticker == nil {
		t.Fatal("expected ticker to be created")
	}
	if ticker.interval != time.Second {
		t.Errorf("expected interval 1s, got %v", ticker.interval)
	}
}

func TestTickerPublishesStats(t *testing.T) {
	rec := dispatch.NewRecorder()
	ticker := NewTicker(fakeStats{}, fakeObservers(3), rec, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	done := make(chan bool)
	go func() {
		ticker.Start(ctx)
		done <- true
	}()
	<-done

	published := rec.OfType(types.EventSystemStats)
	if len(published) < 2 {
		t.Fatalf("expected several stats messages, got %d", len(published))
	}
	stats := published[0].(types.SystemStats)
	if stats.ConnectedObservers != 3 {
		t.Errorf("expected 3 observers, got %d", stats.ConnectedObservers)
	}
	if stats.TotalSessions != 4 || stats.Queued != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestTickerStopsOnContextCancel(t *testing.T) {
	ticker := NewTicker(fakeStats{}, fakeObservers(0), dispatch.NewRecorder(), 100*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool)
	go func() {
		ticker.Start(ctx)
		done <- true
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("ticker did not stop within timeout after context cancel")
	}
}
