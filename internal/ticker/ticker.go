package ticker

import (
	"context"
	"time"

	"github.com/Matsukatm/callcenter/internal/dispatch"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
)

// StatsSource summarizes the engine
type StatsSource interface {
	Stats(connectedObservers int) types.SystemStats
}

// ObserverCounter reports how many observers are connected
type ObserverCounter interface {
	ClientCount() int
}

// Ticker periodically publishes system_stats
type Ticker struct {
	stats     StatsSource
	observers ObserverCounter
	publisher dispatch.Publisher
	interval  time.Duration
	logger    zerolog.Logger
}

// NewTicker creates a new Ticker
func NewTicker(stats StatsSource, observers ObserverCounter, publisher dispatch.Publisher, interval time.Duration, logger zerolog.Logger) *Ticker {
	return &Ticker{
		stats:     stats,
		observers: observers,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With().Str("component", "stats_ticker").Logger(),
	}
}

// Start begins publishing stats until ctx is cancelled
func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("ticker started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("ticker stopped")
			return

		case <-ticker.C:
			t.publish()
		}
	}
}

func (t *Ticker) publish() {
	stats := t.stats.Stats(t.observers.ClientCount())
	t.publisher.Publish(types.EventSystemStats, stats)
	t.logger.Debug().
		Int("total_sessions", stats.TotalSessions).
		Int("active_agents", stats.ActiveAgents).
		Int("queued", stats.Queued).
		Int("clients", stats.ConnectedObservers).
		Msg("published system stats")
}
