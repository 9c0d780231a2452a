package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ARIConfig locates the Asterisk REST Interface event stream
type ARIConfig struct {
	URL            string
	Username       string
	Password       string
	App            string
	ReconnectDelay time.Duration
}

// ARISource consumes the ARI websocket and forwards channel events
type ARISource struct {
	cfg    ARIConfig
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewARISource creates an ARI event source
func NewARISource(cfg ARIConfig, logger zerolog.Logger) *ARISource {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &ARISource{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "ari").Logger(),
	}
}

func (s *ARISource) Name() string { return "ari" }

// EventsURL builds ws(s)://host/ari/events?app=<app>&api_key=<user>:<pass>
func (s *ARISource) EventsURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parsing ARI url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported ARI url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(u.Path, "/ari") {
		u.Path += "/ari"
	}
	u.Path += "/events"

	q := url.Values{}
	q.Set("app", s.cfg.App)
	q.Set("api_key", s.cfg.Username+":"+s.cfg.Password)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Start reads events until ctx is cancelled, reconnecting after a fixed delay
func (s *ARISource) Start(ctx context.Context, sink EventSink) error {
	endpoint, err := s.EventsURL()
	if err != nil {
		return err
	}

	for {
		err := s.consume(ctx, endpoint, sink)
		if ctx.Err() != nil {
			s.logger.Info().Msg("ari source stopped")
			return nil
		}
		s.logger.Warn().
			Err(err).
			Dur("retry_in", s.cfg.ReconnectDelay).
			Msg("ari connection lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *ARISource) consume(ctx context.Context, endpoint string, sink EventSink) error {
	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing ARI: %w", err)
	}
	defer conn.Close()

	s.logger.Info().Str("app", s.cfg.App).Msg("connected to ARI")

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		evt, ok, err := TranslateARI(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable ari message")
			continue
		}
		if !ok {
			continue
		}

		if err := sink.Submit(ctx, evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.logger.Warn().
				Err(err).
				Str("kind", string(evt.Kind)).
				Str("channel_id", evt.ChannelID).
				Msg("signaling event rejected")
		}
	}
}
