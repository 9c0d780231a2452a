package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Matsukatm/callcenter/internal/api"
	"github.com/Matsukatm/callcenter/internal/capacity"
	"github.com/Matsukatm/callcenter/internal/config"
	"github.com/Matsukatm/callcenter/internal/directory"
	"github.com/Matsukatm/callcenter/internal/dispatch"
	"github.com/Matsukatm/callcenter/internal/endreason"
	"github.com/Matsukatm/callcenter/internal/engine"
	"github.com/Matsukatm/callcenter/internal/event"
	"github.com/Matsukatm/callcenter/internal/ingestion"
	"github.com/Matsukatm/callcenter/internal/metrics"
	"github.com/Matsukatm/callcenter/internal/publisher"
	"github.com/Matsukatm/callcenter/internal/session"
	"github.com/Matsukatm/callcenter/internal/storage"
	"github.com/Matsukatm/callcenter/internal/ticker"
	"github.com/Matsukatm/callcenter/internal/websocket"
	"github.com/Matsukatm/callcenter/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("directory_source", cfg.Directory.Source).
		Str("log_level", cfg.LogLevel).
		Msg("starting call routing backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}

// services is the wired process, ready to be started
type services struct {
	hub        *websocket.Hub
	dispatcher *dispatch.Dispatcher
	syncer     *directory.Syncer
	backend    directory.Backend
	reporter   *directory.Reporter
	engine     *engine.Engine
	receiver   *event.Receiver
	ticker     *ticker.Ticker
	ari        *ingestion.ARISource
	closers    []func()
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, err := storage.NewStore(ctx, logger)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}

	backend, closeBackend, err := openBackend(ctx, cfg.Directory, logger)
	if err != nil {
		return err
	}

	svc, err := build(cfg, backend, store, logger)
	if err != nil {
		closeBackend()
		return err
	}
	svc.closers = append([]func(){closeBackend}, svc.closers...)
	defer svc.close()

	source := svc.syncer.BootSync(ctx)
	logger.Info().
		Str("loaded_from", source).
		Int("assignments", svc.syncer.Directory().Snapshot().Len()).
		Msg("directory ready")

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, svc, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { svc.hub.Run(gctx); return nil })
	g.Go(func() error { svc.dispatcher.Run(gctx); return nil })
	g.Go(func() error { svc.engine.Run(gctx); return nil })
	g.Go(func() error { svc.syncer.Start(gctx); return nil })
	g.Go(func() error { svc.ticker.Start(gctx); return nil })
	if svc.ari != nil {
		g.Go(func() error { return svc.ari.Start(gctx, svc.engine) })
	}
	g.Go(func() error {
		logger.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	svc.reporter.Wait()
	return err
}

// build wires every component around an opened directory backend
func build(cfg *config.Config, backend directory.Backend, store storage.Store, logger zerolog.Logger) (*services, error) {
	svc := &services{backend: backend}

	svc.hub = websocket.NewHub(logger)

	sinks := []dispatch.Sink{dispatch.NewBroadcastSink(svc.hub)}
	if cfg.MQTT.Broker != "" {
		pub, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      byte(cfg.MQTT.QoS),
		}, logger)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, func() { _ = pub.Close() })
		sinks = append(sinks, dispatch.NewBrokerSink(pub, cfg.MQTT.TopicPrefix))
	}
	svc.dispatcher = dispatch.New(cfg.EventBufferSize, logger, sinks)

	seedFallback := cfg.Directory.SeedFile
	if cfg.Directory.Source == config.SourceSeed {
		seedFallback = ""
	}
	svc.syncer = directory.NewSyncer(directory.New(), backend, store, svc.dispatcher, directory.SyncOptions{
		PollInterval: cfg.Directory.PollInterval,
		BootAttempts: cfg.Directory.BootAttempts,
		BootBackoff:  cfg.Directory.BootBackoff,
		Timeout:      cfg.Directory.Timeout,
		SeedFile:     seedFallback,
	}, logger)

	svc.reporter = directory.NewReporter(backend, directory.ReporterOptions{
		Concurrency: cfg.Directory.WriteConcurrency,
		Rate:        float64(cfg.Directory.WriteRate),
		Timeout:     cfg.Directory.Timeout,
	}, logger)

	classifier := endreason.New(endreason.Thresholds{
		RingReject:      cfg.RingRejectThreshold,
		ConnectedHangup: cfg.ConnectedHangupThreshold,
	})
	svc.engine = engine.New(
		session.NewStore(),
		capacity.NewTracker(),
		svc.syncer.Directory(),
		svc.dispatcher,
		logger,
		engine.WithClassifier(classifier),
		engine.WithReporter(svc.reporter),
		engine.WithBufferSize(cfg.EventBufferSize),
	)

	svc.receiver = event.NewReceiver(svc.engine, logger)
	svc.ticker = ticker.NewTicker(svc.engine, svc.hub, svc.dispatcher, cfg.StatsInterval, logger)

	if cfg.ARIURL != "" {
		svc.ari = ingestion.NewARISource(ingestion.ARIConfig{
			URL:            cfg.ARIURL,
			Username:       cfg.ARIUsername,
			Password:       cfg.ARIPassword,
			App:            cfg.ARIApp,
			ReconnectDelay: cfg.ARIReconnectDelay,
		}, logger)
	}

	return svc, nil
}

// openBackend connects the configured directory source
func openBackend(ctx context.Context, cfg config.DirectoryConfig, logger zerolog.Logger) (directory.Backend, func(), error) {
	switch cfg.Source {
	case config.SourcePostgres:
		pool, err := directory.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return directory.NewPostgresSource(pool, logger), pool.Close, nil
	case config.SourceSeed:
		assignments, err := directory.LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		return directory.NewMemorySource(assignments), func() {}, nil
	default:
		return directory.NewHTTPClient(cfg.URL, cfg.APIKey, cfg.Timeout, logger), func() {}, nil
	}
}

func newRouter(cfg *config.Config, svc *services, logger zerolog.Logger) http.Handler {
	wsHandler := websocket.NewHandler(svc.hub, svc.engine, svc.dispatcher, cfg, logger)
	roster := api.NewRosterHandler(svc.engine, logger)
	actions := api.NewAgentActionsHandler(svc.backend, svc.syncer.Directory(), svc.syncer, logger)
	calls := api.NewCallsHandler(svc.engine, svc.engine.Queue(), logger)
	admin := api.NewAdminHandler(svc.syncer, logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())
	r.Get("/ws", wsHandler.ServeHTTP)

	// Signaling events from in-cluster producers
	r.Route("/internal", func(r chi.Router) {
		r.Post("/signal", svc.receiver.HandleEvent)
		r.Get("/signal/stats", svc.receiver.GetStats)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/agents", roster.GetAgents)
		r.Get("/agents/available", roster.GetAvailable)
		r.Post("/agents/{agentId}/extension", actions.AssignExtension)
		r.Delete("/agents/{agentId}/extension", actions.ReleaseExtension)

		r.Get("/calls", calls.GetCalls)
		r.Post("/calls/{channelId}/assign", calls.AssignCall)
		r.Post("/calls/{sessionId}/reject", calls.RejectCall)
		r.Get("/queue", calls.GetQueue)

		r.Get("/directory", admin.GetDirectory)
		r.Post("/directory/refresh", admin.RefreshDirectory)
	})

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"ccr-backend"}`)
}
