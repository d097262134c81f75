package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/carbonmax/carbonmax/internal/config"
	"github.com/carbonmax/carbonmax/internal/metrics"
	"github.com/carbonmax/carbonmax/internal/notification"
	"github.com/carbonmax/carbonmax/internal/routes"
)

// Server wraps the Fiber application, the event broker and shared dependencies.
type Server struct {
	app         *fiber.App
	cfg         config.Config
	db          *pgxpool.Pool
	cache       *redis.Client
	broker      *notification.Broker
	logger      *slog.Logger
	stopRelay   context.CancelFunc
	relayClosed chan struct{}
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
//
// With Redis, domain events are published to the events channel and relayed back into
// the local broker, so every instance's SSE clients see every event. Without Redis they
// go straight to the broker.
func New(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:     cfg.AppName,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 90 * time.Second,
	})

	broker := notification.NewBroker(logger)
	relayCtx, stopRelay := context.WithCancel(context.Background())
	s := &Server{app: app, cfg: cfg, db: db, cache: cache, broker: broker, logger: logger, stopRelay: stopRelay, relayClosed: make(chan struct{})}

	var events notification.Publisher = broker
	if cache != nil {
		events = notification.NewRedisPublisher(cache, cfg.EventsChannel)
		go s.relay(relayCtx)
	} else {
		close(s.relayClosed)
	}

	deps := routes.Deps{
		Cfg:     cfg,
		DB:      db,
		Cache:   cache,
		Logger:  logger,
		Metrics: metrics.New(),
		Events:  notification.Multi{events, notification.NewLoggerPublisher(logger)},
		Broker:  broker,
	}
	if err := routes.Setup(ctx, app, deps); err != nil {
		stopRelay()
		<-s.relayClosed
		return nil, err
	}
	return s, nil
}

func (s *Server) relay(ctx context.Context) {
	defer close(s.relayClosed)
	err := notification.Relay(ctx, s.cache, s.cfg.EventsChannel, s.broker, s.logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("event relay stopped", slog.Any("error", err))
	}
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting requests, then closes the event relay and every open event stream.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broker.Shutdown()
	err := s.app.ShutdownWithContext(ctx)
	s.stopRelay()
	select {
	case <-s.relayClosed:
	case <-ctx.Done():
	}
	return err
}

// App exposes the Fiber application for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}
