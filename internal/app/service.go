package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketwire/quotefeed/internal/api"
	"github.com/marketwire/quotefeed/internal/audit"
	"github.com/marketwire/quotefeed/internal/bus"
	"github.com/marketwire/quotefeed/internal/feed"
	"github.com/marketwire/quotefeed/internal/query"
	"github.com/marketwire/quotefeed/internal/store"
	"github.com/marketwire/quotefeed/pkg/config"
)

// Service owns the whole single-process quote system: store, hub, feed
// simulator, query service, audit sink and HTTP server. It is constructed
// at startup and torn down deterministically; nothing lives in package
// state.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	store store.QuoteStore
	hub   *bus.Hub
	sim   *feed.Simulator
	audit *audit.Sink
	srv   *http.Server
}

func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	sink, err := audit.Open(cfg.Audit.Path, cfg.Audit.Buffer)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	qstore, err := newStore(cfg)
	if err != nil {
		sink.Close()
		return nil, err
	}

	hub := bus.NewHub(qstore, cfg.Gateway.SubscriberBuffer, logger)
	qs := query.NewService(qstore, sink, logger)

	validSymbols := make(map[string]bool, len(cfg.Feed.Symbols))
	for _, sym := range cfg.Feed.Symbols {
		validSymbols[sym] = true
	}

	router := api.NewRouter(qs, hub, logger, validSymbols)

	sim := feed.NewSimulator(
		logger,
		feed.StoreSink{Store: qstore},
		cfg.Feed.Symbols,
		cfg.Feed.Interval,
		cfg.Feed.PriceMin,
		cfg.Feed.PriceMax,
		feed.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		feed.RealClock{},
	)

	return &Service{
		cfg:    cfg,
		logger: logger,
		store:  qstore,
		hub:    hub,
		sim:    sim,
		audit:  sink,
		srv:    &http.Server{Addr: cfg.App.Port, Handler: router},
	}, nil
}

func newStore(cfg *config.Config) (store.QuoteStore, error) {
	if cfg.Store.Backend == "memory" {
		return store.NewMemoryStore(cfg.Feed.TTL), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return store.NewRedisStore(rdb, cfg.Feed.TTL), nil
}

// Run starts the feed, the store's pub/sub loop and the HTTP server, then
// blocks until ctx is cancelled and everything has stopped.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.store.RunPubSub(runCtx, s.hub.Publish)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sim.Run(runCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server started", zap.String("port", s.cfg.App.Port))
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		wg.Wait()
		s.shutdown()
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP shutdown error", zap.Error(err))
	}

	wg.Wait()
	s.shutdown()
	s.logger.Info("Shutdown complete")
	return nil
}

// shutdown releases remaining resources in dependency order: hub first so
// subscribers see end of stream, then audit, then the store.
func (s *Service) shutdown() {
	s.hub.Close()
	if err := s.audit.Close(); err != nil {
		s.logger.Error("Audit close error", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("Store close error", zap.Error(err))
	}
}
