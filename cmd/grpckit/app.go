package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	"github.com/vyrodovalexey/grpckit/internal/config"
	"github.com/vyrodovalexey/grpckit/internal/grpc/server"
	"github.com/vyrodovalexey/grpckit/internal/observability"
	"github.com/vyrodovalexey/grpckit/internal/store"
)

// shutdownSlack is added to the grace period when bounding the whole
// shutdown sequence.
const shutdownSlack = 5 * time.Second

// application holds all application components.
type application struct {
	cfg           config.ServerConfig
	server        *server.Server
	store         store.Store
	registry      *prometheus.Registry
	metricsServer *http.Server
	tracing       *observability.Tracing
	logger        observability.Logger
}

// openStore connects to the shared store, or returns an in-process store
// when Redis is disabled.
func openStore(ctx context.Context, cfg config.ServerConfig, logger observability.Logger) (store.Store, error) {
	if !cfg.RedisEnabled {
		logger.Warn("redis disabled, using in-process store; limits and cache are not shared")
		return store.NewMemoryStore(), nil
	}

	s, err := store.NewRedisStore(ctx, store.DefaultRedisConfig(cfg.RedisURL), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return s, nil
}

// newApplication wires the store, metrics registry and server.
func newApplication(ctx context.Context, cfg config.ServerConfig, logger observability.Logger) (*application, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tracing, err := observability.NewTracing(ctx, observability.TracingConfig{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	app := &application{
		cfg:      cfg,
		store:    st,
		registry: registry,
		tracing:  tracing,
		logger:   logger,
	}

	srv, err := server.New(cfg,
		func(grpc.ServiceRegistrar, *server.Server) error { return nil },
		server.WithLogger(logger),
		server.WithStore(st),
		server.WithRegistry(registry),
		server.WithHooks(server.Hooks{
			AfterStop: func(context.Context, *server.Server) error {
				return st.Close()
			},
		}),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	app.server = srv

	if cfg.EnableMetrics && cfg.MetricsPort > 0 {
		app.metricsServer = newMetricsServer(cfg.MetricsPort, registry,
			&healthChecks{server: srv, store: st, logger: logger})
	}
	return app, nil
}

// run starts the application and blocks until ctx is done or the server
// stops serving on its own.
func run(ctx context.Context, cfg config.ServerConfig, logger observability.Logger) error {
	logger.Info("starting grpckit",
		observability.String("version", version),
		observability.String("address", cfg.Address()),
	)

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := app.server.Start(ctx); err != nil {
		_ = app.store.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}
	app.startMetricsServer()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case <-app.server.Done():
		logger.Warn("gRPC server stopped serving unexpectedly")
	}

	return app.shutdown()
}

func (a *application) startMetricsServer() {
	if a.metricsServer == nil {
		return
	}

	a.logger.Info("starting metrics server", observability.String("address", a.metricsServer.Addr))
	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", observability.Error(err))
		}
	}()
}

// shutdown stops the gRPC server first so metrics stay scrapeable while
// calls drain.
func (a *application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.GracePeriod()+shutdownSlack)
	defer cancel()

	var errs []error
	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop server: %w", err))
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}

	if err := a.tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop tracing: %w", err))
	}

	a.logger.Info("grpckit stopped")
	return errors.Join(errs...)
}
