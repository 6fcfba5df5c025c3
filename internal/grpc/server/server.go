package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/vyrodovalexey/grpckit/internal/cache"
	"github.com/vyrodovalexey/grpckit/internal/config"
	"github.com/vyrodovalexey/grpckit/internal/grpc/middleware"
	"github.com/vyrodovalexey/grpckit/internal/observability"
	"github.com/vyrodovalexey/grpckit/internal/ratelimit"
	"github.com/vyrodovalexey/grpckit/internal/store"
)

// State represents the server state.
type State int32

const (
	// StateStopped indicates the server is stopped.
	StateStopped State = iota
	// StateStarting indicates the server is starting.
	StateStarting
	// StateRunning indicates the server is running.
	StateRunning
	// StateStopping indicates the server is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ErrServerUsed is returned by Start on a server that has already served.
var ErrServerUsed = errors.New("server has already served, create a new one")

// Server is a gRPC server with the standard interceptor chain.
type Server struct {
	cfg       config.ServerConfig
	registrar Registrar
	hooks     Hooks

	store        store.Store
	ownedStore   store.Store
	cache        *cache.Tiered
	limiter      ratelimit.Limiter
	registry     *prometheus.Registry
	metrics      *middleware.GRPCMetrics
	rateLimitKey func(ctx context.Context) string

	keepaliveParams *keepalive.ServerParameters
	extraUnary      []grpc.UnaryServerInterceptor
	extraStream     []grpc.StreamServerInterceptor
	serverOpts      []grpc.ServerOption

	logger       observability.Logger
	grpcServer   *grpc.Server
	healthServer *health.Server
	listener     net.Listener
	serveDone    chan struct{}
	state        atomic.Int32
	used         atomic.Bool
	mu           sync.Mutex
	startTime    time.Time
}

// New creates a server from cfg. The configuration is copied and never
// modified afterwards.
func New(cfg config.ServerConfig, registrar Registrar, opts ...Option) (*Server, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if registrar == nil {
		return nil, errors.New("registrar is required")
	}

	cfg.AuthExemptMethods = append([]string(nil), cfg.AuthExemptMethods...)
	cfg.ReflectionServiceNames = append([]string(nil), cfg.ReflectionServiceNames...)

	s := &Server{
		cfg:       cfg,
		registrar: registrar,
		logger:    observability.NopLogger(),
		serveDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	if err := s.initCache(); err != nil {
		return nil, err
	}
	if err := s.initLimiter(); err != nil {
		return nil, err
	}

	s.state.Store(int32(StateStopped))
	return s, nil
}

func (s *Server) initMetrics() error {
	if !s.cfg.EnableMetrics {
		return nil
	}

	m, err := middleware.NewGRPCMetrics(s.registry, s.logger)
	if err != nil {
		return err
	}
	s.metrics = m

	for _, register := range []func(prometheus.Registerer) error{
		cache.GetMetrics().Register,
		ratelimit.GetMetrics().Register,
		store.GetMetrics().Register,
	} {
		if err := register(s.registry); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return nil
}

func (s *Server) initCache() error {
	if s.cache != nil || !s.cfg.EnableCache {
		return nil
	}

	c, err := cache.NewTiered(s.store, cache.Config{
		L1TTL:     s.cfg.CacheL1TTL(),
		L1MaxSize: s.cfg.CacheL1MaxSize,
		L2TTL:     s.cfg.CacheL2TTL(),
		KeyPrefix: s.cfg.CacheKeyPrefix,
		Breaker:   cache.DefaultBreakerSettings(),
	}, cache.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	s.cache = c
	return nil
}

func (s *Server) initLimiter() error {
	if s.limiter != nil || !s.cfg.EnableRateLimiting {
		return nil
	}

	backing := s.store
	if backing == nil {
		s.logger.Warn("no shared store configured, rate limits apply per process")
		backing = store.NewMemoryStore()
		s.ownedStore = backing
	}

	l, err := ratelimit.NewFixedWindow(backing, ratelimit.Config{
		Limit:     s.cfg.RateLimitMaxRequests,
		Window:    s.cfg.RateLimitWindow(),
		KeyPrefix: s.cfg.RateLimitKeyPrefix,
	}, ratelimit.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}
	s.limiter = l
	return nil
}

// Start runs the BeforeStart hook, binds the listener, registers services
// and begins serving in the background. It returns once the listener is
// bound and AfterStart has run.
func (s *Server) Start(ctx context.Context) error {
	if s.used.Load() {
		return ErrServerUsed
	}
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("server is not in stopped state, current state: %s", s.State())
	}

	if err := s.hooks.BeforeStart.run(ctx, s); err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("before start hook: %w", err)
	}

	ln, err := s.listen(ctx)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return s.abortStart(ctx, err)
	}

	s.mu.Lock()
	s.grpcServer = grpc.NewServer(s.buildServerOptions()...)
	s.healthServer = health.NewServer()
	s.listener = ln
	s.mu.Unlock()

	healthpb.RegisterHealthServer(s.grpcServer, s.healthServer)

	s.used.Store(true)
	if err := s.registrar(s.grpcServer, s); err != nil {
		_ = ln.Close()
		s.state.Store(int32(StateStopped))
		return s.abortStart(ctx, fmt.Errorf("failed to register services: %w", err))
	}

	if s.cfg.EnableReflection {
		reflection.Register(s.grpcServer)
	}
	s.markServing()

	s.startTime = time.Now()
	go s.serve()
	s.state.Store(int32(StateRunning))

	s.logger.Info("gRPC server started",
		observability.String("address", ln.Addr().String()),
		observability.Int("max_workers", s.cfg.MaxWorkers),
		observability.Bool("reflection", s.cfg.EnableReflection),
		observability.Strings("reflection_services", s.cfg.ReflectionServiceNames),
		observability.Strings("services", s.serviceNames()),
	)

	if err := s.hooks.AfterStart.run(ctx, s); err != nil {
		s.forceStop()
		return s.abortStart(ctx, fmt.Errorf("after start hook: %w", err))
	}
	return nil
}

// abortStart runs AfterStop for a Start that failed after BeforeStart
// succeeded, so resources acquired there are released.
func (s *Server) abortStart(ctx context.Context, cause error) error {
	if s.used.Load() {
		s.closeOwnedStore()
	}
	if err := s.hooks.AfterStop.run(ctx, s); err != nil {
		s.logger.Error("after stop hook failed", observability.Error(err))
		return errors.Join(cause, fmt.Errorf("after stop hook: %w", err))
	}
	return cause
}

func (s *Server) closeOwnedStore() {
	if s.ownedStore == nil {
		return
	}
	if err := s.ownedStore.Close(); err != nil {
		s.logger.Warn("failed to close fallback store", observability.Error(err))
	}
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	if s.listener != nil {
		return s.listener, nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return ln, nil
}

func (s *Server) serviceNames() []string {
	info := s.grpcServer.GetServiceInfo()
	names := make([]string, 0, len(info))
	for name := range info {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) markServing() {
	s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range s.serviceNames() {
		s.healthServer.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
}

// serve runs until the gRPC server stops.
func (s *Server) serve() {
	defer close(s.serveDone)

	if err := s.grpcServer.Serve(s.listener); err != nil {
		if st := s.State(); st != StateStopping && st != StateStopped {
			s.logger.Error("gRPC server error",
				observability.String("address", s.listener.Addr().String()),
				observability.Error(err),
			)
			s.state.Store(int32(StateStopped))
		}
	}
}

// Stop runs the BeforeStop hook, drains in-flight calls and runs the
// AfterStop hook. New calls are rejected at once. Calls still running when
// the grace period ends (or ctx is done, whichever comes first) are
// cancelled. Stop on a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return nil
	}

	s.logger.Info("gracefully stopping gRPC server",
		observability.Duration("grace_period", s.cfg.GracePeriod()),
	)

	var errs []error
	if err := s.hooks.BeforeStop.run(ctx, s); err != nil {
		s.logger.Error("before stop hook failed", observability.Error(err))
		errs = append(errs, fmt.Errorf("before stop hook: %w", err))
	}

	s.healthServer.Shutdown()
	s.drain(ctx)
	s.state.Store(int32(StateStopped))
	s.closeOwnedStore()

	if err := s.hooks.AfterStop.run(ctx, s); err != nil {
		s.logger.Error("after stop hook failed", observability.Error(err))
		errs = append(errs, fmt.Errorf("after stop hook: %w", err))
	}

	s.logger.Info("gRPC server stopped", observability.Duration("uptime", s.Uptime()))
	return errors.Join(errs...)
}

// drain stops the server gracefully, forcing it once the grace period or
// ctx runs out.
func (s *Server) drain(ctx context.Context) {
	timer := time.NewTimer(s.cfg.GracePeriod())
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("graceful stop timeout, forcing stop")
		s.grpcServer.Stop()
	case <-ctx.Done():
		s.logger.Warn("stop context done, forcing stop")
		s.grpcServer.Stop()
	}

	<-done
	<-s.serveDone
}

func (s *Server) forceStop() {
	s.state.Store(int32(StateStopping))
	s.healthServer.Shutdown()
	s.grpcServer.Stop()
	<-s.serveDone
	s.state.Store(int32(StateStopped))
}

// Done is closed when the server has stopped serving.
func (s *Server) Done() <-chan struct{} {
	return s.serveDone
}

// State returns the current server state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	return s.State() == StateRunning
}

// Uptime returns the time since the server started serving.
func (s *Server) Uptime() time.Duration {
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Config returns a copy of the server configuration.
func (s *Server) Config() config.ServerConfig {
	return s.cfg
}

// Cache returns the shared response cache, or nil when caching is disabled.
func (s *Server) Cache() *cache.Tiered {
	return s.cache
}

// Limiter returns the rate limiter, or nil when rate limiting is disabled.
func (s *Server) Limiter() ratelimit.Limiter {
	return s.limiter
}

// Logger returns the server logger.
func (s *Server) Logger() observability.Logger {
	return s.logger
}

// Registry returns the Prometheus registry holding the server metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// SetServingStatus sets the health status reported for service.
func (s *Server) SetServingStatus(service string, st healthpb.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	hs := s.healthServer
	s.mu.Unlock()

	if hs != nil {
		hs.SetServingStatus(service, st)
	}
}
