package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/grpckit/internal/observability"
)

// GRPCMetrics holds Prometheus metrics for served calls.
type GRPCMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
	logger          observability.Logger
}

// NewGRPCMetrics creates the call metrics and registers them with reg.
func NewGRPCMetrics(reg prometheus.Registerer, logger observability.Logger) (*GRPCMetrics, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	m := &GRPCMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grpc",
				Subsystem: "server",
				Name:      "requests_total",
				Help:      "Total number of gRPC calls by final status code",
			},
			[]string{"service", "method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "grpc",
				Subsystem: "server",
				Name:      "request_duration_seconds",
				Help:      "gRPC call duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "code"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "grpc",
				Subsystem: "server",
				Name:      "in_flight_requests",
				Help:      "Number of gRPC calls currently being served",
			},
			[]string{"service", "method"},
		),
		logger: logger,
	}

	for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDuration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register grpc metrics: %w", err)
		}
	}
	return m, nil
}

// safely runs fn and swallows any panic so metrics never break serving.
func (m *GRPCMetrics) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("metrics recording failed", observability.Any("panic", r))
		}
	}()
	fn()
}

func (m *GRPCMetrics) begin(service, method string) {
	m.safely(func() { m.inFlight.WithLabelValues(service, method).Inc() })
}

func (m *GRPCMetrics) end(service, method string, err error, start time.Time) {
	m.safely(func() {
		code := codes.OK
		if err != nil {
			code = status.Code(err)
		}
		m.inFlight.WithLabelValues(service, method).Dec()
		m.requestsTotal.WithLabelValues(service, method, code.String()).Inc()
		m.requestDuration.WithLabelValues(service, method, code.String()).Observe(time.Since(start).Seconds())
	})
}

// UnaryMetricsInterceptor returns a unary server interceptor that records
// call metrics. It also opens the call's CallInfo.
func UnaryMetricsInterceptor(m *GRPCMetrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, call := ensureCallInfo(ctx, info.FullMethod)
		service, method := splitMethod(info.FullMethod)

		m.begin(service, method)
		resp, err := handler(ctx, req)
		m.end(service, method, err, call.StartTime)

		return resp, err
	}
}

// StreamMetricsInterceptor returns a stream server interceptor that
// records call metrics.
func StreamMetricsInterceptor(m *GRPCMetrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, call := ensureCallInfo(stream.Context(), info.FullMethod)
		service, method := splitMethod(info.FullMethod)

		m.begin(service, method)
		err := handler(srv, wrapStream(stream, ctx))
		m.end(service, method, err, call.StartTime)

		return err
	}
}
