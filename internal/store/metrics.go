package store

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for store operations.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	connectRetries    prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the process-wide store metrics.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			operationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "grpc",
					Subsystem: "store",
					Name:      "operations_total",
					Help:      "Total number of shared store operations",
				},
				[]string{"backend", "operation", "status"},
			),
			operationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "grpc",
					Subsystem: "store",
					Name:      "operation_duration_seconds",
					Help:      "Duration of shared store operations",
					Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
				},
				[]string{"backend", "operation"},
			),
			connectRetries: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "grpc",
					Subsystem: "store",
					Name:      "connect_retries_total",
					Help:      "Total number of shared store connection retries",
				},
			),
		}
	})
	return metricsInstance
}

// Register adds the collectors to reg. Registering twice is harmless.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.operationsTotal, m.operationDuration, m.connectRetries} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

func (m *Metrics) observe(backend, op string, start time.Time, err error) {
	m.operationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())

	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	m.operationsTotal.WithLabelValues(backend, op, status).Inc()
}
