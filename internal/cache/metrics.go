package cache

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Tier labels.
const (
	tierL1 = "l1"
	tierL2 = "l2"
)

// Metrics holds Prometheus collectors for cache operations.
type Metrics struct {
	hitsTotal      *prometheus.CounterVec
	missesTotal    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	evictionsTotal prometheus.Counter
	l1Size         prometheus.Gauge
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the process-wide cache metrics.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grpc",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"tier"},
		),
		missesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grpc",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"tier"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grpc",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of cache errors",
			},
			[]string{"tier", "operation"},
		),
		evictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "grpc",
				Subsystem: "cache",
				Name:      "l1_evictions_total",
				Help:      "Total number of L1 LRU evictions",
			},
		),
		l1Size: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "grpc",
				Subsystem: "cache",
				Name:      "l1_entries",
				Help:      "Current number of L1 entries",
			},
		),
	}
}

// Register adds the collectors to reg. Registering twice is harmless.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.hitsTotal, m.missesTotal, m.errorsTotal, m.evictionsTotal, m.l1Size,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
