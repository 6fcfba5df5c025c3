package ratelimit

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for rate limit decisions.
type Metrics struct {
	decisions *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the process-wide rate limit metrics.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			decisions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "grpc",
					Subsystem: "ratelimit",
					Name:      "decisions_total",
					Help:      "Total number of rate limit decisions by result",
				},
				[]string{"result"},
			),
		}
	})
	return metricsInstance
}

// Register adds the collectors to reg. Registering twice is harmless.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.decisions); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}
