package store

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "sessiondb"

// sweepMetrics holds the prometheus instruments for expiry sweeps.
type sweepMetrics struct {
	sweepsTotal   prometheus.Counter
	reapedTotal   *prometheus.CounterVec
	errorsTotal   prometheus.Counter
	sweepDuration prometheus.Histogram
}

var (
	globalSweepMetrics     *sweepMetrics
	globalSweepMetricsOnce sync.Once
)

// sweeperMetrics returns the process-wide sweep metrics, registering them on
// the default registerer on first use.
func sweeperMetrics() *sweepMetrics {
	globalSweepMetricsOnce.Do(func() {
		factory := promauto.With(prometheus.DefaultRegisterer)
		globalSweepMetrics = &sweepMetrics{
			sweepsTotal: factory.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "sweeper",
				Name:      "sweeps_total",
				Help:      "Total number of expiry sweeps run",
			}),
			reapedTotal: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "sweeper",
				Name:      "sessions_reaped_total",
				Help:      "Total number of expired sessions deleted",
			}, []string{"ownership"}),
			errorsTotal: factory.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "sweeper",
				Name:      "sweep_errors_total",
				Help:      "Total number of sweeps that failed",
			}),
			sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "sweeper",
				Name:      "sweep_duration_seconds",
				Help:      "Expiry sweep duration in seconds",
				Buckets:   prometheus.DefBuckets,
			}),
		}
	})
	return globalSweepMetrics
}
