package plugin

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type registryMetrics struct {
	conflicts prometheus.Counter
	blocked   prometheus.Counter
}

var (
	registryMetricsOnce sync.Once
	registryMetricsInst *registryMetrics
)

func globalRegistryMetrics() *registryMetrics {
	registryMetricsOnce.Do(func() {
		registryMetricsInst = &registryMetrics{
			conflicts: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "moddata",
				Subsystem: "plugin",
				Name:      "registration_conflicts_total",
				Help:      "Plugin registrations rejected because the name was already taken",
			}),
			blocked: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "moddata",
				Subsystem: "plugin",
				Name:      "blocked_total",
				Help:      "Plugins not enabled because of a framework version mismatch",
			}),
		}
	})
	return registryMetricsInst
}

// ConflictCounter exposes the registration conflict counter for tests and
// diagnostics.
func ConflictCounter() prometheus.Counter {
	return globalRegistryMetrics().conflicts
}
