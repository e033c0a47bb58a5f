package saves

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type saveMetrics struct {
	serialized    *prometheus.CounterVec
	deserialized  *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	readFailures  *prometheus.CounterVec
}

var (
	saveMetricsOnce sync.Once
	saveMetricsInst *saveMetrics
)

func globalSaveMetrics() *saveMetrics {
	saveMetricsOnce.Do(func() {
		saveMetricsInst = newSaveMetrics()
	})
	return saveMetricsInst
}

func newSaveMetrics() *saveMetrics {
	return &saveMetrics{
		serialized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moddata",
			Subsystem: "saves",
			Name:      "serialized_total",
			Help:      "Scope files written, labeled by scope",
		}, []string{"scope"}),
		deserialized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moddata",
			Subsystem: "saves",
			Name:      "deserialized_total",
			Help:      "Scope files read successfully, labeled by scope",
		}, []string{"scope"}),
		recoveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moddata",
			Subsystem: "saves",
			Name:      "corruption_recoveries_total",
			Help:      "Corrupted scope files discarded and regenerated, labeled by scope",
		}, []string{"scope"}),
		writeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moddata",
			Subsystem: "saves",
			Name:      "write_failures_total",
			Help:      "Scope files that could not be written, labeled by scope",
		}, []string{"scope"}),
		readFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moddata",
			Subsystem: "saves",
			Name:      "read_failures_total",
			Help:      "Scope files that exist but could not be read, labeled by scope",
		}, []string{"scope"}),
	}
}

// CorruptionRecoveries exposes the recovery counter for one scope.
func CorruptionRecoveries(scope Scope) prometheus.Counter {
	return globalSaveMetrics().recoveries.WithLabelValues(scope.String())
}

// WriteFailures exposes the write failure counter for one scope.
func WriteFailures(scope Scope) prometheus.Counter {
	return globalSaveMetrics().writeFailures.WithLabelValues(scope.String())
}

// Serializations exposes the successful write counter for one scope.
func Serializations(scope Scope) prometheus.Counter {
	return globalSaveMetrics().serialized.WithLabelValues(scope.String())
}

// ReadFailures exposes the read failure counter for one scope.
func ReadFailures(scope Scope) prometheus.Counter {
	return globalSaveMetrics().readFailures.WithLabelValues(scope.String())
}
