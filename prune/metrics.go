package prune

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sharedContainer *MetricsContainer
	once            sync.Once
)

// MetricsContainer bundles the prometheus instruments of the retention service
type MetricsContainer struct {
	ArchivedRecords *prometheus.CounterVec
	PruneErrors     prometheus.Counter
}

// NewMetricsContainer returns the process wide retention metrics container
func NewMetricsContainer() *MetricsContainer {
	once.Do(func() {
		sharedContainer = &MetricsContainer{
			ArchivedRecords: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "retention_archived_records_total",
				Help: "Records archived and pruned per entity",
			}, []string{"entity"}),
			PruneErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "retention_prune_errors_total",
				Help: "Prune passes aborted by an error",
			}),
		}
	})
	return sharedContainer
}

// AddArchivedRecords increments the archived record count for an entity
func (container *MetricsContainer) AddArchivedRecords(entity string, count int) {
	container.ArchivedRecords.WithLabelValues(entity).Add(float64(count))
}

// IncreasePruneErrorCount increments the prune error counter
func (container *MetricsContainer) IncreasePruneErrorCount() {
	container.PruneErrors.Inc()
}
