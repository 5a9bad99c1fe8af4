package pipeline

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/perimetric/sentinel-pipeline/breaker"
	"github.com/perimetric/sentinel-pipeline/broadcaster"
	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/queue"
)

var (
	// MetricsInjector provides the shared metrics container and prometheus handler
	MetricsInjector = wire.NewSet(NewMetricsContainer, NewPrometheusHandler)
	sharedContainer *MetricsContainer
	once            sync.Once
)

// MetricsContainer bundles the prometheus instruments of the pipeline
type MetricsContainer struct {
	QueueDepth           *prometheus.GaugeVec
	QueueFillRatio       *prometheus.GaugeVec
	DeadLetterCount      *prometheus.GaugeVec
	BreakerState         *prometheus.GaugeVec
	ProcessedJobs        *prometheus.CounterVec
	BroadcastSubscribers prometheus.Gauge
}

// NewMetricsContainer returns the process wide metrics container
func NewMetricsContainer() *MetricsContainer {
	once.Do(func() {
		sharedContainer = newMetricsContainer()
	})
	return sharedContainer
}

func newMetricsContainer() *MetricsContainer {
	container := &MetricsContainer{}
	container.QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_queue_depth",
		Help: "The current number of jobs in each bounded queue",
	}, []string{"queue"})
	container.QueueFillRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_queue_fill_ratio",
		Help: "Fill ratio of each bounded queue; pressure warning fires at 0.8",
	}, []string{"queue"})
	container.DeadLetterCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_dead_letter_count",
		Help: "Number of dead letter records per source queue",
	}, []string{"queue"})
	container.BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_breaker_state",
		Help: "Circuit breaker state per dependency; 0 closed, 1 open, 2 half-open",
	}, []string{"dependency"})
	container.ProcessedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_processed_jobs_total",
		Help: "Jobs processed per stage and outcome",
	}, []string{"stage", "outcome"})
	container.BroadcastSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_broadcast_subscribers",
		Help: "The current number of live websocket subscribers",
	})
	return container
}

// NewPrometheusHandler exposes the metrics endpoint handler
func NewPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// GaugeUpdater is the contract for the periodic gauge refresh service
type GaugeUpdater interface {
	Start()
	Stop()
}

// GaugeUpdaterImpl periodically refreshes queue, dead letter and breaker gauges
type GaugeUpdaterImpl struct {
	frames    *FrameQueue
	batches   *BatchQueue
	store     queue.DeadLetterStore
	breakers  *breaker.Registry
	hub       *broadcaster.Hub
	dlqConfig config.DLQConfig
	metrics   *MetricsContainer
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewGaugeUpdater creates the periodic gauge refresh service
func NewGaugeUpdater(frames *FrameQueue, batches *BatchQueue, store queue.DeadLetterStore, breakers *breaker.Registry, hub *broadcaster.Hub, dlqConfig config.DLQConfig, metrics *MetricsContainer) GaugeUpdater {
	if frames == nil || batches == nil || store == nil || breakers == nil || hub == nil || dlqConfig == nil || metrics == nil {
		panic("parameters null")
	}
	return &GaugeUpdaterImpl{
		frames:    frames,
		batches:   batches,
		store:     store,
		breakers:  breakers,
		hub:       hub,
		dlqConfig: dlqConfig,
		metrics:   metrics,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the updater processing loop
func (u *GaugeUpdaterImpl) Start() {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		ticker := time.NewTicker(u.dlqConfig.GetDLQGaugeUpdateInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				u.processUpdate()
			case <-u.stopChan:
				return
			}
		}
	}()
}

// Stop halts the updater processing loop
func (u *GaugeUpdaterImpl) Stop() {
	close(u.stopChan)
	u.wg.Wait()
}

// processUpdate runs one refresh cycle across every observed component
func (u *GaugeUpdaterImpl) processUpdate() {
	u.metrics.QueueDepth.WithLabelValues(FrameQueueName).Set(float64(u.frames.Len()))
	u.metrics.QueueDepth.WithLabelValues(BatchQueueName).Set(float64(u.batches.Len()))
	u.metrics.QueueFillRatio.WithLabelValues(FrameQueueName).Set(u.frames.FillRatio())
	u.metrics.QueueFillRatio.WithLabelValues(BatchQueueName).Set(u.batches.FillRatio())
	for _, queueName := range []string{FrameQueueName, BatchQueueName} {
		count, err := u.store.Count(queueName)
		if err != nil {
			log.Error().Err(err).Str("queue", queueName).Msg("could not count dead letter records")
			continue
		}
		u.metrics.DeadLetterCount.WithLabelValues(queueName).Set(float64(count))
	}
	for _, snapshot := range u.breakers.Snapshots() {
		u.metrics.BreakerState.WithLabelValues(snapshot.Name).Set(breakerStateValue(snapshot.State))
	}
	u.metrics.BroadcastSubscribers.Set(float64(u.hub.SubscriberCount()))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}
