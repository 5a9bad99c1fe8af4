package pipeline

import (
	"context"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/perimetric/sentinel-pipeline/aggregator"
	"github.com/perimetric/sentinel-pipeline/breaker"
	"github.com/perimetric/sentinel-pipeline/broadcaster"
	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/queue"
	"github.com/perimetric/sentinel-pipeline/storage"
)

// DistributionBreakerName is the registry key of the distribution channel's breaker
const DistributionBreakerName = "distribution"

// OpenBatchCounter is the aggregator view the health surface needs
type OpenBatchCounter interface {
	OpenBatchCount() int
}

// RequeuerRegistry resolves a dead letter record's source queue back to its origin so the
// management surface can return records without knowing queue item types
type RequeuerRegistry map[string]queue.Requeuer

// NewRequeuerRegistry indexes the pipeline queues by their dead letter source names
func NewRequeuerRegistry(frames *FrameQueue, batches *BatchQueue) RequeuerRegistry {
	return RequeuerRegistry{
		frames.Name():  frames,
		batches.Name(): batches,
	}
}

var (
	// PipelineInjector provides every long running pipeline component
	PipelineInjector = wire.NewSet(
		NewBreakerRegistry,
		NewDeadLetterStoreProvider,
		NewDetectionRepositoryProvider,
		NewAssessmentRepositoryProvider,
		NewFrameQueue,
		NewBatchQueue,
		NewBatchQueueSink,
		NewFastPathPredicate,
		NewStateStore,
		NewAggregator,
		NewHub,
		NewDistributor,
		NewPublisher,
		NewDetectionService,
		NewAnalysisService,
		NewDetectionStage,
		NewAnalysisStage,
		NewGaugeUpdater,
		NewRequeuerRegistry,
		NewPipeline,
		wire.Bind(new(OpenBatchCounter), new(*aggregator.Aggregator)),
	)

	// seam for tests; redis client construction needs no live server
	newRedisClient = func(url string) (redis.UniversalClient, error) {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
)

// NewBreakerRegistry builds the registry resolving per-dependency settings from config
func NewBreakerRegistry(breakerConfig config.CircuitBreakerConfig) *breaker.Registry {
	return breaker.NewRegistry(func(name string) breaker.Settings {
		settings := breakerConfig.GetBreakerSettings(name)
		return breaker.Settings{
			FailureThreshold: settings.FailureThreshold,
			RecoveryTimeout:  settings.RecoveryTimeout,
			HalfOpenMaxCalls: settings.HalfOpenMaxCalls,
			SuccessThreshold: settings.SuccessThreshold,
		}
	})
}

// NewDeadLetterStoreProvider exposes the durable dead letter repository to the queues
func NewDeadLetterStoreProvider(dataAccessor storage.DataAccessor) queue.DeadLetterStore {
	return dataAccessor.GetDeadLetterRepository()
}

// NewDetectionRepositoryProvider exposes the detection repository to the detection stage
func NewDetectionRepositoryProvider(dataAccessor storage.DataAccessor) storage.DetectionRepository {
	return dataAccessor.GetDetectionRepository()
}

// NewAssessmentRepositoryProvider exposes the assessment repository to the analysis stage
func NewAssessmentRepositoryProvider(dataAccessor storage.DataAccessor) storage.AssessmentRepository {
	return dataAccessor.GetAssessmentRepository()
}

// NewFastPathPredicate flags members whose confidence clears the configured threshold for
// immediate singleton dispatch
func NewFastPathPredicate(pipelineConfig config.PipelineConfig) aggregator.FastPathPredicate {
	threshold := pipelineConfig.GetFastPathConfidenceThreshold()
	if threshold <= 0 || threshold > 1 {
		return nil
	}
	return func(member aggregator.Member) bool {
		return member.Confidence >= threshold
	}
}

// NewStateStore builds the external batch state store; when redis is not enabled the
// aggregator runs purely in process memory
func NewStateStore(stateConfig config.StateStoreConfig) aggregator.StateStore {
	if !stateConfig.IsStateStoreEnabled() {
		return aggregator.NoopStateStore{}
	}
	client, err := newRedisClient(stateConfig.GetStateStoreRedisURL())
	if err != nil {
		log.Error().Err(err).Msg("could not configure redis state store; falling back to in-memory state")
		return aggregator.NoopStateStore{}
	}
	return aggregator.NewRedisStateStore(client)
}

// NewAggregator builds the per-source batch aggregator from configuration
func NewAggregator(batchConfig config.BatchConfig, sink aggregator.Sink, fastPath aggregator.FastPathPredicate, states aggregator.StateStore) *aggregator.Aggregator {
	return aggregator.New(aggregator.Settings{
		WindowDuration: batchConfig.GetBatchWindowDuration(),
		IdleDuration:   batchConfig.GetBatchIdleDuration(),
		SweepInterval:  batchConfig.GetBatchSweepInterval(),
		StateTTL:       batchConfig.GetBatchStateTTL(),
	}, sink, fastPath, states)
}

// NewHub creates the subscriber hub
func NewHub() *broadcaster.Hub {
	return broadcaster.NewHub()
}

// NewDistributor builds the hub feeder with its dedicated circuit breaker
func NewDistributor(broadcastConfig config.BroadcastConfig, hub *broadcaster.Hub, breakers *breaker.Registry) *broadcaster.Distributor {
	return broadcaster.NewDistributor(hub, breakers.Get(DistributionBreakerName), broadcaster.Settings{
		SubscriptionURL:      broadcastConfig.GetDistributionURL(),
		MaxReconnectAttempts: broadcastConfig.GetMaxDistributionReconnectAttempts(),
		SuperviseInterval:    broadcastConfig.GetDistributionSuperviseInterval(),
	})
}

// NewPublisher opens the send side of the distribution channel
func NewPublisher(ctx context.Context, broadcastConfig config.BroadcastConfig) (*broadcaster.Publisher, error) {
	return broadcaster.NewPublisher(ctx, broadcastConfig.GetDistributionURL())
}
