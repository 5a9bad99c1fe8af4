package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perimetric/sentinel-pipeline/aggregator"
	"github.com/perimetric/sentinel-pipeline/breaker"
	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/queue"
	"github.com/perimetric/sentinel-pipeline/retry"
	"github.com/perimetric/sentinel-pipeline/storage"
	"github.com/perimetric/sentinel-pipeline/storage/data"
)

const (
	// DetectorBreakerName is the registry key of the detection backend's breaker
	DetectorBreakerName = "detector"
	// AnalysisBreakerName is the registry key of the analysis backend's breaker
	AnalysisBreakerName = "analysis"

	stageDetection = "detection"
	stageAnalysis  = "analysis"

	outcomeSucceeded       = "succeeded"
	outcomeDeadLettered    = "dead_lettered"
	outcomeCircuitRejected = "circuit_rejected"
	outcomeFallback        = "fallback"
)

// newRetryConfig maps the configuration view onto the executor's parameters
func newRetryConfig(retryConfig config.RetryConfig) retry.Config {
	return retry.Config{
		MaxRetries:      retryConfig.GetMaxRetries(),
		BaseDelay:       retryConfig.GetRetryBaseDelay(),
		MaxDelay:        retryConfig.GetRetryMaxDelay(),
		ExponentialBase: retryConfig.GetRetryBackoffMultiplier(),
		Jitter:          true,
	}
}

// DetectionStage pulls frames off the ingest queue, runs them through the detection
// backend with retry and circuit gating, persists the result and hands the member to the
// aggregator. Circuit-rejected frames are preserved in the dead letter store by the stage
// itself since the executor deliberately records nothing for them.
type DetectionStage struct {
	frames         *FrameQueue
	service        DetectionService
	executor       *retry.Executor
	detections     storage.DetectionRepository
	agg            *aggregator.Aggregator
	store          queue.DeadLetterStore
	metrics        *MetricsContainer
	workerCount    uint
	dequeueTimeout time.Duration
}

// NewDetectionStage creates the detection worker group
func NewDetectionStage(queueConfig config.QueueConfig, pipelineConfig config.PipelineConfig, retryConfig config.RetryConfig, frames *FrameQueue, service DetectionService, detections storage.DetectionRepository, agg *aggregator.Aggregator, store queue.DeadLetterStore, breakers *breaker.Registry, metrics *MetricsContainer) *DetectionStage {
	if frames == nil || service == nil || detections == nil || agg == nil || store == nil || breakers == nil || metrics == nil {
		panic("parameters null")
	}
	executor := retry.NewExecutor(newRetryConfig(retryConfig), FrameQueueName, store, IsRetryableServiceError, breakers.Get(DetectorBreakerName))
	return &DetectionStage{
		frames:         frames,
		service:        service,
		executor:       executor,
		detections:     detections,
		agg:            agg,
		store:          store,
		metrics:        metrics,
		workerCount:    pipelineConfig.GetDetectionWorkerCount(),
		dequeueTimeout: queueConfig.GetDequeueTimeout(),
	}
}

// Run blocks until ctx is cancelled, processing frames on the configured worker count
func (stage *DetectionStage) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for index := uint(0); index < stage.workerCount; index++ {
		wg.Add(1)
		go func(workerID uint) {
			defer wg.Done()
			stage.workLoop(ctx, workerID)
		}(index)
	}
	wg.Wait()
	return nil
}

func (stage *DetectionStage) workLoop(ctx context.Context, workerID uint) {
	for ctx.Err() == nil {
		job, dequeued := stage.frames.Dequeue(stage.dequeueTimeout)
		if !dequeued {
			continue
		}
		stage.process(ctx, workerID, job)
	}
}

// process handles a single frame; a panic kills the job, never the worker
func (stage *DetectionStage) process(ctx context.Context, workerID uint, job *FrameJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Uint("workerId", workerID).Str("frameId", job.FrameID).Msgf("detection worker recovered from panic - %v", r)
		}
	}()
	payload, err := encodeFrameJob(job)
	if err != nil {
		log.Error().Err(err).Str("frameId", job.FrameID).Msg("could not serialize frame job")
		return
	}
	var result *DetectionResult
	outcome := stage.executor.Execute(ctx, payload, func(callCtx context.Context) error {
		detected, callErr := stage.service.Detect(callCtx, job)
		if callErr != nil {
			return callErr
		}
		result = detected
		return nil
	})
	switch outcome.Status {
	case retry.Succeeded:
		stage.metrics.ProcessedJobs.WithLabelValues(stageDetection, outcomeSucceeded).Inc()
		detection, _ := data.NewDetection(job.SourceID, job.FrameID, result.Label, result.Confidence)
		if _, storeErr := stage.detections.Store(detection); storeErr != nil {
			// aggregation still proceeds; losing the audit row must not lose the member
			log.Error().Err(storeErr).Str("frameId", job.FrameID).Msg("could not persist detection")
		}
		stage.agg.Add(aggregator.Member{ID: job.FrameID, SourceID: job.SourceID, Confidence: result.Confidence})
	case retry.DeadLettered:
		stage.metrics.ProcessedJobs.WithLabelValues(stageDetection, outcomeDeadLettered).Inc()
		log.Warn().Err(outcome.Err).Str("frameId", job.FrameID).Uint("attempts", outcome.Attempts).Msg("frame dead lettered after retries")
	case retry.CircuitRejected:
		stage.metrics.ProcessedJobs.WithLabelValues(stageDetection, outcomeCircuitRejected).Inc()
		record := queue.NewRecord(FrameQueueName, payload, outcome.Err, outcome.Attempts)
		if addErr := stage.store.Add(record); addErr != nil {
			log.Error().Err(addErr).Str("frameId", job.FrameID).Msg("could not preserve circuit rejected frame")
			return
		}
		log.Warn().Str("frameId", job.FrameID).Str("recordId", record.ID.String()).Msg("detector circuit open; frame preserved for requeue")
	}
}
