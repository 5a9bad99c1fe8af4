package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perimetric/sentinel-pipeline/aggregator"
	"github.com/perimetric/sentinel-pipeline/breaker"
	"github.com/perimetric/sentinel-pipeline/broadcaster"
	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/queue"
	"github.com/perimetric/sentinel-pipeline/retry"
	"github.com/perimetric/sentinel-pipeline/storage"
	"github.com/perimetric/sentinel-pipeline/storage/data"
)

// assessmentEvent is the broadcast payload emitted for each scored batch
type assessmentEvent struct {
	BatchID     string `json:"batchId"`
	SourceID    string `json:"sourceId"`
	RiskScore   uint   `json:"riskScore"`
	RiskLevel   string `json:"riskLevel"`
	Summary     string `json:"summary"`
	MemberCount uint   `json:"memberCount"`
	Fallback    bool   `json:"fallback"`
}

// AnalysisStage pulls closed batches off the batch queue and scores them through the
// analysis backend with retry and circuit gating. A batch that cannot be scored, whether
// dead lettered after retries or rejected by an open circuit, still produces a persisted
// and broadcast verdict: the neutral fallback assessment. Dashboards therefore always see
// every batch exactly when it closes, at worst with a degraded score.
type AnalysisStage struct {
	batches        *BatchQueue
	service        AnalysisService
	executor       *retry.Executor
	assessments    storage.AssessmentRepository
	publisher      *broadcaster.Publisher
	metrics        *MetricsContainer
	workerCount    uint
	dequeueTimeout time.Duration
}

// NewAnalysisStage creates the analysis worker group
func NewAnalysisStage(queueConfig config.QueueConfig, pipelineConfig config.PipelineConfig, retryConfig config.RetryConfig, batches *BatchQueue, service AnalysisService, assessments storage.AssessmentRepository, publisher *broadcaster.Publisher, store queue.DeadLetterStore, breakers *breaker.Registry, metrics *MetricsContainer) *AnalysisStage {
	if batches == nil || service == nil || assessments == nil || publisher == nil || store == nil || breakers == nil || metrics == nil {
		panic("parameters null")
	}
	executor := retry.NewExecutor(newRetryConfig(retryConfig), BatchQueueName, store, IsRetryableServiceError, breakers.Get(AnalysisBreakerName))
	return &AnalysisStage{
		batches:        batches,
		service:        service,
		executor:       executor,
		assessments:    assessments,
		publisher:      publisher,
		metrics:        metrics,
		workerCount:    pipelineConfig.GetAnalysisWorkerCount(),
		dequeueTimeout: queueConfig.GetDequeueTimeout(),
	}
}

// Run blocks until ctx is cancelled, scoring batches on the configured worker count
func (stage *AnalysisStage) Run(ctx context.Context) error {
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

// workLoop drains the queue even after cancellation so batches flushed during shutdown
// still get verdicts; it exits once a dequeue comes up empty under a cancelled ctx. The
// backend client's own request timeout bounds the in-flight work.
func (stage *AnalysisStage) workLoop(ctx context.Context, workerID uint) {
	for {
		batch, dequeued := stage.batches.Dequeue(stage.dequeueTimeout)
		if !dequeued {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		stage.process(context.Background(), workerID, batch)
	}
}

// process scores a single batch; a panic kills the job, never the worker
func (stage *AnalysisStage) process(ctx context.Context, workerID uint, batch *aggregator.Batch) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Uint("workerId", workerID).Str("batchId", batch.BatchID).Msgf("analysis worker recovered from panic - %v", r)
		}
	}()
	payload, err := encodeBatch(batch)
	if err != nil {
		log.Error().Err(err).Str("batchId", batch.BatchID).Msg("could not serialize batch")
		return
	}
	var verdict *Verdict
	outcome := stage.executor.Execute(ctx, payload, func(callCtx context.Context) error {
		scored, callErr := stage.service.Analyze(callCtx, batch)
		if callErr != nil {
			return callErr
		}
		verdict = scored
		return nil
	})
	if outcome.Status == retry.Succeeded {
		stage.metrics.ProcessedJobs.WithLabelValues(stageAnalysis, outcomeSucceeded).Inc()
		assessment, buildErr := data.NewAssessment(batch.BatchID, batch.SourceID, verdict.RiskScore, verdict.RiskLevel)
		if buildErr != nil {
			log.Error().Err(buildErr).Str("batchId", batch.BatchID).Msg("analysis backend returned an unusable verdict")
			return
		}
		assessment.Summary = verdict.Summary
		assessment.MemberCount = uint(len(batch.MemberIDs))
		stage.finish(ctx, assessment)
		return
	}
	// dead lettered or circuit rejected; the record, if any, stays for the operator while
	// the batch itself still surfaces with a neutral verdict
	stage.metrics.ProcessedJobs.WithLabelValues(stageAnalysis, outcomeLabel(outcome.Status)).Inc()
	stage.metrics.ProcessedJobs.WithLabelValues(stageAnalysis, outcomeFallback).Inc()
	log.Warn().Err(outcome.Err).Str("batchId", batch.BatchID).Uint("attempts", outcome.Attempts).Msg("analysis unavailable; emitting fallback verdict")
	assessment, buildErr := data.NewFallbackAssessment(batch.BatchID, batch.SourceID, uint(len(batch.MemberIDs)))
	if buildErr != nil {
		log.Error().Err(buildErr).Str("batchId", batch.BatchID).Msg("could not build fallback assessment")
		return
	}
	stage.finish(ctx, assessment)
}

// finish persists the assessment and pushes it onto the distribution channel
func (stage *AnalysisStage) finish(ctx context.Context, assessment *data.Assessment) {
	if _, storeErr := stage.assessments.Store(assessment); storeErr != nil {
		log.Error().Err(storeErr).Str("batchId", assessment.BatchID).Msg("could not persist assessment")
	}
	event := &assessmentEvent{
		BatchID:     assessment.BatchID,
		SourceID:    assessment.SourceID,
		RiskScore:   assessment.RiskScore,
		RiskLevel:   assessment.RiskLevel,
		Summary:     assessment.Summary,
		MemberCount: assessment.MemberCount,
		Fallback:    assessment.Fallback,
	}
	if publishErr := stage.publisher.Publish(ctx, broadcaster.NewMessage(broadcaster.TypeEvent, event)); publishErr != nil {
		log.Error().Err(publishErr).Str("batchId", assessment.BatchID).Msg("could not publish assessment event")
	}
}

func outcomeLabel(status retry.Status) string {
	switch status {
	case retry.Succeeded:
		return outcomeSucceeded
	case retry.CircuitRejected:
		return outcomeCircuitRejected
	}
	return outcomeDeadLettered
}
