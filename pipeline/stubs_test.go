package pipeline

import (
	"sync"
	"time"

	"github.com/perimetric/sentinel-pipeline/aggregator"
	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/storage/data"
)

// stubConfig satisfies every pipeline facing configuration interface with test values
type stubConfig struct {
	frameCapacity     uint
	framePolicy       string
	batchCapacity     uint
	batchPolicy       string
	dequeueTimeout    time.Duration
	maxRetries        uint
	baseDelay         time.Duration
	maxDelay          time.Duration
	multiplier        float64
	detectionWorkers  uint
	analysisWorkers   uint
	detectorURL       string
	analysisURL       string
	serviceTimeout    time.Duration
	fastPathThreshold float64
	breakerSettings   config.BreakerSettings
	distributionURL   string
	stateStoreEnabled bool
	redisURL          string
	gaugeInterval     time.Duration
}

func newStubConfig() *stubConfig {
	return &stubConfig{
		frameCapacity:     10,
		framePolicy:       "dlq",
		batchCapacity:     10,
		batchPolicy:       "reject",
		dequeueTimeout:    10 * time.Millisecond,
		maxRetries:        1,
		baseDelay:         time.Millisecond,
		maxDelay:          5 * time.Millisecond,
		multiplier:        2.0,
		detectionWorkers:  1,
		analysisWorkers:   1,
		serviceTimeout:    time.Second,
		fastPathThreshold: 0.95,
		distributionURL:   "mem://test-risk-events",
		gaugeInterval:     10 * time.Millisecond,
	}
}

func (s *stubConfig) GetFrameQueueCapacity() uint         { return s.frameCapacity }
func (s *stubConfig) GetFrameQueueOverflowPolicy() string { return s.framePolicy }
func (s *stubConfig) GetBatchQueueCapacity() uint         { return s.batchCapacity }
func (s *stubConfig) GetBatchQueueOverflowPolicy() string { return s.batchPolicy }
func (s *stubConfig) GetDequeueTimeout() time.Duration    { return s.dequeueTimeout }
func (s *stubConfig) GetMaxRetries() uint                 { return s.maxRetries }
func (s *stubConfig) GetRetryBaseDelay() time.Duration    { return s.baseDelay }
func (s *stubConfig) GetRetryMaxDelay() time.Duration     { return s.maxDelay }
func (s *stubConfig) GetRetryBackoffMultiplier() float64  { return s.multiplier }
func (s *stubConfig) GetDetectionWorkerCount() uint       { return s.detectionWorkers }
func (s *stubConfig) GetAnalysisWorkerCount() uint        { return s.analysisWorkers }
func (s *stubConfig) GetDetectorBaseURL() string          { return s.detectorURL }
func (s *stubConfig) GetAnalysisBaseURL() string          { return s.analysisURL }
func (s *stubConfig) GetServiceConnectionTimeout() time.Duration {
	return s.serviceTimeout
}
func (s *stubConfig) GetServiceUserAgent() string             { return "Sentinel Pipeline Test" }
func (s *stubConfig) GetFastPathConfidenceThreshold() float64 { return s.fastPathThreshold }
func (s *stubConfig) GetBreakerSettings(string) config.BreakerSettings {
	return s.breakerSettings
}
func (s *stubConfig) GetDistributionURL() string                      { return s.distributionURL }
func (s *stubConfig) GetMaxDistributionReconnectAttempts() uint       { return 1 }
func (s *stubConfig) GetDistributionSuperviseInterval() time.Duration { return time.Hour }
func (s *stubConfig) GetSessionSendBufferSize() uint                  { return 16 }
func (s *stubConfig) IsStateStoreEnabled() bool                       { return s.stateStoreEnabled }
func (s *stubConfig) GetStateStoreRedisURL() string                   { return s.redisURL }
func (s *stubConfig) GetBatchWindowDuration() time.Duration           { return time.Minute }
func (s *stubConfig) GetBatchIdleDuration() time.Duration             { return 30 * time.Second }
func (s *stubConfig) GetBatchSweepInterval() time.Duration            { return 10 * time.Millisecond }
func (s *stubConfig) GetBatchStateTTL() time.Duration                 { return 2 * time.Minute }
func (s *stubConfig) GetDLQGaugeUpdateInterval() time.Duration        { return s.gaugeInterval }

// fakeDetectionRepository records stored detections in memory
type fakeDetectionRepository struct {
	mu     sync.Mutex
	stored []*data.Detection
}

func (repo *fakeDetectionRepository) Store(detection *data.Detection) (*data.Detection, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.stored = append(repo.stored, detection)
	return detection, nil
}

func (repo *fakeDetectionRepository) Get(string) (*data.Detection, error) {
	return nil, nil
}

func (repo *fakeDetectionRepository) GetList(string, *data.Pagination) ([]*data.Detection, *data.Pagination, error) {
	return nil, nil, nil
}

func (repo *fakeDetectionRepository) GetPrunable(time.Time, uint) ([]*data.Detection, error) {
	return nil, nil
}

func (repo *fakeDetectionRepository) Prune([]*data.Detection) error {
	return nil
}

func (repo *fakeDetectionRepository) storedCount() int {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return len(repo.stored)
}

// fakeAssessmentRepository records stored assessments in memory
type fakeAssessmentRepository struct {
	mu     sync.Mutex
	stored []*data.Assessment
}

func (repo *fakeAssessmentRepository) Store(assessment *data.Assessment) (*data.Assessment, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.stored = append(repo.stored, assessment)
	return assessment, nil
}

func (repo *fakeAssessmentRepository) Get(string) (*data.Assessment, error) {
	return nil, nil
}

func (repo *fakeAssessmentRepository) GetByBatchID(string) (*data.Assessment, error) {
	return nil, nil
}

func (repo *fakeAssessmentRepository) GetList(string, *data.Pagination) ([]*data.Assessment, *data.Pagination, error) {
	return nil, nil, nil
}

func (repo *fakeAssessmentRepository) GetPrunable(time.Time, uint) ([]*data.Assessment, error) {
	return nil, nil
}

func (repo *fakeAssessmentRepository) Prune([]*data.Assessment) error {
	return nil
}

func (repo *fakeAssessmentRepository) latest() *data.Assessment {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.stored) == 0 {
		return nil
	}
	return repo.stored[len(repo.stored)-1]
}

func (repo *fakeAssessmentRepository) storedCount() int {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return len(repo.stored)
}

// recordingSink captures batches submitted by the aggregator
type recordingSink struct {
	mu      sync.Mutex
	batches []string
}

func (sink *recordingSink) Submit(batch *aggregator.Batch) error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.batches = append(sink.batches, batch.BatchID)
	return nil
}
