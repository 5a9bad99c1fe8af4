package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gocloud.dev/pubsub"

	"github.com/perimetric/sentinel-pipeline/aggregator"
	"github.com/perimetric/sentinel-pipeline/broadcaster"
	"github.com/perimetric/sentinel-pipeline/queue"
	"github.com/perimetric/sentinel-pipeline/storage/data"
)

type funcAnalysisService struct {
	analyze func(ctx context.Context, batch *aggregator.Batch) (*Verdict, error)
}

func (s *funcAnalysisService) Analyze(ctx context.Context, batch *aggregator.Batch) (*Verdict, error) {
	return s.analyze(ctx, batch)
}

type analysisFixture struct {
	stage *AnalysisStage
	store *queue.InMemoryDeadLetterStore
	repo  *fakeAssessmentRepository
}

func newAnalysisFixture(t *testing.T, conf *stubConfig, service AnalysisService) *analysisFixture {
	t.Helper()
	store := queue.NewInMemoryDeadLetterStore()
	batches, err := NewBatchQueue(conf, store)
	assert.Nil(t, err)
	repo := &fakeAssessmentRepository{}
	publisher, err := broadcaster.NewPublisher(context.Background(), conf.distributionURL)
	assert.Nil(t, err)
	t.Cleanup(func() {
		publisher.Shutdown(context.Background())
	})
	stage := NewAnalysisStage(conf, conf, conf, batches, service, repo, publisher, store, NewBreakerRegistry(conf), NewMetricsContainer())
	return &analysisFixture{stage: stage, store: store, repo: repo}
}

func testBatch() *aggregator.Batch {
	return &aggregator.Batch{
		BatchID:   "batch-1",
		SourceID:  "cam-1",
		MemberIDs: []string{"frame-1", "frame-2", "frame-3"},
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
	}
}

func TestAnalysisStageProcessSuccess(t *testing.T) {
	conf := newStubConfig()
	conf.distributionURL = "mem://analysis-success"
	service := &funcAnalysisService{analyze: func(ctx context.Context, batch *aggregator.Batch) (*Verdict, error) {
		return &Verdict{RiskScore: 72, RiskLevel: "high", Summary: "intrusion likely"}, nil
	}}
	fixture := newAnalysisFixture(t, conf, service)
	fixture.stage.process(context.Background(), 0, testBatch())
	assessment := fixture.repo.latest()
	assert.NotNil(t, assessment)
	assert.Equal(t, "batch-1", assessment.BatchID)
	assert.Equal(t, uint(72), assessment.RiskScore)
	assert.Equal(t, "high", assessment.RiskLevel)
	assert.Equal(t, "intrusion likely", assessment.Summary)
	assert.Equal(t, uint(3), assessment.MemberCount)
	assert.False(t, assessment.Fallback)
}

func TestAnalysisStageProcessPublishesEvent(t *testing.T) {
	conf := newStubConfig()
	conf.distributionURL = "mem://analysis-publish"
	service := &funcAnalysisService{analyze: func(ctx context.Context, batch *aggregator.Batch) (*Verdict, error) {
		return &Verdict{RiskScore: 10, RiskLevel: "low", Summary: "nothing of note"}, nil
	}}
	// the fixture opens the topic; the subscription must attach to an existing topic
	fixture := newAnalysisFixture(t, conf, service)
	subscription, err := pubsub.OpenSubscription(context.Background(), conf.distributionURL)
	assert.Nil(t, err)
	t.Cleanup(func() {
		subscription.Shutdown(context.Background())
	})
	fixture.stage.process(context.Background(), 0, testBatch())
	receiveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	received, err := subscription.Receive(receiveCtx)
	assert.Nil(t, err)
	received.Ack()
	message := &broadcaster.Message{}
	assert.Nil(t, json.Unmarshal(received.Body, message))
	assert.Equal(t, broadcaster.TypeEvent, message.Type)
	event := &assessmentEvent{}
	assert.Nil(t, json.Unmarshal(message.Data, event))
	assert.Equal(t, "batch-1", event.BatchID)
	assert.Equal(t, uint(10), event.RiskScore)
}

func TestAnalysisStageProcessFallbackOnFailure(t *testing.T) {
	conf := newStubConfig()
	conf.distributionURL = "mem://analysis-fallback"
	var calls int32
	service := &funcAnalysisService{analyze: func(ctx context.Context, batch *aggregator.Batch) (*Verdict, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection reset")
	}}
	fixture := newAnalysisFixture(t, conf, service)
	fixture.stage.process(context.Background(), 0, testBatch())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assessment := fixture.repo.latest()
	assert.NotNil(t, assessment)
	assert.True(t, assessment.Fallback)
	assert.Equal(t, data.FallbackRiskScore, assessment.RiskScore)
	assert.Equal(t, data.FallbackRiskLevel, assessment.RiskLevel)
	assert.Equal(t, uint(3), assessment.MemberCount)
	// the exhausted batch is also preserved for the operator
	records, err := fixture.store.List(BatchQueueName)
	assert.Nil(t, err)
	assert.Len(t, records, 1)
}

func TestAnalysisStageProcessFallbackOnCircuitOpen(t *testing.T) {
	conf := newStubConfig()
	conf.distributionURL = "mem://analysis-circuit"
	conf.breakerSettings.FailureThreshold = 1
	service := &funcAnalysisService{analyze: func(ctx context.Context, batch *aggregator.Batch) (*Verdict, error) {
		return nil, errors.New("connection reset")
	}}
	fixture := newAnalysisFixture(t, conf, service)
	fixture.stage.process(context.Background(), 0, testBatch())
	fixture.stage.process(context.Background(), 0, testBatch())
	// circuit rejection leaves no dead letter record but both batches still get verdicts
	assert.Equal(t, 2, fixture.repo.storedCount())
	assert.True(t, fixture.repo.latest().Fallback)
	records, err := fixture.store.List(BatchQueueName)
	assert.Nil(t, err)
	assert.Len(t, records, 0)
}

func TestAnalysisStageProcessUnusableVerdict(t *testing.T) {
	conf := newStubConfig()
	conf.distributionURL = "mem://analysis-unusable"
	service := &funcAnalysisService{analyze: func(ctx context.Context, batch *aggregator.Batch) (*Verdict, error) {
		return &Verdict{RiskScore: 30}, nil
	}}
	fixture := newAnalysisFixture(t, conf, service)
	fixture.stage.process(context.Background(), 0, testBatch())
	assert.Equal(t, 0, fixture.repo.storedCount())
}

func TestAnalysisStageProcessRecoversFromPanic(t *testing.T) {
	conf := newStubConfig()
	conf.distributionURL = "mem://analysis-panic"
	service := &funcAnalysisService{analyze: func(ctx context.Context, batch *aggregator.Batch) (*Verdict, error) {
		panic("boom")
	}}
	fixture := newAnalysisFixture(t, conf, service)
	assert.NotPanics(t, func() {
		fixture.stage.process(context.Background(), 0, testBatch())
	})
	assert.Equal(t, 0, fixture.repo.storedCount())
}

func TestAnalysisStageRun(t *testing.T) {
	conf := newStubConfig()
	conf.distributionURL = "mem://analysis-run"
	service := &funcAnalysisService{analyze: func(ctx context.Context, batch *aggregator.Batch) (*Verdict, error) {
		return &Verdict{RiskScore: 5, RiskLevel: "low", Summary: "quiet"}, nil
	}}
	fixture := newAnalysisFixture(t, conf, service)
	result, err := fixture.stage.batches.Enqueue(testBatch())
	assert.Nil(t, err)
	assert.Equal(t, queue.Accepted, result)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fixture.stage.Run(ctx)
	}()
	assert.Eventually(t, func() bool {
		return fixture.repo.storedCount() == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.Nil(t, <-done)
}
