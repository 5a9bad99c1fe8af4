package controllers

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/storage/data"
)

const dequeueWaitForTest = time.Second

// DetectionRepositoryMockImpl mocks the detection repository
type DetectionRepositoryMockImpl struct {
	mock.Mock
}

func (m *DetectionRepositoryMockImpl) Store(detection *data.Detection) (*data.Detection, error) {
	args := m.Called(detection)
	return args.Get(0).(*data.Detection), args.Error(1)
}

func (m *DetectionRepositoryMockImpl) Get(detectionID string) (*data.Detection, error) {
	args := m.Called(detectionID)
	return args.Get(0).(*data.Detection), args.Error(1)
}

func (m *DetectionRepositoryMockImpl) GetList(sourceID string, page *data.Pagination) ([]*data.Detection, *data.Pagination, error) {
	args := m.Called(sourceID, page)
	return args.Get(0).([]*data.Detection), args.Get(1).(*data.Pagination), args.Error(2)
}

func (m *DetectionRepositoryMockImpl) GetPrunable(cutoff time.Time, maxRecords uint) ([]*data.Detection, error) {
	args := m.Called(cutoff, maxRecords)
	return args.Get(0).([]*data.Detection), args.Error(1)
}

func (m *DetectionRepositoryMockImpl) Prune(detections []*data.Detection) error {
	args := m.Called(detections)
	return args.Error(0)
}

// AssessmentRepositoryMockImpl mocks the assessment repository
type AssessmentRepositoryMockImpl struct {
	mock.Mock
}

func (m *AssessmentRepositoryMockImpl) Store(assessment *data.Assessment) (*data.Assessment, error) {
	args := m.Called(assessment)
	return args.Get(0).(*data.Assessment), args.Error(1)
}

func (m *AssessmentRepositoryMockImpl) Get(assessmentID string) (*data.Assessment, error) {
	args := m.Called(assessmentID)
	return args.Get(0).(*data.Assessment), args.Error(1)
}

func (m *AssessmentRepositoryMockImpl) GetByBatchID(batchID string) (*data.Assessment, error) {
	args := m.Called(batchID)
	return args.Get(0).(*data.Assessment), args.Error(1)
}

func (m *AssessmentRepositoryMockImpl) GetList(sourceID string, page *data.Pagination) ([]*data.Assessment, *data.Pagination, error) {
	args := m.Called(sourceID, page)
	return args.Get(0).([]*data.Assessment), args.Get(1).(*data.Pagination), args.Error(2)
}

func (m *AssessmentRepositoryMockImpl) GetPrunable(cutoff time.Time, maxRecords uint) ([]*data.Assessment, error) {
	args := m.Called(cutoff, maxRecords)
	return args.Get(0).([]*data.Assessment), args.Error(1)
}

func (m *AssessmentRepositoryMockImpl) Prune(assessments []*data.Assessment) error {
	args := m.Called(assessments)
	return args.Error(0)
}

// testQueueConfig is a minimal queue configuration for controller tests
type testQueueConfig struct {
	frameCapacity uint
	framePolicy   string
}

func (c *testQueueConfig) GetFrameQueueCapacity() uint {
	if c.frameCapacity == 0 {
		return 10
	}
	return c.frameCapacity
}

func (c *testQueueConfig) GetFrameQueueOverflowPolicy() string {
	if len(c.framePolicy) == 0 {
		return "reject"
	}
	return c.framePolicy
}

func (c *testQueueConfig) GetBatchQueueCapacity() uint         { return 10 }
func (c *testQueueConfig) GetBatchQueueOverflowPolicy() string { return "reject" }
func (c *testQueueConfig) GetDequeueTimeout() time.Duration    { return 10 * time.Millisecond }

// testBroadcastConfig is a minimal broadcast configuration for controller tests
type testBroadcastConfig struct{}

func (c *testBroadcastConfig) GetDistributionURL() string                      { return "mem://controller-tests" }
func (c *testBroadcastConfig) GetMaxDistributionReconnectAttempts() uint       { return 1 }
func (c *testBroadcastConfig) GetDistributionSuperviseInterval() time.Duration { return time.Hour }
func (c *testBroadcastConfig) GetSessionSendBufferSize() uint                  { return 4 }

var _ config.QueueConfig = (*testQueueConfig)(nil)
var _ config.BroadcastConfig = (*testBroadcastConfig)(nil)
