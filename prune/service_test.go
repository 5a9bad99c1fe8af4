package prune

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"gocloud.dev/blob/memblob"

	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/storage/data"
)

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

// testRetentionConfig is a minimal retention configuration for prune tests
type testRetentionConfig struct {
	enabled       bool
	period        time.Duration
	sweepInterval time.Duration
	batchSize     uint
}

func (c *testRetentionConfig) IsRetentionEnabled() bool { return c.enabled }

func (c *testRetentionConfig) GetRetentionPeriod() time.Duration {
	if c.period == 0 {
		return 7 * 24 * time.Hour
	}
	return c.period
}

func (c *testRetentionConfig) GetRetentionSweepInterval() time.Duration {
	if c.sweepInterval == 0 {
		return time.Hour
	}
	return c.sweepInterval
}

func (c *testRetentionConfig) GetRetentionBatchSize() uint {
	if c.batchSize == 0 {
		return 500
	}
	return c.batchSize
}

func (c *testRetentionConfig) GetArchiveExportPath() string    { return "/tmp/prune-tests" }
func (c *testRetentionConfig) GetArchiveNodeName() string      { return "prune-test-node" }
func (c *testRetentionConfig) GetMaxArchiveFileSizeInMB() uint { return 10 }

var _ config.RetentionConfig = (*testRetentionConfig)(nil)

// memoryArchiveSetup routes the archive seam into an in-memory bucket for the duration of
// a test and returns a content reader over the single archive object.
func memoryArchiveSetup(t *testing.T) func() string {
	t.Helper()
	memBucket := memblob.OpenBucket(nil)
	objectName := "test-archive.jsonl"
	oldInit := initArchiveManager
	initArchiveManager = func(retention config.RetentionConfig) (*ArchiveWriteManager, error) {
		return NewArchiveWriteManager(NewBlobBucket(memBucket), objectName, int64(retention.GetMaxArchiveFileSizeInMB())*1024*1024), nil
	}
	t.Cleanup(func() { initArchiveManager = oldInit })
	return func() string {
		content, err := memBucket.ReadAll(context.Background(), objectName)
		if err != nil {
			return ""
		}
		return string(content)
	}
}

func getTestDetections(count int) []*data.Detection {
	detections := make([]*data.Detection, 0, count)
	for i := 0; i < count; i++ {
		detection, _ := data.NewDetection("camera-1", "frame-"+string(rune('a'+i)), "person", 0.9)
		detections = append(detections, detection)
	}
	return detections
}

func getTestAssessments(count int) []*data.Assessment {
	assessments := make([]*data.Assessment, 0, count)
	for i := 0; i < count; i++ {
		assessment, _ := data.NewAssessment("batch-"+string(rune('a'+i)), "camera-1", 42, "medium")
		assessments = append(assessments, assessment)
	}
	return assessments
}

func TestNewService(t *testing.T) {
	t.Run("PanicOnNilArgs", func(t *testing.T) {
		assert.PanicsWithValue(t, panicString, func() {
			NewService(nil, nil, nil)
		})
	})
	t.Run("Valid", func(t *testing.T) {
		service := NewService(new(DetectionRepositoryMockImpl), new(AssessmentRepositoryMockImpl), &testRetentionConfig{})
		assert.NotNil(t, service)
		assert.NotNil(t, service.metrics)
	})
}

func TestServiceRunOnce(t *testing.T) {
	t.Run("ArchivesAndPrunes", func(t *testing.T) {
		readArchive := memoryArchiveSetup(t)
		detectionRepo := new(DetectionRepositoryMockImpl)
		assessmentRepo := new(AssessmentRepositoryMockImpl)
		detections := getTestDetections(2)
		assessments := getTestAssessments(1)
		detectionRepo.On("GetPrunable", mock.Anything, uint(500)).Return(detections, nil).Once()
		detectionRepo.On("Prune", detections).Return(nil).Once()
		assessmentRepo.On("GetPrunable", mock.Anything, uint(500)).Return(assessments, nil).Once()
		assessmentRepo.On("Prune", assessments).Return(nil).Once()
		service := NewService(detectionRepo, assessmentRepo, &testRetentionConfig{enabled: true})
		service.runOnce()
		detectionRepo.AssertExpectations(t)
		assessmentRepo.AssertExpectations(t)
		content := readArchive()
		assert.Contains(t, content, `"entity":"detection"`)
		assert.Contains(t, content, `"entity":"assessment"`)
		assert.Contains(t, content, detections[0].FrameID)
		assert.Contains(t, content, assessments[0].BatchID)
	})
	t.Run("FullBatchFetchesAgain", func(t *testing.T) {
		memoryArchiveSetup(t)
		detectionRepo := new(DetectionRepositoryMockImpl)
		assessmentRepo := new(AssessmentRepositoryMockImpl)
		firstBatch := getTestDetections(2)
		detectionRepo.On("GetPrunable", mock.Anything, uint(2)).Return(firstBatch, nil).Once()
		detectionRepo.On("Prune", firstBatch).Return(nil).Once()
		detectionRepo.On("GetPrunable", mock.Anything, uint(2)).Return([]*data.Detection{}, nil).Once()
		assessmentRepo.On("GetPrunable", mock.Anything, uint(2)).Return([]*data.Assessment{}, nil).Once()
		service := NewService(detectionRepo, assessmentRepo, &testRetentionConfig{enabled: true, batchSize: 2})
		service.runOnce()
		detectionRepo.AssertExpectations(t)
		assessmentRepo.AssertExpectations(t)
	})
	t.Run("DetectionQueryError", func(t *testing.T) {
		memoryArchiveSetup(t)
		detectionRepo := new(DetectionRepositoryMockImpl)
		assessmentRepo := new(AssessmentRepositoryMockImpl)
		detectionRepo.On("GetPrunable", mock.Anything, uint(500)).Return([]*data.Detection{}, assert.AnError).Once()
		assessmentRepo.On("GetPrunable", mock.Anything, uint(500)).Return([]*data.Assessment{}, nil).Once()
		service := NewService(detectionRepo, assessmentRepo, &testRetentionConfig{enabled: true})
		service.runOnce()
		detectionRepo.AssertNotCalled(t, "Prune", mock.Anything)
		assessmentRepo.AssertExpectations(t)
	})
	t.Run("DetectionPruneErrorKeepsRecords", func(t *testing.T) {
		readArchive := memoryArchiveSetup(t)
		detectionRepo := new(DetectionRepositoryMockImpl)
		assessmentRepo := new(AssessmentRepositoryMockImpl)
		detections := getTestDetections(1)
		detectionRepo.On("GetPrunable", mock.Anything, uint(500)).Return(detections, nil).Once()
		detectionRepo.On("Prune", detections).Return(assert.AnError).Once()
		assessmentRepo.On("GetPrunable", mock.Anything, uint(500)).Return([]*data.Assessment{}, nil).Once()
		service := NewService(detectionRepo, assessmentRepo, &testRetentionConfig{enabled: true})
		service.runOnce()
		detectionRepo.AssertExpectations(t)
		// the batch was archived before the failed delete so the next pass is idempotent
		assert.Contains(t, readArchive(), detections[0].FrameID)
	})
	t.Run("ArchiveError", func(t *testing.T) {
		memoryArchiveSetup(t)
		oldArchiveRecord := archiveRecord
		defer func() { archiveRecord = oldArchiveRecord }()
		archiveRecord = func(manager *ArchiveWriteManager, entity string, record interface{}) error {
			return assert.AnError
		}
		detectionRepo := new(DetectionRepositoryMockImpl)
		assessmentRepo := new(AssessmentRepositoryMockImpl)
		detectionRepo.On("GetPrunable", mock.Anything, uint(500)).Return(getTestDetections(1), nil).Once()
		assessmentRepo.On("GetPrunable", mock.Anything, uint(500)).Return(getTestAssessments(1), nil).Once()
		service := NewService(detectionRepo, assessmentRepo, &testRetentionConfig{enabled: true})
		service.runOnce()
		detectionRepo.AssertNotCalled(t, "Prune", mock.Anything)
		assessmentRepo.AssertNotCalled(t, "Prune", mock.Anything)
	})
	t.Run("ManagerInitError", func(t *testing.T) {
		oldInit := initArchiveManager
		defer func() { initArchiveManager = oldInit }()
		initArchiveManager = func(retention config.RetentionConfig) (*ArchiveWriteManager, error) {
			return nil, assert.AnError
		}
		detectionRepo := new(DetectionRepositoryMockImpl)
		assessmentRepo := new(AssessmentRepositoryMockImpl)
		service := NewService(detectionRepo, assessmentRepo, &testRetentionConfig{enabled: true})
		service.runOnce()
		detectionRepo.AssertNotCalled(t, "GetPrunable", mock.Anything, mock.Anything)
	})
}

func TestServiceStartStop(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		detectionRepo := new(DetectionRepositoryMockImpl)
		assessmentRepo := new(AssessmentRepositoryMockImpl)
		service := NewService(detectionRepo, assessmentRepo, &testRetentionConfig{enabled: false})
		service.Start()
		service.Stop()
		detectionRepo.AssertNotCalled(t, "GetPrunable", mock.Anything, mock.Anything)
	})
	t.Run("SweepsOnInterval", func(t *testing.T) {
		memoryArchiveSetup(t)
		detectionRepo := new(DetectionRepositoryMockImpl)
		assessmentRepo := new(AssessmentRepositoryMockImpl)
		var mu sync.Mutex
		sweeps := 0
		detectionRepo.On("GetPrunable", mock.Anything, uint(500)).Run(func(args mock.Arguments) {
			mu.Lock()
			sweeps++
			mu.Unlock()
		}).Return([]*data.Detection{}, nil)
		assessmentRepo.On("GetPrunable", mock.Anything, uint(500)).Return([]*data.Assessment{}, nil)
		service := NewService(detectionRepo, assessmentRepo, &testRetentionConfig{enabled: true, sweepInterval: 10 * time.Millisecond})
		service.Start()
		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return sweeps >= 2
		}, 5*time.Second, 5*time.Millisecond)
		service.Stop()
	})
}
