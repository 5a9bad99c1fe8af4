package storage

import (
	"time"

	"github.com/perimetric/sentinel-pipeline/queue"
	"github.com/perimetric/sentinel-pipeline/storage/data"
)

// DataAccessor is the facade to all the data repository
type DataAccessor interface {
	GetDetectionRepository() DetectionRepository
	GetAssessmentRepository() AssessmentRepository
	GetDeadLetterRepository() queue.DeadLetterStore
	Close()
}

// DetectionRepository allows storage operation interaction for Detection. Detections are
// append only; the hot path writes and never reads its own writes back.
type DetectionRepository interface {
	Store(detection *data.Detection) (*data.Detection, error)
	Get(detectionID string) (*data.Detection, error)
	GetList(sourceID string, page *data.Pagination) ([]*data.Detection, *data.Pagination, error)
	GetPrunable(cutoff time.Time, maxRecords uint) ([]*data.Detection, error)
	Prune(detections []*data.Detection) error
}

// AssessmentRepository allows storage operation interaction for Assessment
type AssessmentRepository interface {
	Store(assessment *data.Assessment) (*data.Assessment, error)
	Get(assessmentID string) (*data.Assessment, error)
	GetByBatchID(batchID string) (*data.Assessment, error)
	GetList(sourceID string, page *data.Pagination) ([]*data.Assessment, *data.Pagination, error)
	GetPrunable(cutoff time.Time, maxRecords uint) ([]*data.Assessment, error)
	Prune(assessments []*data.Assessment) error
}
