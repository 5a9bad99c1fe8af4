package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/perimetric/sentinel-pipeline/storage/data"
)

const mysqlDuplicateEntryErrorCode uint16 = 1062

var detectionErrorMap = map[uint16]error{mysqlDuplicateEntryErrorCode: ErrDuplicateRecord}

// DetectionDBRepository detection repository implementation for RDBMS
type DetectionDBRepository struct {
	db *sql.DB
}

// NewDetectionRepository retrieves new instance of detection repository
func NewDetectionRepository(db *sql.DB) DetectionRepository {
	panicIfNoDBConnectionPool(db)
	return &DetectionDBRepository{db: db}
}

// Store persists a new detection; detections are immutable once written
func (repo *DetectionDBRepository) Store(detection *data.Detection) (*data.Detection, error) {
	detection.QuickFix()
	if !detection.IsInValidState() {
		return detection, ErrInvalidStateToSave
	}
	err := transactionalSingleRowWriteExec(repo.db, emptyOps,
		"INSERT INTO detection (id, sourceId, frameId, label, confidence, detectedAt, createdAt, updatedAt) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		args2SliceFnWrapper(detection.ID, detection.SourceID, detection.FrameID, detection.Label, detection.Confidence, detection.DetectedAt, detection.CreatedAt, detection.UpdatedAt))
	if err != nil {
		err = normalizeDBError(err, detectionErrorMap)
	}
	return detection, err
}

// Get retrieves the detection with matching id
func (repo *DetectionDBRepository) Get(detectionID string) (*data.Detection, error) {
	detection := &data.Detection{}
	err := querySingleRow(repo.db, "SELECT id, sourceId, frameId, label, confidence, detectedAt, createdAt, updatedAt FROM detection WHERE id like ?",
		args2SliceFnWrapper(detectionID),
		args2SliceFnWrapper(&detection.ID, &detection.SourceID, &detection.FrameID, &detection.Label, &detection.Confidence, &detection.DetectedAt, &detection.CreatedAt, &detection.UpdatedAt))
	return detection, err
}

// GetList retrieves detections of a source based on pagination params supplied. It will
// return an error if both after and before are present at the same time
func (repo *DetectionDBRepository) GetList(sourceID string, page *data.Pagination) ([]*data.Detection, *data.Pagination, error) {
	detections := make([]*data.Detection, 0)
	pagination := &data.Pagination{}
	if page == nil || (page.Next != nil && page.Previous != nil) {
		return detections, pagination, ErrPaginationDeadlock
	}
	baseQuery := "SELECT id, sourceId, frameId, label, confidence, detectedAt, createdAt, updatedAt FROM detection WHERE sourceId like ?" + getPaginationQueryFragment(page, true)
	scanArgs := func() []interface{} {
		detection := &data.Detection{}
		detections = append(detections, detection)
		return []interface{}{&detection.ID, &detection.SourceID, &detection.FrameID, &detection.Label, &detection.Confidence, &detection.DetectedAt, &detection.CreatedAt, &detection.UpdatedAt}
	}
	err := queryRows(repo.db, baseQuery, args2SliceFnWrapper(appendWithPaginationArgs(page, sourceID)...), scanArgs)
	if err == nil {
		detectionCount := len(detections)
		if detectionCount > 0 {
			pagination = data.NewPagination(detections[detectionCount-1], detections[0])
		}
	}
	return detections, pagination, err
}

// GetPrunable retrieves detections created before the cutoff, oldest first
func (repo *DetectionDBRepository) GetPrunable(cutoff time.Time, maxRecords uint) ([]*data.Detection, error) {
	detections := make([]*data.Detection, 0)
	scanArgs := func() []interface{} {
		detection := &data.Detection{}
		detections = append(detections, detection)
		return []interface{}{&detection.ID, &detection.SourceID, &detection.FrameID, &detection.Label, &detection.Confidence, &detection.DetectedAt, &detection.CreatedAt, &detection.UpdatedAt}
	}
	err := queryRows(repo.db, "SELECT id, sourceId, frameId, label, confidence, detectedAt, createdAt, updatedAt FROM detection WHERE createdAt < ? ORDER BY createdAt ASC LIMIT ?",
		args2SliceFnWrapper(cutoff, maxRecords), scanArgs)
	return detections, err
}

// Prune deletes the given detections in a single transaction
func (repo *DetectionDBRepository) Prune(detections []*data.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	placeholders := make([]string, len(detections))
	args := make([]interface{}, len(detections))
	for index, detection := range detections {
		placeholders[index] = "?"
		args[index] = detection.ID
	}
	query := "DELETE FROM detection WHERE id IN (" + strings.Join(placeholders, ", ") + ")"
	return transactionalOperations(repo.db, func(tx *sql.Tx) error {
		return inTransactionExec(tx, emptyOps, query, args2SliceFnWrapper(args...), int64(len(detections)))
	})
}
