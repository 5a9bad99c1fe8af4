package storage

import (
	"database/sql"

	"github.com/perimetric/sentinel-pipeline/queue"
)

// DeadLetterDBRepository is the durable queue.DeadLetterStore implementation for RDBMS.
// Records survive restarts so operators can inspect and requeue after an incident.
type DeadLetterDBRepository struct {
	db *sql.DB
}

// NewDeadLetterRepository retrieves new instance of the durable dead letter store
func NewDeadLetterRepository(db *sql.DB) queue.DeadLetterStore {
	panicIfNoDBConnectionPool(db)
	return &DeadLetterDBRepository{db: db}
}

const deadLetterColumns = "id, sourceQueue, payload, errorMessage, attemptCount, firstFailedAt, lastFailedAt"

// Add stores the record; invalid records are refused
func (repo *DeadLetterDBRepository) Add(record *queue.Record) error {
	if record == nil || !record.IsInValidState() {
		return ErrInvalidStateToSave
	}
	err := transactionalSingleRowWriteExec(repo.db, emptyOps,
		"INSERT INTO dead_letter ("+deadLetterColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		args2SliceFnWrapper(record.ID, record.SourceQueue, record.Payload, record.ErrorMessage, record.AttemptCount, record.FirstFailedAt, record.LastFailedAt))
	if err != nil {
		err = normalizeDBError(err, detectionErrorMap)
	}
	return err
}

// List returns records of the named source queue, oldest failure first
func (repo *DeadLetterDBRepository) List(sourceQueue string) ([]*queue.Record, error) {
	records := make([]*queue.Record, 0)
	baseQuery := "SELECT " + deadLetterColumns + " FROM dead_letter WHERE sourceQueue like ? ORDER BY firstFailedAt asc, id asc" + string(LIMIT_100_SUFFIX)
	scanArgs := func() []interface{} {
		record := &queue.Record{}
		records = append(records, record)
		return []interface{}{&record.ID, &record.SourceQueue, &record.Payload, &record.ErrorMessage, &record.AttemptCount, &record.FirstFailedAt, &record.LastFailedAt}
	}
	err := queryRows(repo.db, baseQuery, args2SliceFnWrapper(sourceQueue), scanArgs)
	return records, err
}

// Get retrieves a single record by its id
func (repo *DeadLetterDBRepository) Get(recordID string) (*queue.Record, error) {
	record := &queue.Record{}
	err := querySingleRow(repo.db, "SELECT "+deadLetterColumns+" FROM dead_letter WHERE id like ?",
		args2SliceFnWrapper(recordID),
		args2SliceFnWrapper(&record.ID, &record.SourceQueue, &record.Payload, &record.ErrorMessage, &record.AttemptCount, &record.FirstFailedAt, &record.LastFailedAt))
	if err == sql.ErrNoRows {
		return nil, queue.ErrRecordNotFound
	}
	return record, err
}

// Remove deletes a single record, typically after a successful requeue
func (repo *DeadLetterDBRepository) Remove(recordID string) error {
	err := transactionalSingleRowWriteExec(repo.db, emptyOps,
		"DELETE FROM dead_letter WHERE id like ?", args2SliceFnWrapper(recordID))
	if err == ErrNoRowsUpdated {
		return queue.ErrRecordNotFound
	}
	return err
}

// Clear drops every record of the named source queue and reports how many were removed
func (repo *DeadLetterDBRepository) Clear(sourceQueue string) (int, error) {
	removed := 0
	err := transactionalOperations(repo.db, func(tx *sql.Tx) error {
		result, txErr := tx.Exec("DELETE FROM dead_letter WHERE sourceQueue like ?", sourceQueue)
		if txErr != nil {
			return txErr
		}
		rowsAffected, txErr := result.RowsAffected()
		if txErr == nil {
			removed = int(rowsAffected)
		}
		return txErr
	})
	return removed, err
}

// Count reports the number of records held for the named source queue
func (repo *DeadLetterDBRepository) Count(sourceQueue string) (int, error) {
	count := 0
	err := querySingleRow(repo.db, "SELECT COUNT(id) FROM dead_letter WHERE sourceQueue like ?",
		args2SliceFnWrapper(sourceQueue), args2SliceFnWrapper(&count))
	return count, err
}
