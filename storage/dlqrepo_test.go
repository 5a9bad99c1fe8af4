package storage

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/perimetric/sentinel-pipeline/queue"
)

func sampleDeadLetterRecord() *queue.Record {
	return queue.NewRecord("frames", []byte(`{"source_id":"cam-entrance"}`), errors.New("detector unreachable"), 4)
}

func deadLetterRows(records ...*queue.Record) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "sourceQueue", "payload", "errorMessage", "attemptCount", "firstFailedAt", "lastFailedAt"})
	for _, record := range records {
		rows.AddRow(record.ID, record.SourceQueue, record.Payload, record.ErrorMessage, record.AttemptCount, record.FirstFailedAt, record.LastFailedAt)
	}
	return rows
}

func TestDeadLetterAdd(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		db, mock, _ := sqlmock.New()
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO dead_letter").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
		repo := &DeadLetterDBRepository{db: db}
		assert.Nil(t, repo.Add(sampleDeadLetterRecord()))
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("InvalidRecord", func(t *testing.T) {
		t.Parallel()
		db, _, _ := sqlmock.New()
		repo := &DeadLetterDBRepository{db: db}
		assert.Equal(t, ErrInvalidStateToSave, repo.Add(nil))
		record := sampleDeadLetterRecord()
		record.Payload = nil
		assert.Equal(t, ErrInvalidStateToSave, repo.Add(record))
	})
}

func TestDeadLetterList(t *testing.T) {
	db, mock, _ := sqlmock.New()
	first := sampleDeadLetterRecord()
	second := sampleDeadLetterRecord()
	mock.ExpectQuery("SELECT .+ FROM dead_letter WHERE sourceQueue").WithArgs("frames").WillReturnRows(deadLetterRows(first, second))
	repo := &DeadLetterDBRepository{db: db}
	records, err := repo.List("frames")
	assert.Nil(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestDeadLetterGet(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		t.Parallel()
		db, mock, _ := sqlmock.New()
		record := sampleDeadLetterRecord()
		mock.ExpectQuery("SELECT .+ FROM dead_letter WHERE id").WithArgs(record.ID.String()).WillReturnRows(deadLetterRows(record))
		repo := &DeadLetterDBRepository{db: db}
		result, err := repo.Get(record.ID.String())
		assert.Nil(t, err)
		assert.Equal(t, record.ID, result.ID)
		assert.Equal(t, record.Payload, result.Payload)
	})
	t.Run("Missing", func(t *testing.T) {
		t.Parallel()
		db, mock, _ := sqlmock.New()
		mock.ExpectQuery("SELECT .+ FROM dead_letter WHERE id").WithArgs("no-such-id").WillReturnRows(deadLetterRows())
		repo := &DeadLetterDBRepository{db: db}
		_, err := repo.Get("no-such-id")
		assert.Equal(t, queue.ErrRecordNotFound, err)
	})
}

func TestDeadLetterRemove(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		db, mock, _ := sqlmock.New()
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM dead_letter WHERE id").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		repo := &DeadLetterDBRepository{db: db}
		assert.Nil(t, repo.Remove("some-id"))
	})
	t.Run("Missing", func(t *testing.T) {
		t.Parallel()
		db, mock, _ := sqlmock.New()
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM dead_letter WHERE id").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()
		repo := &DeadLetterDBRepository{db: db}
		assert.Equal(t, queue.ErrRecordNotFound, repo.Remove("no-such-id"))
	})
}

func TestDeadLetterClear(t *testing.T) {
	db, mock, _ := sqlmock.New()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM dead_letter WHERE sourceQueue").WithArgs("frames").WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()
	repo := &DeadLetterDBRepository{db: db}
	removed, err := repo.Clear("frames")
	assert.Nil(t, err)
	assert.Equal(t, 7, removed)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestDeadLetterCount(t *testing.T) {
	db, mock, _ := sqlmock.New()
	mock.ExpectQuery("SELECT COUNT").WithArgs("frames").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	repo := &DeadLetterDBRepository{db: db}
	count, err := repo.Count("frames")
	assert.Nil(t, err)
	assert.Equal(t, 3, count)
}
