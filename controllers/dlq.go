package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/hlog"

	"github.com/perimetric/sentinel-pipeline/pipeline"
	"github.com/perimetric/sentinel-pipeline/queue"
)

const (
	queueNamePathParamKey = "queueName"
	recordIDPathParamKey  = "recordId"
	dlqPath               = "/dlq/:" + queueNamePathParamKey
	dlqRecordPath         = dlqPath + "/record/:" + recordIDPathParamKey
	dlqRequeuePath        = dlqRecordPath + "/requeue"
)

var (
	errUnknownQueue  = errors.New("no queue registered under that name")
	errQueueMismatch = errors.New("record does not belong to that queue")
)

// DLQRecordModel represents one preserved dead letter record
type DLQRecordModel struct {
	ID            string    `json:"id"`
	SourceQueue   string    `json:"sourceQueue"`
	Payload       string    `json:"payload"`
	ErrorMessage  string    `json:"errorMessage"`
	AttemptCount  uint      `json:"attemptCount"`
	FirstFailedAt time.Time `json:"firstFailedAt"`
	LastFailedAt  time.Time `json:"lastFailedAt"`
}

// DLQListModel is the response for listing a queue's dead letter records
type DLQListModel struct {
	Records []*DLQRecordModel `json:"records"`
	Count   int               `json:"count"`
}

func newDLQRecordModel(record *queue.Record) *DLQRecordModel {
	return &DLQRecordModel{
		ID:            record.ID.String(),
		SourceQueue:   record.SourceQueue,
		Payload:       string(record.Payload),
		ErrorMessage:  record.ErrorMessage,
		AttemptCount:  record.AttemptCount,
		FirstFailedAt: record.FirstFailedAt,
		LastFailedAt:  record.LastFailedAt,
	}
}

// DLQListController handles GET /dlq/:queueName
type DLQListController struct {
	store     queue.DeadLetterStore
	requeuers pipeline.RequeuerRegistry
}

// NewDLQListController creates a new DLQ list controller
func NewDLQListController(store queue.DeadLetterStore, requeuers pipeline.RequeuerRegistry) *DLQListController {
	return &DLQListController{store: store, requeuers: requeuers}
}

// GetPath returns the endpoint's path
func (controller *DLQListController) GetPath() string {
	return dlqPath
}

// FormatAsRelativeLink formats this controller's URL
func (controller *DLQListController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return formatURL(params, dlqPath, queueNamePathParamKey)
}

// Get implements GET /dlq/:queueName
func (controller *DLQListController) Get(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	queueName := params.ByName(queueNamePathParamKey)
	if _, known := controller.requeuers[queueName]; !known {
		writeNotFound(w)
		return
	}
	records, err := controller.store.List(queueName)
	if err != nil {
		writeErr(w, err)
		return
	}
	models := make([]*DLQRecordModel, 0, len(records))
	for _, record := range records {
		models = append(models, newDLQRecordModel(record))
	}
	writeJSON(w, &DLQListModel{Records: models, Count: len(models)})
}

// DLQPurgeController handles DELETE /dlq/:queueName
type DLQPurgeController struct {
	store     queue.DeadLetterStore
	requeuers pipeline.RequeuerRegistry
}

// NewDLQPurgeController creates a new DLQ purge controller
func NewDLQPurgeController(store queue.DeadLetterStore, requeuers pipeline.RequeuerRegistry) *DLQPurgeController {
	return &DLQPurgeController{store: store, requeuers: requeuers}
}

// GetPath returns the endpoint's path
func (controller *DLQPurgeController) GetPath() string {
	return dlqPath
}

// FormatAsRelativeLink formats this controller's URL
func (controller *DLQPurgeController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return formatURL(params, dlqPath, queueNamePathParamKey)
}

// Delete implements DELETE /dlq/:queueName
func (controller *DLQPurgeController) Delete(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	queueName := params.ByName(queueNamePathParamKey)
	if _, known := controller.requeuers[queueName]; !known {
		writeNotFound(w)
		return
	}
	removed, err := controller.store.Clear(queueName)
	if err != nil {
		writeErr(w, err)
		return
	}
	hlog.FromRequest(r).Info().Str("queue", queueName).Int("removed", removed).Msg("dead letter records purged")
	writeJSON(w, map[string]int{"deletedCount": removed})
}

// DLQRecordController handles GET and DELETE of a single record
type DLQRecordController struct {
	store queue.DeadLetterStore
}

// NewDLQRecordController creates a new DLQ record controller
func NewDLQRecordController(store queue.DeadLetterStore) *DLQRecordController {
	return &DLQRecordController{store: store}
}

// GetPath returns the endpoint's path
func (controller *DLQRecordController) GetPath() string {
	return dlqRecordPath
}

// FormatAsRelativeLink formats this controller's URL
func (controller *DLQRecordController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return formatURL(params, dlqRecordPath, queueNamePathParamKey, recordIDPathParamKey)
}

func (controller *DLQRecordController) getRecord(w http.ResponseWriter, params httprouter.Params) *queue.Record {
	record, err := controller.store.Get(params.ByName(recordIDPathParamKey))
	if err != nil {
		writeNotFound(w)
		return nil
	}
	if record.SourceQueue != params.ByName(queueNamePathParamKey) {
		writeStatus(w, http.StatusNotFound, errQueueMismatch)
		return nil
	}
	return record
}

// Get implements GET /dlq/:queueName/record/:recordId
func (controller *DLQRecordController) Get(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	record := controller.getRecord(w, params)
	if record == nil {
		return
	}
	writeJSON(w, newDLQRecordModel(record))
}

// Delete implements DELETE /dlq/:queueName/record/:recordId; the record is discarded
// without being requeued
func (controller *DLQRecordController) Delete(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	record := controller.getRecord(w, params)
	if record == nil {
		return
	}
	if err := controller.store.Remove(record.ID.String()); err != nil {
		writeErr(w, err)
		return
	}
	writeStatus(w, http.StatusNoContent, nil)
}

// DLQRequeueController handles POST /dlq/:queueName/record/:recordId/requeue. Requeue is
// strictly operator driven; nothing in the pipeline ever returns a record on its own.
type DLQRequeueController struct {
	store     queue.DeadLetterStore
	requeuers pipeline.RequeuerRegistry
}

// NewDLQRequeueController creates a new DLQ requeue controller
func NewDLQRequeueController(store queue.DeadLetterStore, requeuers pipeline.RequeuerRegistry) *DLQRequeueController {
	return &DLQRequeueController{store: store, requeuers: requeuers}
}

// GetPath returns the endpoint's path
func (controller *DLQRequeueController) GetPath() string {
	return dlqRequeuePath
}

// FormatAsRelativeLink formats this controller's URL
func (controller *DLQRequeueController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return formatURL(params, dlqRequeuePath, queueNamePathParamKey, recordIDPathParamKey)
}

// Post implements POST /dlq/:queueName/record/:recordId/requeue
func (controller *DLQRequeueController) Post(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	logger := hlog.FromRequest(r)
	queueName := params.ByName(queueNamePathParamKey)
	requeuer, known := controller.requeuers[queueName]
	if !known {
		writeStatus(w, http.StatusNotFound, errUnknownQueue)
		return
	}
	record, err := controller.store.Get(params.ByName(recordIDPathParamKey))
	if err != nil {
		writeNotFound(w)
		return
	}
	if record.SourceQueue != queueName {
		writeStatus(w, http.StatusNotFound, errQueueMismatch)
		return
	}
	if err = requeuer.RequeueRaw(record.Payload); err != nil {
		if err == queue.ErrQueueFull {
			writeTooManyRequests(w)
			return
		}
		logger.Error().Err(err).Str("recordId", record.ID.String()).Msg("requeue failed")
		writeErr(w, err)
		return
	}
	// the record leaves the store only after the origin queue accepted the job again
	if err = controller.store.Remove(record.ID.String()); err != nil {
		logger.Error().Err(err).Str("recordId", record.ID.String()).Msg("requeued but record removal failed")
	}
	writeJSON(w, map[string]bool{"requeued": true})
}
