package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"

	"github.com/perimetric/sentinel-pipeline/pipeline"
	"github.com/perimetric/sentinel-pipeline/queue"
)

type dlqFixture struct {
	router  *httprouter.Router
	store   *queue.InMemoryDeadLetterStore
	frames  *pipeline.FrameQueue
	batches *pipeline.BatchQueue
}

func newDLQFixture(t *testing.T, conf *testQueueConfig) *dlqFixture {
	t.Helper()
	store := queue.NewInMemoryDeadLetterStore()
	frames, err := pipeline.NewFrameQueue(conf, store)
	assert.Nil(t, err)
	batches, err := pipeline.NewBatchQueue(conf, store)
	assert.Nil(t, err)
	requeuers := pipeline.NewRequeuerRegistry(frames, batches)
	testRouter := httprouter.New()
	setupAPIRoutes(testRouter, NewDLQListController(store, requeuers), NewDLQPurgeController(store, requeuers),
		NewDLQRecordController(store), NewDLQRequeueController(store, requeuers))
	return &dlqFixture{router: testRouter, store: store, frames: frames, batches: batches}
}

func (fixture *dlqFixture) addRecord(t *testing.T) *queue.Record {
	t.Helper()
	job := pipeline.NewFrameJob("cam-1", []byte(`{"frame":"data"}`))
	payload, err := json.Marshal(job)
	assert.Nil(t, err)
	record := queue.NewRecord(pipeline.FrameQueueName, payload, errors.New("detector unreachable"), 5)
	assert.Nil(t, fixture.store.Add(record))
	return record
}

func TestDLQList(t *testing.T) {
	fixture := newDLQFixture(t, &testQueueConfig{})
	record := fixture.addRecord(t)
	req, _ := http.NewRequest("GET", "/dlq/frames", nil)
	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	listing := &DLQListModel{}
	assert.Nil(t, json.NewDecoder(rr.Body).Decode(listing))
	assert.Equal(t, 1, listing.Count)
	assert.Equal(t, record.ID.String(), listing.Records[0].ID)
	assert.Equal(t, "detector unreachable", listing.Records[0].ErrorMessage)
	assert.Equal(t, uint(5), listing.Records[0].AttemptCount)
}

func TestDLQList_UnknownQueue(t *testing.T) {
	fixture := newDLQFixture(t, &testQueueConfig{})
	req, _ := http.NewRequest("GET", "/dlq/no-such-queue", nil)
	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDLQRecordGet(t *testing.T) {
	fixture := newDLQFixture(t, &testQueueConfig{})
	record := fixture.addRecord(t)
	req, _ := http.NewRequest("GET", "/dlq/frames/record/"+record.ID.String(), nil)
	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	model := &DLQRecordModel{}
	assert.Nil(t, json.NewDecoder(rr.Body).Decode(model))
	assert.Equal(t, record.ID.String(), model.ID)
	assert.Equal(t, pipeline.FrameQueueName, model.SourceQueue)
}

func TestDLQRecordGet_WrongQueue(t *testing.T) {
	fixture := newDLQFixture(t, &testQueueConfig{})
	record := fixture.addRecord(t)
	// the record belongs to frames, not batches
	req, _ := http.NewRequest("GET", "/dlq/batches/record/"+record.ID.String(), nil)
	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDLQRecordDelete(t *testing.T) {
	fixture := newDLQFixture(t, &testQueueConfig{})
	record := fixture.addRecord(t)
	req, _ := http.NewRequest("DELETE", "/dlq/frames/record/"+record.ID.String(), nil)
	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	_, err := fixture.store.Get(record.ID.String())
	assert.Equal(t, queue.ErrRecordNotFound, err)
}

func TestDLQRequeue(t *testing.T) {
	fixture := newDLQFixture(t, &testQueueConfig{})
	record := fixture.addRecord(t)
	req, _ := http.NewRequest("POST", "/dlq/frames/record/"+record.ID.String()+"/requeue", nil)
	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	// the job is back on its origin queue and the record is gone
	job, ok := fixture.frames.Dequeue(dequeueWaitForTest)
	assert.True(t, ok)
	assert.Equal(t, "cam-1", job.SourceID)
	_, err := fixture.store.Get(record.ID.String())
	assert.Equal(t, queue.ErrRecordNotFound, err)
}

func TestDLQRequeue_QueueFull(t *testing.T) {
	fixture := newDLQFixture(t, &testQueueConfig{frameCapacity: 1})
	record := fixture.addRecord(t)
	_, err := fixture.frames.Enqueue(pipeline.NewFrameJob("cam-2", []byte(`{}`)))
	assert.Nil(t, err)
	req, _ := http.NewRequest("POST", "/dlq/frames/record/"+record.ID.String()+"/requeue", nil)
	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	// the record stays preserved when the origin queue refuses it
	_, err = fixture.store.Get(record.ID.String())
	assert.Nil(t, err)
}

func TestDLQRequeue_NotFound(t *testing.T) {
	fixture := newDLQFixture(t, &testQueueConfig{})
	req, _ := http.NewRequest("POST", "/dlq/frames/record/missing/requeue", nil)
	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDLQPurge(t *testing.T) {
	fixture := newDLQFixture(t, &testQueueConfig{})
	fixture.addRecord(t)
	fixture.addRecord(t)
	req, _ := http.NewRequest("DELETE", "/dlq/frames", nil)
	rr := httptest.NewRecorder()
	fixture.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	result := map[string]int{}
	assert.Nil(t, json.NewDecoder(rr.Body).Decode(&result))
	assert.Equal(t, 2, result["deletedCount"])
	count, err := fixture.store.Count(pipeline.FrameQueueName)
	assert.Nil(t, err)
	assert.Equal(t, 0, count)
}
