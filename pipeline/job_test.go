package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/perimetric/sentinel-pipeline/aggregator"
	"github.com/perimetric/sentinel-pipeline/queue"
)

func TestNewFrameJob(t *testing.T) {
	job := NewFrameJob("cam-1", []byte(`{"frame":"data"}`))
	assert.NotEmpty(t, job.FrameID)
	assert.Equal(t, "cam-1", job.SourceID)
	assert.WithinDuration(t, time.Now(), job.EnqueuedAt, time.Second)
}

func TestFrameJobCodecRoundTrip(t *testing.T) {
	job := NewFrameJob("cam-1", []byte(`{"frame":"data"}`))
	payload, err := encodeFrameJob(job)
	assert.Nil(t, err)
	decoded, err := decodeFrameJob(payload)
	assert.Nil(t, err)
	assert.Equal(t, job.FrameID, decoded.FrameID)
	assert.Equal(t, job.SourceID, decoded.SourceID)
}

func TestNewFrameQueue(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		store := queue.NewInMemoryDeadLetterStore()
		frames, err := NewFrameQueue(newStubConfig(), store)
		assert.Nil(t, err)
		assert.Equal(t, FrameQueueName, frames.Name())
		assert.Equal(t, 10, frames.Cap())
	})
	t.Run("UnknownPolicy", func(t *testing.T) {
		t.Parallel()
		conf := newStubConfig()
		conf.framePolicy = "bogus"
		_, err := NewFrameQueue(conf, queue.NewInMemoryDeadLetterStore())
		assert.Equal(t, queue.ErrUnknownOverflowPolicy, err)
	})
}

func TestNewBatchQueue(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		batches, err := NewBatchQueue(newStubConfig(), queue.NewInMemoryDeadLetterStore())
		assert.Nil(t, err)
		assert.Equal(t, BatchQueueName, batches.Name())
	})
	t.Run("UnknownPolicy", func(t *testing.T) {
		t.Parallel()
		conf := newStubConfig()
		conf.batchPolicy = "bogus"
		_, err := NewBatchQueue(conf, queue.NewInMemoryDeadLetterStore())
		assert.Equal(t, queue.ErrUnknownOverflowPolicy, err)
	})
}

func TestBatchQueueSink(t *testing.T) {
	batches, err := NewBatchQueue(newStubConfig(), queue.NewInMemoryDeadLetterStore())
	assert.Nil(t, err)
	sink := NewBatchQueueSink(batches)
	batch := &aggregator.Batch{BatchID: "batch-1", SourceID: "cam-1", MemberIDs: []string{"frame-1"}}
	assert.Nil(t, sink.Submit(batch))
	dequeued, ok := batches.Dequeue(time.Second)
	assert.True(t, ok)
	assert.Equal(t, "batch-1", dequeued.BatchID)
}

func TestBatchQueueSinkOverflow(t *testing.T) {
	conf := newStubConfig()
	conf.batchCapacity = 1
	batches, err := NewBatchQueue(conf, queue.NewInMemoryDeadLetterStore())
	assert.Nil(t, err)
	sink := NewBatchQueueSink(batches)
	assert.Nil(t, sink.Submit(&aggregator.Batch{BatchID: "batch-1", SourceID: "cam-1"}))
	assert.Equal(t, queue.ErrQueueFull, sink.Submit(&aggregator.Batch{BatchID: "batch-2", SourceID: "cam-1"}))
}
