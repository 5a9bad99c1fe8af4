package pipeline

import (
	"encoding/json"
	"time"

	"github.com/rs/xid"

	"github.com/perimetric/sentinel-pipeline/aggregator"
	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/queue"
)

const (
	// FrameQueueName is the dead letter source queue name of the ingest queue
	FrameQueueName = "frames"
	// BatchQueueName is the dead letter source queue name of the closed batch queue
	BatchQueueName = "batches"
)

// FrameJob is the unit of work flowing from ingest to the detection stage
type FrameJob struct {
	FrameID    string          `json:"frameId"`
	SourceID   string          `json:"sourceId"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// NewFrameJob creates a frame job for the given source, stamping id and enqueue time
func NewFrameJob(sourceID string, payload []byte) *FrameJob {
	return &FrameJob{
		FrameID:    xid.New().String(),
		SourceID:   sourceID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
}

func encodeFrameJob(job *FrameJob) ([]byte, error) {
	return json.Marshal(job)
}

func decodeFrameJob(payload []byte) (*FrameJob, error) {
	job := &FrameJob{}
	err := json.Unmarshal(payload, job)
	return job, err
}

func encodeBatch(batch *aggregator.Batch) ([]byte, error) {
	return json.Marshal(batch)
}

func decodeBatch(payload []byte) (*aggregator.Batch, error) {
	batch := &aggregator.Batch{}
	err := json.Unmarshal(payload, batch)
	return batch, err
}

// FrameQueue is the bounded ingest queue feeding the detection stage
type FrameQueue = queue.BoundedQueue[*FrameJob]

// BatchQueue is the bounded queue of closed batches feeding the analysis stage
type BatchQueue = queue.BoundedQueue[*aggregator.Batch]

// NewFrameQueue constructs the ingest queue from configuration
func NewFrameQueue(queueConfig config.QueueConfig, store queue.DeadLetterStore) (*FrameQueue, error) {
	policy, err := queue.ParseOverflowPolicy(queueConfig.GetFrameQueueOverflowPolicy())
	if err != nil {
		return nil, err
	}
	return queue.NewBoundedQueue(queue.Options[*FrameJob]{
		Name:     FrameQueueName,
		Capacity: queueConfig.GetFrameQueueCapacity(),
		Policy:   policy,
		Store:    store,
		Encode:   encodeFrameJob,
		Decode:   decodeFrameJob,
	}), nil
}

// NewBatchQueue constructs the closed batch queue from configuration
func NewBatchQueue(queueConfig config.QueueConfig, store queue.DeadLetterStore) (*BatchQueue, error) {
	policy, err := queue.ParseOverflowPolicy(queueConfig.GetBatchQueueOverflowPolicy())
	if err != nil {
		return nil, err
	}
	return queue.NewBoundedQueue(queue.Options[*aggregator.Batch]{
		Name:     BatchQueueName,
		Capacity: queueConfig.GetBatchQueueCapacity(),
		Policy:   policy,
		Store:    store,
		Encode:   encodeBatch,
		Decode:   decodeBatch,
	}), nil
}

// batchQueueSink adapts the batch queue to the aggregator's downstream sink
type batchQueueSink struct {
	queue *BatchQueue
}

// NewBatchQueueSink wraps the batch queue as an aggregator sink
func NewBatchQueueSink(batchQueue *BatchQueue) aggregator.Sink {
	return &batchQueueSink{queue: batchQueue}
}

// Submit enqueues a closed batch downstream; overflow errors surface to the aggregator
func (sink *batchQueueSink) Submit(batch *aggregator.Batch) error {
	_, err := sink.queue.Enqueue(batch)
	return err
}
