package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// OverflowPolicy determines what happens when an enqueue finds the queue at capacity
type OverflowPolicy string

const (
	// Reject refuses the new item; the caller must surface the backpressure upstream
	Reject OverflowPolicy = "reject"
	// EvictToDeadLetter moves the oldest item(s) to the DeadLetterStore to make room for the new item
	EvictToDeadLetter OverflowPolicy = "dlq"
	// DropOldest discards the oldest item(s) without preserving them; retained for backward compatibility only
	DropOldest OverflowPolicy = "drop-oldest"
)

// EnqueueResult is the outcome of an Enqueue call
type EnqueueResult int

const (
	// Accepted means the item was placed at the tail of the queue without any eviction
	Accepted EnqueueResult = iota
	// Rejected means the queue was full under the Reject policy and the item was refused
	Rejected
	// AcceptedAfterEviction means oldest item(s) were moved to the dead letter store to admit the item
	AcceptedAfterEviction
	// AcceptedAfterDrop means oldest item(s) were discarded without preservation to admit the item
	AcceptedAfterDrop
)

const fillRatioWarnThreshold = 0.8

var (
	// ErrQueueFull is returned alongside Rejected when the Reject policy refuses an item
	ErrQueueFull = errors.New("queue is at capacity")
	// ErrUnknownOverflowPolicy is returned when the queue is configured with an unrecognized policy
	ErrUnknownOverflowPolicy = errors.New("unknown overflow policy")
)

// ParseOverflowPolicy parses the string representation of a policy as found in configuration
func ParseOverflowPolicy(value string) (OverflowPolicy, error) {
	switch OverflowPolicy(value) {
	case Reject, EvictToDeadLetter, DropOldest:
		return OverflowPolicy(value), nil
	}
	return Reject, ErrUnknownOverflowPolicy
}

// Encoder serializes an item for dead letter preservation
type Encoder[T any] func(item T) ([]byte, error)

// Decoder deserializes a dead lettered payload back into an item for requeue
type Decoder[T any] func(payload []byte) (T, error)

// BoundedQueue is a FIFO work queue with a fixed capacity and a configurable overflow policy.
// Dequeue order matches enqueue order; the only suspension point is Dequeue's bounded wait.
type BoundedQueue[T any] struct {
	name    string
	policy  OverflowPolicy
	items   chan T
	store   DeadLetterStore
	encode  Encoder[T]
	decode  Decoder[T]
	enqueMu sync.Mutex
	dropped uint64
}

// Options captures the construction parameters of a BoundedQueue
type Options[T any] struct {
	Name     string
	Capacity uint
	Policy   OverflowPolicy
	Store    DeadLetterStore
	Encode   Encoder[T]
	Decode   Decoder[T]
}

// NewBoundedQueue creates a bounded FIFO queue; Store and Encode are mandatory for the
// EvictToDeadLetter policy since evicted items must be preserved
func NewBoundedQueue[T any](opts Options[T]) *BoundedQueue[T] {
	if opts.Capacity == 0 {
		panic("queue capacity must be positive")
	}
	if opts.Policy == EvictToDeadLetter && (opts.Store == nil || opts.Encode == nil) {
		panic("dead letter policy requires store and encoder")
	}
	return &BoundedQueue[T]{
		name:   opts.Name,
		policy: opts.Policy,
		items:  make(chan T, opts.Capacity),
		store:  opts.Store,
		encode: opts.Encode,
		decode: opts.Decode,
	}
}

// Name returns the queue name used for dead letter bookkeeping and metrics labels
func (q *BoundedQueue[T]) Name() string {
	return q.name
}

// Len returns the current number of queued items
func (q *BoundedQueue[T]) Len() int {
	return len(q.items)
}

// Cap returns the configured capacity
func (q *BoundedQueue[T]) Cap() int {
	return cap(q.items)
}

// FillRatio reports length over capacity; above 0.8 is an operational warning, not a behavioral gate
func (q *BoundedQueue[T]) FillRatio() float64 {
	return float64(len(q.items)) / float64(cap(q.items))
}

// DroppedCount returns how many items were discarded without preservation, whether by
// the DropOldest policy or by an eviction whose dead letter write failed
func (q *BoundedQueue[T]) DroppedCount() uint64 {
	q.enqueMu.Lock()
	defer q.enqueMu.Unlock()
	return q.dropped
}

// Enqueue places item at the tail of the queue, applying the overflow policy when at
// capacity. The result is an explicit outcome the caller must branch on; only internal
// failures of the dead letter store surface as an error.
func (q *BoundedQueue[T]) Enqueue(item T) (EnqueueResult, error) {
	q.enqueMu.Lock()
	defer q.enqueMu.Unlock()
	select {
	case q.items <- item:
		q.warnOnPressure()
		return Accepted, nil
	default:
	}
	switch q.policy {
	case Reject:
		return Rejected, ErrQueueFull
	case EvictToDeadLetter:
		return q.evictOldest(item)
	case DropOldest:
		return q.dropOldest(item)
	}
	return Rejected, ErrUnknownOverflowPolicy
}

// evictOldest pops items from the head into the dead letter store until the new item fits.
// Holding enqueMu keeps concurrent enqueues out; concurrent dequeues only shrink the queue.
// A popped item that cannot be preserved cannot be pushed back to the head either, so a
// failing encoder or store degrades to drop semantics: the loss is logged and counted,
// never silent.
func (q *BoundedQueue[T]) evictOldest(item T) (EnqueueResult, error) {
	evicted := 0
	for {
		select {
		case q.items <- item:
			if evicted == 0 {
				return Accepted, nil
			}
			return AcceptedAfterEviction, nil
		default:
		}
		select {
		case oldest := <-q.items:
			payload, err := q.encode(oldest)
			if err == nil {
				record := NewRecord(q.name, payload, ErrQueueFull, 0)
				if err = q.store.Add(record); err == nil {
					evicted++
					log.Warn().Str("queue", q.name).Str("recordId", record.ID.String()).Msg("evicted oldest item to dead letter store")
				}
			}
			if err != nil {
				q.dropped++
				log.Error().Err(err).Str("queue", q.name).Msg("could not dead letter evicted item; oldest item dropped")
				return Rejected, err
			}
		default:
			// a dequeue raced the eviction and made room already
		}
	}
}

func (q *BoundedQueue[T]) dropOldest(item T) (EnqueueResult, error) {
	droppedAny := false
	for {
		select {
		case q.items <- item:
			if !droppedAny {
				return Accepted, nil
			}
			return AcceptedAfterDrop, nil
		default:
		}
		select {
		case <-q.items:
			q.dropped++
			droppedAny = true
			log.Warn().Str("queue", q.name).Msg("dropped oldest item without preservation; drop-oldest policy is deprecated")
		default:
		}
	}
}

// Dequeue blocks up to timeout waiting for an item and then reports ok=false. Timing out
// is the queue's idle signal, not an error.
func (q *BoundedQueue[T]) Dequeue(timeout time.Duration) (item T, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item = <-q.items:
		return item, true
	case <-timer.C:
		return item, false
	}
}

// RequeueRaw decodes a dead lettered payload and enqueues it again; used by the DLQ
// management surface when an operator returns a record to its origin queue.
func (q *BoundedQueue[T]) RequeueRaw(payload []byte) error {
	if q.decode == nil {
		return errors.New("queue does not support requeue")
	}
	item, err := q.decode(payload)
	if err != nil {
		return err
	}
	result, err := q.Enqueue(item)
	if result == Rejected && err == nil {
		err = ErrQueueFull
	}
	return err
}

func (q *BoundedQueue[T]) warnOnPressure() {
	if ratio := q.FillRatio(); ratio > fillRatioWarnThreshold {
		log.Warn().Str("queue", q.name).Float64("fillRatio", ratio).Msg("queue fill ratio above warning threshold")
	}
}

// Requeuer is the queue capability the DLQ management surface needs to return a record
// to its origin without knowing the queue's item type
type Requeuer interface {
	Name() string
	RequeueRaw(payload []byte) error
}
