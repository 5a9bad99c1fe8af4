package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"
)

var (
	// ErrRecordNotFound is returned when a dead letter record id does not exist
	ErrRecordNotFound = errors.New("dead letter record not found")
)

// Record is a job moved aside after exhausting retries or being evicted from a full
// queue; it awaits manual operator intervention and is never auto-requeued.
type Record struct {
	ID            xid.ID
	SourceQueue   string
	Payload       []byte
	ErrorMessage  string
	AttemptCount  uint
	FirstFailedAt time.Time
	LastFailedAt  time.Time
}

// NewRecord creates a dead letter record for the given original job payload
func NewRecord(sourceQueue string, payload []byte, cause error, attempts uint) *Record {
	now := time.Now()
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return &Record{
		ID:            xid.New(),
		SourceQueue:   sourceQueue,
		Payload:       payload,
		ErrorMessage:  message,
		AttemptCount:  attempts,
		FirstFailedAt: now,
		LastFailedAt:  now,
	}
}

// IsInValidState checks the record carries enough information to be stored
func (record *Record) IsInValidState() bool {
	return !record.ID.IsNil() && len(record.SourceQueue) > 0 && len(record.Payload) > 0
}

// DeadLetterStore is the sink for exhausted and evicted jobs. Requeue and Clear are
// driven by the management API only; records are read-only to everything else.
type DeadLetterStore interface {
	Add(record *Record) error
	List(sourceQueue string) ([]*Record, error)
	Get(recordID string) (*Record, error)
	Remove(recordID string) error
	Clear(sourceQueue string) (int, error)
	Count(sourceQueue string) (int, error)
}

// InMemoryDeadLetterStore keeps dead letter records in process memory; the durable
// SQL-backed implementation lives in the storage package.
type InMemoryDeadLetterStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// NewInMemoryDeadLetterStore creates an empty in-memory store
func NewInMemoryDeadLetterStore() *InMemoryDeadLetterStore {
	return &InMemoryDeadLetterStore{records: make(map[string]*Record)}
}

// Add stores the record; invalid records are refused
func (store *InMemoryDeadLetterStore) Add(record *Record) error {
	if record == nil || !record.IsInValidState() {
		return errors.New("dead letter record in invalid state to be stored")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	id := record.ID.String()
	if _, present := store.records[id]; !present {
		store.order = append(store.order, id)
	}
	store.records[id] = record
	return nil
}

// List returns records of the named source queue in insertion order
func (store *InMemoryDeadLetterStore) List(sourceQueue string) ([]*Record, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	result := make([]*Record, 0)
	for _, id := range store.order {
		if record := store.records[id]; record != nil && record.SourceQueue == sourceQueue {
			result = append(result, record)
		}
	}
	return result, nil
}

// Get retrieves a single record by its id
func (store *InMemoryDeadLetterStore) Get(recordID string) (*Record, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	record, present := store.records[recordID]
	if !present {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// Remove deletes a single record, typically after a successful requeue
func (store *InMemoryDeadLetterStore) Remove(recordID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, present := store.records[recordID]; !present {
		return ErrRecordNotFound
	}
	delete(store.records, recordID)
	for index, id := range store.order {
		if id == recordID {
			store.order = append(store.order[:index], store.order[index+1:]...)
			break
		}
	}
	return nil
}

// Clear drops every record of the named source queue and reports how many were removed
func (store *InMemoryDeadLetterStore) Clear(sourceQueue string) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	removed := 0
	remaining := store.order[:0]
	for _, id := range store.order {
		record := store.records[id]
		if record != nil && record.SourceQueue == sourceQueue {
			delete(store.records, id)
			removed++
		} else {
			remaining = append(remaining, id)
		}
	}
	store.order = remaining
	return removed, nil
}

// Count reports the number of records held for the named source queue
func (store *InMemoryDeadLetterStore) Count(sourceQueue string) (int, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	count := 0
	for _, record := range store.records {
		if record.SourceQueue == sourceQueue {
			count++
		}
	}
	return count, nil
}
