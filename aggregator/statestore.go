package aggregator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const batchStateKeyPrefix = "sentinel:batch-state:"

// StateStore persists open batch state with an expiry as a crash-recovery and
// operational-visibility mechanism. TTL expiry alone must never be the normal closure
// path; the aggregator's sweep always closes batches before their TTL runs out.
type StateStore interface {
	Save(ctx context.Context, sourceID string, state *BatchState, ttl time.Duration) error
	Load(ctx context.Context, sourceID string) (*BatchState, error)
	Delete(ctx context.Context, sourceID string) error
}

// RedisStateStore keeps batch state as JSON values under SET ... EX
type RedisStateStore struct {
	client redis.UniversalClient
}

// NewRedisStateStore creates a store backed by the given client
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Save writes the state with the configured expiry
func (store *RedisStateStore) Save(ctx context.Context, sourceID string, state *BatchState, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return store.client.Set(ctx, batchStateKeyPrefix+sourceID, payload, ttl).Err()
}

// Load retrieves a persisted state; a missing key yields (nil, nil)
func (store *RedisStateStore) Load(ctx context.Context, sourceID string) (*BatchState, error) {
	payload, err := store.client.Get(ctx, batchStateKeyPrefix+sourceID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state := &BatchState{}
	if err = json.Unmarshal(payload, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Delete removes the state once its batch has closed
func (store *RedisStateStore) Delete(ctx context.Context, sourceID string) error {
	return store.client.Del(ctx, batchStateKeyPrefix+sourceID).Err()
}

// NoopStateStore is used when no external store is configured; aggregation then runs
// purely in process memory
type NoopStateStore struct{}

// Save does nothing
func (NoopStateStore) Save(context.Context, string, *BatchState, time.Duration) error { return nil }

// Load reports no state
func (NoopStateStore) Load(context.Context, string) (*BatchState, error) { return nil, nil }

// Delete does nothing
func (NoopStateStore) Delete(context.Context, string) error { return nil }
