package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// Member is one item accumulated into a per-source batch. Confidence is carried only
// for the fast-path predicate; the batch itself keeps member ids.
type Member struct {
	ID         string
	SourceID   string
	Confidence float64
}

// Batch is the unit emitted downstream once a per-source window closes. MemberIDs
// preserve arrival order within the source.
type Batch struct {
	BatchID   string    `json:"batchId"`
	SourceID  string    `json:"sourceId"`
	MemberIDs []string  `json:"memberIds"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	FastPath  bool      `json:"fastPath"`
}

// BatchState is the mutable per-source record; at most one open state exists per source
type BatchState struct {
	BatchID        string    `json:"batchId"`
	SourceID       string    `json:"sourceId"`
	MemberIDs      []string  `json:"memberIds"`
	StartedAt      time.Time `json:"startedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Sink receives closed batches; the pipeline adapts its downstream bounded queue to this
type Sink interface {
	Submit(batch *Batch) error
}

// FastPathPredicate flags members that must bypass aggregation and be dispatched
// immediately as a singleton batch
type FastPathPredicate func(member Member) bool

// Settings drive the window state machine. StateTTL must be strictly greater than
// WindowDuration so a live batch can never be evicted out from under the aggregator.
type Settings struct {
	WindowDuration time.Duration
	IdleDuration   time.Duration
	SweepInterval  time.Duration
	StateTTL       time.Duration
}

// Aggregator groups members arriving per source into time-windowed batches. A batch
// closes when its window cap elapses or the source goes idle; closure happens on a
// periodic sweep so deadlines fire even with no new arrivals. The external state store
// is a crash-visibility safety net, never the concurrency primitive; the in-process
// mutex is what makes append+bump atomic with respect to closure.
type Aggregator struct {
	settings Settings
	sink     Sink
	fastPath FastPathPredicate
	states   StateStore

	mu   sync.Mutex
	open map[string]*BatchState

	stopChan chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// New creates an aggregator; fastPath may be nil to disable the bypass and states may be
// NoopStateStore when no external store is configured
func New(settings Settings, sink Sink, fastPath FastPathPredicate, states StateStore) *Aggregator {
	if sink == nil {
		panic("sink required")
	}
	if settings.StateTTL <= settings.WindowDuration {
		settings.StateTTL = settings.WindowDuration + settings.IdleDuration
	}
	if states == nil {
		states = NoopStateStore{}
	}
	return &Aggregator{
		settings: settings,
		sink:     sink,
		fastPath: fastPath,
		states:   states,
		open:     make(map[string]*BatchState),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start launches the periodic closure sweep
func (agg *Aggregator) Start() {
	agg.wg.Add(1)
	go func() {
		defer agg.wg.Done()
		ticker := time.NewTicker(agg.settings.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				agg.Sweep()
			case <-agg.stopChan:
				return
			}
		}
	}()
}

// Stop halts the sweep and flushes every open batch downstream so accumulated members
// are never silently lost on shutdown
func (agg *Aggregator) Stop() {
	close(agg.stopChan)
	agg.wg.Wait()
	agg.FlushAll()
}

// Add routes one member into its source's open batch, creating the batch when the
// source is idle. Fast path members skip aggregation entirely and leave any open batch
// for the same source untouched.
func (agg *Aggregator) Add(member Member) {
	if agg.fastPath != nil && agg.fastPath(member) {
		agg.dispatchSingleton(member)
		return
	}
	now := agg.now()
	agg.mu.Lock()
	state, active := agg.open[member.SourceID]
	if !active {
		state = &BatchState{
			BatchID:        xid.New().String(),
			SourceID:       member.SourceID,
			MemberIDs:      make([]string, 0, 8),
			StartedAt:      now,
			LastActivityAt: now,
		}
		agg.open[member.SourceID] = state
	}
	state.MemberIDs = append(state.MemberIDs, member.ID)
	state.LastActivityAt = now
	snapshot := *state
	agg.mu.Unlock()
	// the store write happens outside mu, so an Add racing a Sweep can re-write a key
	// the sweep just deleted; the stale "open batch" lingers in the store until its TTL
	// expires. The store is crash visibility only, closure is decided by agg.open alone.
	agg.persistState(&snapshot)
}

// OpenBatchCount reports how many sources currently have an active batch
func (agg *Aggregator) OpenBatchCount() int {
	agg.mu.Lock()
	defer agg.mu.Unlock()
	return len(agg.open)
}

// Sweep closes every open batch whose window cap or idle deadline has passed. The
// window cap is a mandatory upper bound on batch latency, not just a fallback for
// sources that never go idle.
func (agg *Aggregator) Sweep() {
	now := agg.now()
	agg.mu.Lock()
	due := make([]*BatchState, 0)
	for sourceID, state := range agg.open {
		windowElapsed := now.Sub(state.StartedAt) >= agg.settings.WindowDuration
		idleElapsed := now.Sub(state.LastActivityAt) >= agg.settings.IdleDuration
		if windowElapsed || idleElapsed {
			due = append(due, state)
			delete(agg.open, sourceID)
		}
	}
	agg.mu.Unlock()
	for _, state := range due {
		agg.emit(state, now)
	}
}

// FlushAll force-closes every open batch regardless of deadlines
func (agg *Aggregator) FlushAll() {
	now := agg.now()
	agg.mu.Lock()
	due := make([]*BatchState, 0, len(agg.open))
	for sourceID, state := range agg.open {
		due = append(due, state)
		delete(agg.open, sourceID)
	}
	agg.mu.Unlock()
	for _, state := range due {
		agg.emit(state, now)
	}
}

func (agg *Aggregator) emit(state *BatchState, endedAt time.Time) {
	batch := &Batch{
		BatchID:   state.BatchID,
		SourceID:  state.SourceID,
		MemberIDs: state.MemberIDs,
		StartedAt: state.StartedAt,
		EndedAt:   endedAt,
	}
	if err := agg.sink.Submit(batch); err != nil {
		log.Error().Err(err).Str("batchId", batch.BatchID).Str("sourceId", batch.SourceID).Msg("failed to submit closed batch downstream")
	}
	if err := agg.states.Delete(context.Background(), state.SourceID); err != nil {
		log.Warn().Err(err).Str("sourceId", state.SourceID).Msg("could not remove batch state from external store")
	}
}

// dispatchSingleton emits the member immediately as a one-member batch. Duplicate
// singleton dispatch under a fast-path race is tolerated; downstream consumers are
// expected to be idempotent.
func (agg *Aggregator) dispatchSingleton(member Member) {
	now := agg.now()
	batch := &Batch{
		BatchID:   xid.New().String(),
		SourceID:  member.SourceID,
		MemberIDs: []string{member.ID},
		StartedAt: now,
		EndedAt:   now,
		FastPath:  true,
	}
	if err := agg.sink.Submit(batch); err != nil {
		log.Error().Err(err).Str("batchId", batch.BatchID).Str("sourceId", member.SourceID).Msg("failed to submit fast path batch downstream")
	}
}

func (agg *Aggregator) persistState(state *BatchState) {
	if err := agg.states.Save(context.Background(), state.SourceID, state, agg.settings.StateTTL); err != nil {
		log.Warn().Err(err).Str("sourceId", state.SourceID).Msg("could not persist batch state to external store")
	}
}
