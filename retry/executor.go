package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perimetric/sentinel-pipeline/queue"
)

// Status is the explicit terminal outcome of an Execute call; callers branch on it
// rather than unwrapping sentinel errors.
type Status int

const (
	// Succeeded means some attempt returned without error
	Succeeded Status = iota
	// DeadLettered means the job exhausted its retry budget, or failed fatally, and was
	// handed to the dead letter store
	DeadLettered
	// CircuitRejected means the guarding breaker refused the call; no dead letter record
	// is created since the job itself is not at fault
	CircuitRejected
)

// Outcome reports what happened to one job across all of its attempts
type Outcome struct {
	Status   Status
	Attempts uint
	Err      error
	Record   *queue.Record
}

// Config holds the backoff parameters; attempts are 1-indexed and attempt 1 carries no
// preceding delay.
type Config struct {
	MaxRetries      uint
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// Operation is the unit of retryable work
type Operation func(ctx context.Context) error

// Classifier distinguishes transient failures (worth retrying) from fatal ones
// (dead-lettered immediately without consuming retry budget)
type Classifier func(err error) bool

// FailureGate is the circuit breaker capability the executor needs; nil disables gating
type FailureGate interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

const jitterFraction = 0.25

var (
	errCircuitOpen = errors.New("circuit breaker rejected the call")

	// seam for deterministic tests
	sleepFunc = func(ctx context.Context, delay time.Duration) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
)

// Executor wraps operations with bounded exponential-backoff retry and dead letter
// fallback. One executor serves one source queue; it is safe for concurrent use.
type Executor struct {
	config      Config
	sourceQueue string
	store       queue.DeadLetterStore
	retryable   Classifier
	gate        FailureGate
}

// NewExecutor creates an executor. retryable may be nil, in which case every error is
// treated as transient. gate may be nil to disable circuit gating.
func NewExecutor(config Config, sourceQueue string, store queue.DeadLetterStore, retryable Classifier, gate FailureGate) *Executor {
	if store == nil {
		panic("dead letter store required")
	}
	if config.ExponentialBase < 1 {
		config.ExponentialBase = 2
	}
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	return &Executor{
		config:      config,
		sourceQueue: sourceQueue,
		store:       store,
		retryable:   retryable,
		gate:        gate,
	}
}

// Delay computes the backoff preceding the attempt after the given one failed:
// min(base * exponentialBase^(attempt-1), max), plus uniform(0, 0.25)*delay when jitter
// is on.
func (e *Executor) Delay(attempt uint) time.Duration {
	if attempt == 0 {
		return 0
	}
	delay := float64(e.config.BaseDelay) * math.Pow(e.config.ExponentialBase, float64(attempt-1))
	if maxDelay := float64(e.config.MaxDelay); e.config.MaxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if e.config.Jitter {
		delay += rand.Float64() * jitterFraction * delay
	}
	return time.Duration(delay)
}

// Execute runs the operation with retries. payload is the serialized original job used
// for dead letter preservation on exhaustion or fatal failure.
func (e *Executor) Execute(ctx context.Context, payload []byte, operation Operation) Outcome {
	maxAttempts := e.config.MaxRetries + 1
	var lastErr error
	var attempted uint
	for attempt := uint(1); attempt <= maxAttempts; attempt++ {
		if e.gate != nil && !e.gate.Allow() {
			// fast-fail without consuming retry budget or dependency resources
			return Outcome{Status: CircuitRejected, Attempts: attempted, Err: errCircuitOpen}
		}
		lastErr = operation(ctx)
		attempted = attempt
		if lastErr == nil {
			if e.gate != nil {
				e.gate.RecordSuccess()
			}
			return Outcome{Status: Succeeded, Attempts: attempt}
		}
		if !e.retryable(lastErr) {
			// fatal errors never earn a second attempt
			log.Error().Err(lastErr).Str("queue", e.sourceQueue).Msg("fatal error; dead lettering without retry")
			return e.deadLetter(payload, lastErr, attempt)
		}
		if e.gate != nil {
			e.gate.RecordFailure()
		}
		if attempt == maxAttempts {
			break
		}
		sleepFunc(ctx, e.Delay(attempt))
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}
	log.Error().Err(lastErr).Str("queue", e.sourceQueue).Uint("attempts", attempted).Msg("retries exhausted; dead lettering")
	return e.deadLetter(payload, lastErr, attempted)
}

func (e *Executor) deadLetter(payload []byte, cause error, attempts uint) Outcome {
	record := queue.NewRecord(e.sourceQueue, payload, cause, attempts)
	if err := e.store.Add(record); err != nil {
		// the record is lost only if the store itself fails; that must be loud
		log.Error().Err(err).Str("queue", e.sourceQueue).Msg("failed to persist dead letter record")
		return Outcome{Status: DeadLettered, Attempts: attempts, Err: cause}
	}
	return Outcome{Status: DeadLettered, Attempts: attempts, Err: cause, Record: record}
}
