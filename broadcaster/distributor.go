package broadcaster

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perimetric/sentinel-pipeline/breaker"
)

var errReconnectRejected = errors.New("distribution reconnect rejected by circuit breaker")

// subscription abstracts the distribution channel receive side so the supervision and
// degraded-mode logic can be exercised without a live backend
type subscription interface {
	Receive(ctx context.Context) (body []byte, ack func(), err error)
	Shutdown(ctx context.Context) error
}

// Settings govern reconnect bounds and supervision cadence
type Settings struct {
	SubscriptionURL      string
	MaxReconnectAttempts uint
	SuperviseInterval    time.Duration
}

// Distributor feeds the hub from the internal distribution channel. Every subscription
// (re)establishment is recorded on a dedicated circuit breaker; once the breaker stops
// permitting calls after the bounded reconnect attempts, the distributor enters degraded
// mode: it stops retrying, tells current subscribers once, and keeps accepting new
// subscriber connections. A supervisor task probes for recovery and also restarts a
// listener that died silently, recording that restart like any other call.
type Distributor struct {
	hub      *Hub
	gate     *breaker.Breaker
	settings Settings

	mu           sync.Mutex
	degraded     bool
	listening    bool
	sub          subscription
	cancelListen context.CancelFunc

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDistributor creates a distributor feeding the given hub, guarded by gate
func NewDistributor(hub *Hub, gate *breaker.Breaker, settings Settings) *Distributor {
	if settings.MaxReconnectAttempts == 0 {
		settings.MaxReconnectAttempts = 3
	}
	if settings.SuperviseInterval == 0 {
		settings.SuperviseInterval = 10 * time.Second
	}
	return &Distributor{
		hub:      hub,
		gate:     gate,
		settings: settings,
		stopChan: make(chan struct{}),
	}
}

// IsDegraded reports whether real-time distribution is currently suspended
func (d *Distributor) IsDegraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.degraded
}

// Start establishes the distribution subscription and launches the supervisor. An
// initial connect failure does not fail Start; the supervisor keeps probing.
func (d *Distributor) Start(ctx context.Context) {
	if sub, err := d.connect(ctx); err == nil {
		d.startListener(sub)
	} else {
		log.Error().Err(err).Msg("initial distribution subscription failed; supervisor will retry")
	}
	d.wg.Add(1)
	go d.supervise()
}

// Stop terminates the listener and supervisor and shuts the subscription down
func (d *Distributor) Stop() {
	close(d.stopChan)
	d.mu.Lock()
	if d.cancelListen != nil {
		d.cancelListen()
	}
	sub := d.sub
	d.mu.Unlock()
	d.wg.Wait()
	if sub != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sub.Shutdown(shutdownCtx)
	}
}

// connect opens the subscription, recording the outcome on the breaker
func (d *Distributor) connect(ctx context.Context) (subscription, error) {
	sub, err := openSubscriptionFunc(ctx, d.settings.SubscriptionURL)
	if err != nil {
		d.gate.RecordFailure()
		return nil, err
	}
	d.gate.RecordSuccess()
	return sub, nil
}

func (d *Distributor) startListener(sub subscription) {
	listenCtx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.sub = sub
	d.cancelListen = cancel
	d.listening = true
	d.mu.Unlock()
	d.wg.Add(1)
	go d.listen(listenCtx, sub)
}

// listen pumps distribution messages into the hub until the subscription fails beyond
// the bounded reconnect budget or the distributor stops
func (d *Distributor) listen(ctx context.Context, sub subscription) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.listening = false
		d.mu.Unlock()
	}()
	for {
		body, ack, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.gate.RecordFailure()
			log.Error().Err(err).Msg("distribution receive failed")
			next, reconnectErr := d.reconnect(ctx)
			if reconnectErr != nil {
				d.enterDegraded()
				return
			}
			sub = next
			d.mu.Lock()
			d.sub = sub
			d.mu.Unlock()
			continue
		}
		message := &Message{}
		if unmarshalErr := json.Unmarshal(body, message); unmarshalErr != nil {
			log.Warn().Err(unmarshalErr).Msg("discarding malformed distribution message")
			ack()
			continue
		}
		d.hub.Publish(message)
		ack()
	}
}

// reconnect attempts to re-establish the subscription within the bounded budget; it
// gives up early once the breaker stops permitting calls
func (d *Distributor) reconnect(ctx context.Context) (subscription, error) {
	var lastErr error
	for attempt := uint(1); attempt <= d.settings.MaxReconnectAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !d.gate.Allow() {
			log.Warn().Msg("circuit breaker rejected distribution reconnect")
			return nil, errReconnectRejected
		}
		sub, err := d.connect(ctx)
		if err == nil {
			return sub, nil
		}
		lastErr = err
		log.Warn().Err(err).Uint("attempt", attempt).Msg("distribution reconnect attempt failed")
	}
	return nil, lastErr
}

func (d *Distributor) enterDegraded() {
	d.mu.Lock()
	if d.degraded {
		d.mu.Unlock()
		return
	}
	d.degraded = true
	d.mu.Unlock()
	log.Warn().Msg("broadcaster entering degraded mode; real-time distribution suspended")
	d.hub.Publish(NewMessage(TypeDegraded, map[string]string{"reason": "distribution channel unavailable"}))
}

func (d *Distributor) clearDegraded() {
	d.mu.Lock()
	wasDegraded := d.degraded
	d.degraded = false
	d.mu.Unlock()
	if wasDegraded {
		log.Info().Msg("broadcaster recovered; real-time distribution resumed")
		d.hub.Publish(NewMessage(TypeRecovered, map[string]string{"reason": "distribution channel restored"}))
	}
}

// supervise periodically verifies the listener is actually alive and probes for
// recovery while degraded
func (d *Distributor) supervise() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.settings.SuperviseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.checkOnce()
		case <-d.stopChan:
			return
		}
	}
}

func (d *Distributor) checkOnce() {
	d.mu.Lock()
	degraded := d.degraded
	listening := d.listening
	d.mu.Unlock()
	if listening {
		return
	}
	if !d.gate.Allow() {
		if !degraded {
			// the listener died and the breaker will not permit a restart yet
			d.enterDegraded()
		}
		return
	}
	probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	sub, err := d.connect(probeCtx)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("supervisor probe failed to restore distribution subscription")
		if !degraded {
			d.enterDegraded()
		}
		return
	}
	d.startListener(sub)
	d.clearDegraded()
	if !degraded {
		log.Warn().Msg("supervisor restarted a silently dead distribution listener")
	}
}
