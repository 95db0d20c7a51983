package client

import (
	"sync"
	"time"
)

// Phase is the connection lifecycle phase of a client.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Backoff bounds.
const (
	MinBackoff = 1000 * time.Millisecond
	MaxBackoff = 10000 * time.Millisecond
)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d without blocking the caller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// ClockScheduler schedules on the wall clock.
type ClockScheduler struct{}

func (ClockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ReconnectOption configures a Reconnector.
type ReconnectOption func(*Reconnector)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) ReconnectOption {
	return func(r *Reconnector) {
		r.sched = s
	}
}

// OnPhase registers a callback for every phase change.
func OnPhase(fn func(Phase)) ReconnectOption {
	return func(r *Reconnector) {
		r.onPhase = fn
	}
}

// OnRetryScheduled registers a callback for every scheduled retry.
func OnRetryScheduled(fn func(delay time.Duration)) ReconnectOption {
	return func(r *Reconnector) {
		r.onRetry = fn
	}
}

// Reconnector keeps one logical connection alive. Retries are unbounded: each
// close schedules the next attempt after the current backoff, then doubles
// the backoff up to MaxBackoff. A successful open resets it to MinBackoff.
//
// At most one retry is pending at a time: Closed is ignored unless the
// machine is Connecting or Connected.
type Reconnector struct {
	connect func()
	sched   Scheduler
	onPhase func(Phase)
	onRetry func(time.Duration)

	mu      sync.Mutex
	phase   Phase
	backoff time.Duration
	pending Timer
	stopped bool
}

// NewReconnector creates a machine in the Disconnected phase. connect starts
// one connection attempt and must not block; its outcome is reported back
// through Opened, Closed or Failed.
func NewReconnector(connect func(), opts ...ReconnectOption) *Reconnector {
	r := &Reconnector{
		connect: connect,
		sched:   ClockScheduler{},
		phase:   Disconnected,
		backoff: MinBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start makes the first connection attempt immediately.
func (r *Reconnector) Start() {
	r.mu.Lock()
	if r.stopped || r.phase != Disconnected || r.pending != nil {
		r.mu.Unlock()
		return
	}
	r.phase = Connecting
	r.mu.Unlock()

	r.notify(Connecting)
	r.connect()
}

// Opened reports a successful connection.
func (r *Reconnector) Opened() {
	r.mu.Lock()
	if r.phase != Connecting {
		r.mu.Unlock()
		return
	}
	r.phase = Connected
	r.backoff = MinBackoff
	r.mu.Unlock()

	r.notify(Connected)
}

// Closed reports that the connection attempt failed or the connection ended.
func (r *Reconnector) Closed() {
	r.mu.Lock()
	if r.phase == Disconnected {
		r.mu.Unlock()
		return
	}
	r.phase = Disconnected

	if r.stopped {
		r.mu.Unlock()
		r.notify(Disconnected)
		return
	}

	delay := r.backoff
	r.pending = r.sched.AfterFunc(delay, r.retry)
	r.backoff *= 2
	if r.backoff > MaxBackoff {
		r.backoff = MaxBackoff
	}
	r.mu.Unlock()

	r.notify(Disconnected)
	if r.onRetry != nil {
		r.onRetry(delay)
	}
}

// Failed reports a connection error. closeConn force-closes the connection
// before the retry is scheduled; it may be nil when nothing is open.
func (r *Reconnector) Failed(closeConn func()) {
	if closeConn != nil {
		closeConn()
	}
	r.Closed()
}

// Stop cancels any pending retry. The machine makes no further attempts.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

// Phase returns the current phase.
func (r *Reconnector) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Backoff returns the delay the next retry will use.
func (r *Reconnector) Backoff() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backoff
}

func (r *Reconnector) retry() {
	r.mu.Lock()
	r.pending = nil
	if r.stopped || r.phase != Disconnected {
		r.mu.Unlock()
		return
	}
	r.phase = Connecting
	r.mu.Unlock()

	r.notify(Connecting)
	r.connect()
}

func (r *Reconnector) notify(p Phase) {
	if r.onPhase != nil {
		r.onPhase(p)
	}
}
