package llm

import (
	"sync"
	"time"
)

// ConnState is the availability state of the model endpoint.
type ConnState int

const (
	StateUnknown     ConnState = iota // no probe or invocation yet
	StateConnecting                   // probe in flight, informational only
	StateReady                        // last exchange succeeded
	StateUnreachable                  // last exchange failed at the transport level
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateUnreachable:
		return "unreachable"
	}
	return "unknown"
}

// ConnSnapshot is a point-in-time read of the tracker state.
type ConnSnapshot struct {
	State          ConnState `json:"-"`
	ModelID        string    `json:"model_id,omitempty"`
	LastTransition time.Time `json:"last_transition"`
}

// Tracker owns the endpoint availability state machine. The client reports
// every success and failure; the orchestrator reads it to fail fast while the
// endpoint is known down, then lets a single probe through once the cool-down
// has elapsed (half-open).
type Tracker struct {
	mu             sync.RWMutex
	state          ConnState
	modelID        string
	lastTransition time.Time
	probing        bool

	// Cooldown is how long dispatch stays short-circuited after the
	// endpoint is marked unreachable.
	Cooldown time.Duration

	OnStateChange func(from, to ConnState)
}

// NewTracker creates a tracker in the Unknown state.
func NewTracker(cooldown time.Duration) *Tracker {
	return &Tracker{
		state:          StateUnknown,
		lastTransition: time.Now(),
		Cooldown:       cooldown,
	}
}

// Snapshot returns the current state without blocking writers for long.
func (t *Tracker) Snapshot() ConnSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ConnSnapshot{
		State:          t.state,
		ModelID:        t.modelID,
		LastTransition: t.lastTransition,
	}
}

// RecordConnecting notes that a startup probe is in flight. Informational
// only; it never blocks callers and only applies before the first result.
func (t *Tracker) RecordConnecting() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateUnknown {
		t.setState(StateConnecting)
	}
}

// RecordSuccess marks the endpoint reachable with the model that answered.
func (t *Tracker) RecordSuccess(modelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probing = false
	t.modelID = modelID
	t.setState(StateReady)
}

// RecordFailure marks the endpoint unreachable for transport-level failures.
// Model-level failures (unavailable model, bad payload) mean the endpoint is
// up, so they keep the current state.
func (t *Tracker) RecordFailure(kind ErrorKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probing = false
	if kind == KindConnectionRefused || kind == KindTimeout {
		t.setState(StateUnreachable)
	}
}

// Admission is the tracker's verdict on an incoming request.
type Admission int

const (
	// AdmitDispatch lets the request fan out normally.
	AdmitDispatch Admission = iota
	// AdmitProbe grants this request the single half-open recovery probe.
	AdmitProbe
	// AdmitReject short-circuits the request; the endpoint is known down.
	AdmitReject
)

// Admit decides what an incoming request may do. While unreachable and
// inside the cool-down every request is rejected without touching the
// network. Once the cool-down elapses exactly one request is granted a
// recovery probe (moving the state to Connecting); requests arriving while
// that probe is in flight are still rejected. The probe's
// RecordSuccess/RecordFailure settles the state either way.
func (t *Tracker) Admit() Admission {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateUnreachable:
		if time.Since(t.lastTransition) < t.Cooldown {
			return AdmitReject
		}
		t.probing = true
		t.setState(StateConnecting)
		return AdmitProbe
	case StateConnecting:
		if t.probing {
			return AdmitReject
		}
		return AdmitDispatch
	}
	return AdmitDispatch
}

func (t *Tracker) setState(next ConnState) {
	if t.state == next {
		return
	}
	prev := t.state
	t.state = next
	t.lastTransition = time.Now()
	if t.OnStateChange != nil {
		t.OnStateChange(prev, next)
	}
}
