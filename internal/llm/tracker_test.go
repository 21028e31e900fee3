package llm

import (
	"testing"
	"time"
)

func TestTrackerStartsUnknown(t *testing.T) {
	tr := NewTracker(time.Minute)
	snap := tr.Snapshot()
	if snap.State != StateUnknown {
		t.Errorf("expected unknown, got %s", snap.State)
	}
	if tr.Admit() != AdmitDispatch {
		t.Error("unknown state should admit dispatch")
	}
}

func TestTrackerSuccessMovesToReady(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.RecordConnecting()
	if tr.Snapshot().State != StateConnecting {
		t.Error("expected connecting after RecordConnecting")
	}

	tr.RecordSuccess("qwen-7b")
	snap := tr.Snapshot()
	if snap.State != StateReady {
		t.Errorf("expected ready, got %s", snap.State)
	}
	if snap.ModelID != "qwen-7b" {
		t.Errorf("expected model id recorded, got %q", snap.ModelID)
	}
}

func TestTrackerTransportFailureMovesToUnreachable(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.RecordSuccess("m")

	tr.RecordFailure(KindConnectionRefused)
	if tr.Snapshot().State != StateUnreachable {
		t.Error("connection refused should mark unreachable")
	}
}

func TestTrackerModelFailureKeepsState(t *testing.T) {
	// An unavailable model or a bad payload means the endpoint answered,
	// so reachability is unchanged.
	tr := NewTracker(time.Minute)
	tr.RecordSuccess("m")

	tr.RecordFailure(KindModelUnavailable)
	if tr.Snapshot().State != StateReady {
		t.Error("model-level failure should not mark unreachable")
	}
	tr.RecordFailure(KindInvalidResponse)
	if tr.Snapshot().State != StateReady {
		t.Error("invalid response should not mark unreachable")
	}
}

func TestTrackerRejectsDuringCooldown(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.RecordFailure(KindTimeout)

	if got := tr.Admit(); got != AdmitReject {
		t.Errorf("expected reject during cool-down, got %v", got)
	}
}

func TestTrackerHalfOpenGrantsSingleProbe(t *testing.T) {
	tr := NewTracker(10 * time.Millisecond)
	tr.RecordFailure(KindConnectionRefused)

	time.Sleep(20 * time.Millisecond)

	if got := tr.Admit(); got != AdmitProbe {
		t.Fatalf("expected probe grant after cool-down, got %v", got)
	}
	// While the probe is in flight everyone else is still rejected.
	if got := tr.Admit(); got != AdmitReject {
		t.Errorf("expected reject while probe in flight, got %v", got)
	}

	tr.RecordSuccess("m")
	if got := tr.Admit(); got != AdmitDispatch {
		t.Errorf("expected dispatch after probe success, got %v", got)
	}
}

func TestTrackerFailedProbeRearmsCooldown(t *testing.T) {
	tr := NewTracker(time.Hour)
	tr.RecordFailure(KindConnectionRefused)

	// Force the cool-down to look elapsed.
	tr.mu.Lock()
	tr.lastTransition = time.Now().Add(-2 * time.Hour)
	tr.mu.Unlock()

	if got := tr.Admit(); got != AdmitProbe {
		t.Fatalf("expected probe grant, got %v", got)
	}
	tr.RecordFailure(KindConnectionRefused)

	if tr.Snapshot().State != StateUnreachable {
		t.Error("failed probe should return to unreachable")
	}
	if got := tr.Admit(); got != AdmitReject {
		t.Errorf("expected reject after failed probe, got %v", got)
	}
}

func TestTrackerNotifiesStateChanges(t *testing.T) {
	tr := NewTracker(time.Minute)
	var transitions []ConnState
	tr.OnStateChange = func(from, to ConnState) {
		transitions = append(transitions, to)
	}

	tr.RecordSuccess("m")
	tr.RecordSuccess("m") // no transition, already ready
	tr.RecordFailure(KindConnectionRefused)

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0] != StateReady || transitions[1] != StateUnreachable {
		t.Errorf("unexpected transition sequence: %v", transitions)
	}
}
