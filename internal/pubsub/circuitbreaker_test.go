package pubsub

import (
	"errors"
	"testing"
	"time"
)

var errProbe = errors.New("redis down")

func TestCircuitBreaker_TripsAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Hour)

	fail := func() error { return errProbe }
	for i := 0; i < 3; i++ {
		if err := cb.Execute(fail); !errors.Is(err, errProbe) {
			t.Fatalf("call %d = %v", i, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.CurrentState())
	}
	if err := cb.Execute(fail); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker let a call through: %v", err)
	}
}

func TestCircuitBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond)

	var transitions []State
	cb.OnStateChange = func(from, to State) { transitions = append(transitions, to) }

	cb.Execute(func() error { return errProbe })
	if cb.CurrentState() != StateOpen {
		t.Fatal("breaker did not trip")
	}

	time.Sleep(5 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe = %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Fatalf("state after successful probe = %v", cb.CurrentState())
	}
	// open → half-open → closed
	if len(transitions) != 3 || transitions[1] != StateHalfOpen || transitions[2] != StateClosed {
		t.Fatalf("transitions = %v", transitions)
	}
}

func TestCircuitBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond)
	cb.Execute(func() error { return errProbe })

	time.Sleep(5 * time.Millisecond)
	cb.Execute(func() error { return errProbe })
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", cb.CurrentState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Hour)
	cb.Execute(func() error { return errProbe })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errProbe })
	if cb.CurrentState() != StateClosed {
		t.Fatalf("state = %v, want closed (failures interleaved with success)", cb.CurrentState())
	}
}
