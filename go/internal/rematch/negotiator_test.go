package rematch

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestNegotiator_AcceptResolvesBeforeTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	outcomes := make(chan Outcome, 1)
	n := NewNegotiator(DefaultTimeout, clock, func(o Outcome) { outcomes <- o })

	if !n.Request() {
		t.Fatal("first request rejected")
	}
	if n.Request() {
		t.Fatal("second request allowed while one is pending")
	}

	if err := n.Resolve(OutcomeAccepted); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	select {
	case o := <-outcomes:
		if o != OutcomeAccepted {
			t.Fatalf("outcome = %s, want accepted", o)
		}
	case <-time.After(time.Second):
		t.Fatal("no outcome delivered")
	}

	// The armed timer must not fire a second outcome.
	clock.Advance(DefaultTimeout + time.Second)
	select {
	case o := <-outcomes:
		t.Fatalf("resolved negotiation produced extra outcome %s", o)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNegotiator_TimesOutUnanswered(t *testing.T) {
	clock := clockwork.NewFakeClock()
	outcomes := make(chan Outcome, 1)
	n := NewNegotiator(DefaultTimeout, clock, func(o Outcome) { outcomes <- o })

	n.ObserveRequest()
	if pending, inbound := n.Pending(); !pending || !inbound {
		t.Fatalf("Pending() = %v,%v, want pending inbound", pending, inbound)
	}

	clock.BlockUntil(1)
	clock.Advance(DefaultTimeout + time.Second)

	select {
	case o := <-outcomes:
		if o != OutcomeTimeout {
			t.Fatalf("outcome = %s, want timeout", o)
		}
	case <-time.After(time.Second):
		t.Fatal("unanswered request never timed out")
	}

	if err := n.Resolve(OutcomeDeclined); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("Resolve after timeout error = %v, want ErrNoPendingRequest", err)
	}
}

func TestNegotiator_DeclineOutcome(t *testing.T) {
	clock := clockwork.NewFakeClock()
	outcomes := make(chan Outcome, 1)
	n := NewNegotiator(DefaultTimeout, clock, func(o Outcome) { outcomes <- o })

	n.ObserveRequest()
	if err := n.Resolve(OutcomeDeclined); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if o := <-outcomes; o != OutcomeDeclined {
		t.Fatalf("outcome = %s, want declined", o)
	}

	// A fresh negotiation may start after resolution.
	if !n.Request() {
		t.Fatal("new request rejected after previous resolution")
	}
	n.Stop()
}
