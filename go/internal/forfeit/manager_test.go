package forfeit

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestManager_ExpiresAfterGraceWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	expired := make(chan struct{})
	var ticks atomic.Int64

	m := NewManager(DefaultConfig(), clock,
		func(time.Duration) { ticks.Add(1) },
		func() { close(expired) })

	m.OpponentLost()
	clock.BlockUntil(1)

	for i := 0; i < 61; i++ {
		clock.Advance(time.Second)
	}

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not expire after grace window")
	}
	if m.Running() {
		t.Fatal("manager still running after expiry")
	}
	if ticks.Load() == 0 {
		t.Fatal("no countdown ticks observed")
	}
}

func TestManager_CancelledWhenOpponentReturns(t *testing.T) {
	clock := clockwork.NewFakeClock()
	expired := make(chan struct{}, 1)

	m := NewManager(DefaultConfig(), clock, nil, func() { expired <- struct{}{} })

	m.OpponentLost()
	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	m.OpponentBack()
	if m.Running() {
		t.Fatal("manager running after cancellation")
	}

	clock.Advance(2 * time.Minute)
	select {
	case <-expired:
		t.Fatal("cancelled countdown still expired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_SecondLossKeepsOriginalDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	expired := make(chan struct{})

	m := NewManager(DefaultConfig(), clock, nil, func() { close(expired) })

	m.OpponentLost()
	clock.BlockUntil(1)
	clock.Advance(50 * time.Second)

	// A duplicate absence report must not push the deadline out.
	m.OpponentLost()
	for i := 0; i < 11; i++ {
		clock.Advance(time.Second)
	}

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("original deadline not honored after duplicate absence report")
	}
}
