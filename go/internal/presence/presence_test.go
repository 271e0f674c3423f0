package presence

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ludorush/ludorush/go/internal/wire"
)

func pongFor(p wire.PingPayload) wire.PongPayload {
	return wire.PongPayload{ID: p.ID, TS: p.TS}
}

func pongPayload(id string) wire.PongPayload {
	return wire.PongPayload{ID: id}
}

func TestTracker_OnlineAfterTwoHeartbeats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(DefaultTrackerConfig(), clock, "opp")

	if got := tr.ObserveHeartbeat("opp"); got != TransitionNone {
		t.Fatalf("first heartbeat transition = %v, want none", got)
	}
	if tr.Online() {
		t.Fatal("one heartbeat must not count as online")
	}
	if got := tr.ObserveHeartbeat("opp"); got != TransitionOnline {
		t.Fatalf("second heartbeat transition = %v, want online", got)
	}
}

func TestTracker_IgnoresOtherUsers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(DefaultTrackerConfig(), clock, "opp")

	tr.ObserveHeartbeat("someone-else")
	tr.ObserveHeartbeat("someone-else")
	if tr.Online() {
		t.Fatal("heartbeats from other users must not mark opponent online")
	}
}

func TestTracker_OfflineAfterMissedHeartbeats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultTrackerConfig()
	tr := NewTracker(cfg, clock, "opp")

	tr.ObserveHeartbeat("opp")
	tr.ObserveHeartbeat("opp")

	// Within the allowance nothing changes.
	clock.Advance(2 * cfg.Interval)
	if got := tr.Check(); got != TransitionNone {
		t.Fatalf("transition = %v before miss threshold, want none", got)
	}

	clock.Advance(2 * cfg.Interval)
	if got := tr.Check(); got != TransitionOffline {
		t.Fatalf("transition = %v past miss threshold, want offline", got)
	}
	if tr.Online() {
		t.Fatal("tracker still online after offline transition")
	}

	// Presence resuming flips back online without re-counting from zero.
	if got := tr.ObserveHeartbeat("opp"); got != TransitionOnline {
		t.Fatalf("resume transition = %v, want online", got)
	}
}

func TestMonitor_SmoothsRoundTrips(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMonitor(DefaultMonitorConfig(), clock)

	ping := m.NextPing()
	clock.Advance(100 * time.Millisecond)
	rtt, ok := m.ObservePong(pongFor(ping))
	if !ok {
		t.Fatal("pong for outstanding ping not matched")
	}
	if rtt != 100 {
		t.Fatalf("rtt = %v, want 100", rtt)
	}
	if m.Latency() != 100 {
		t.Fatalf("first sample should seed EMA, got %v", m.Latency())
	}

	ping = m.NextPing()
	clock.Advance(200 * time.Millisecond)
	if _, ok := m.ObservePong(pongFor(ping)); !ok {
		t.Fatal("second pong not matched")
	}
	// EMA with alpha 0.2: 0.2*200 + 0.8*100 = 120.
	if got := m.Latency(); got != 120 {
		t.Fatalf("smoothed latency = %v, want 120", got)
	}
}

func TestMonitor_UnknownPongIgnored(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMonitor(DefaultMonitorConfig(), clock)

	if _, ok := m.ObservePong(pongPayload("no-such-ping")); ok {
		t.Fatal("unknown pong must not be scored")
	}
}

func TestMonitor_TimedOutPingsCountAsDrops(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultMonitorConfig()
	m := NewMonitor(cfg, clock)

	stale := m.NextPing()
	clock.Advance(cfg.PingTimeout + time.Second)
	m.NextPing() // expires the stale ping

	if m.DropRate() == 0 {
		t.Fatal("timed-out ping not scored as drop")
	}
	if _, ok := m.ObservePong(pongFor(stale)); ok {
		t.Fatal("expired ping must not accept a late pong")
	}
}

func TestMonitor_QualityTiersAndCadence(t *testing.T) {
	tests := []struct {
		name    string
		rtt     time.Duration
		want    Quality
		cadence time.Duration
	}{
		{name: "excellent", rtt: 30 * time.Millisecond, want: QualityExcellent, cadence: 2 * time.Second},
		{name: "good", rtt: 120 * time.Millisecond, want: QualityGood, cadence: 2 * time.Second},
		{name: "fair", rtt: 250 * time.Millisecond, want: QualityFair, cadence: 5 * time.Second},
		{name: "poor", rtt: 500 * time.Millisecond, want: QualityPoor, cadence: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			m := NewMonitor(DefaultMonitorConfig(), clock)

			ping := m.NextPing()
			clock.Advance(tt.rtt)
			m.ObservePong(pongFor(ping))

			if got := m.Classify(); got != tt.want {
				t.Fatalf("Classify() = %s, want %s", got, tt.want)
			}
			if got := m.Cadence(); got != tt.cadence {
				t.Fatalf("Cadence() = %v, want %v", got, tt.cadence)
			}
		})
	}
}

func TestMonitor_AdvisoryRateLimited(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultMonitorConfig()
	m := NewMonitor(cfg, clock)

	ping := m.NextPing()
	clock.Advance(600 * time.Millisecond)
	m.ObservePong(pongFor(ping))

	if !m.ShouldAdvise() {
		t.Fatal("poor link should raise the first advisory")
	}
	if m.ShouldAdvise() {
		t.Fatal("advisory must be rate-limited")
	}

	clock.Advance(cfg.AdvisoryInterval + time.Second)
	if !m.ShouldAdvise() {
		t.Fatal("advisory should fire again after the rate-limit window")
	}
}
