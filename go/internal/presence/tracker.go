// Package presence watches the opponent through heartbeat tracking and
// ping/pong latency measurement.
package presence

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// TrackerConfig tunes heartbeat presence detection.
type TrackerConfig struct {
	// Interval between our own heartbeat publishes; also the expected
	// cadence of the opponent's.
	Interval time.Duration
	// MissThreshold is how many consecutive expected heartbeats may be
	// missed before the opponent counts as absent.
	MissThreshold int
	// OnlineAfter is how many heartbeats must be observed before the
	// opponent counts as online at all.
	OnlineAfter int
}

// DefaultTrackerConfig matches the room presence channel cadence.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Interval:      3 * time.Second,
		MissThreshold: 3,
		OnlineAfter:   2,
	}
}

// Transition is a presence state change worth acting on.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionOnline
	TransitionOffline
)

// Tracker follows one opponent's heartbeats.
type Tracker struct {
	cfg   TrackerConfig
	clock clockwork.Clock

	opponentID string
	beats      int
	lastSeen   time.Time
	online     bool
}

// NewTracker watches heartbeats from opponentID.
func NewTracker(cfg TrackerConfig, clock clockwork.Clock, opponentID string) *Tracker {
	return &Tracker{cfg: cfg, clock: clock, opponentID: opponentID}
}

// ObserveHeartbeat records a heartbeat and reports any transition.
// Heartbeats from other users are ignored.
func (t *Tracker) ObserveHeartbeat(userID string) Transition {
	if userID != t.opponentID {
		return TransitionNone
	}
	t.beats++
	t.lastSeen = t.clock.Now()
	if !t.online && t.beats >= t.cfg.OnlineAfter {
		t.online = true
		return TransitionOnline
	}
	return TransitionNone
}

// Check evaluates absence against the miss threshold. The session calls
// it on its heartbeat tick.
func (t *Tracker) Check() Transition {
	if !t.online {
		return TransitionNone
	}
	allowed := time.Duration(t.cfg.MissThreshold) * t.cfg.Interval
	if t.clock.Now().Sub(t.lastSeen) > allowed {
		t.online = false
		return TransitionOffline
	}
	return TransitionNone
}

// Online reports the current presence verdict.
func (t *Tracker) Online() bool {
	return t.online
}
