// Package reconcile detects and corrects state divergence between
// peers. Both sides broadcast a periodic board checksum; sustained
// mismatch escalates to a hard resync from the canonical store. The
// engine here is pure bookkeeping; the session owns the ticker and
// performs the fetch.
package reconcile

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Decision is the verdict on one received opponent checksum.
type Decision int

const (
	// DecisionMatch means the peers agree; the mismatch counter resets.
	DecisionMatch Decision = iota
	// DecisionIgnored means a mismatch fell inside the post-action grace
	// window: the opponent may simply not have applied our action yet.
	DecisionIgnored
	// DecisionCounted means a genuine mismatch was recorded but the
	// resync gate has not opened.
	DecisionCounted
	// DecisionResync means sustained mismatch past the threshold with
	// the cooldown elapsed: fetch the canonical snapshot and overwrite.
	DecisionResync
)

func (d Decision) String() string {
	switch d {
	case DecisionMatch:
		return "match"
	case DecisionIgnored:
		return "ignored"
	case DecisionCounted:
		return "counted"
	case DecisionResync:
		return "resync"
	default:
		return "unknown"
	}
}

// Config tunes the reconciliation engine.
type Config struct {
	// Interval between checksum broadcasts during active play.
	Interval time.Duration
	// GraceWindow after a locally initiated action during which
	// mismatches are ignored.
	GraceWindow time.Duration
	// MismatchThreshold is the number of counted mismatches required
	// before a resync may fire.
	MismatchThreshold int
	// Cooldown is the minimum gap between resync fetches.
	Cooldown time.Duration
}

// DefaultConfig matches the cadence the game client ships with.
func DefaultConfig() Config {
	return Config{
		Interval:          150 * time.Millisecond,
		GraceWindow:       2 * time.Second,
		MismatchThreshold: 3,
		Cooldown:          5 * time.Second,
	}
}

// Engine accumulates checksum verdicts for one room.
type Engine struct {
	cfg   Config
	clock clockwork.Clock

	mismatches      int
	lastLocalAction time.Time
	lastResync      time.Time
}

// NewEngine returns a reconciliation engine driven by the given clock.
func NewEngine(cfg Config, clock clockwork.Clock) *Engine {
	return &Engine{cfg: cfg, clock: clock}
}

// NoteLocalAction opens the grace window. Called whenever this peer
// originates a state-mutating action.
func (e *Engine) NoteLocalAction() {
	e.lastLocalAction = e.clock.Now()
}

// NoteResync records a completed snapshot fetch and resets the counter.
func (e *Engine) NoteResync() {
	e.lastResync = e.clock.Now()
	e.mismatches = 0
}

// Mismatches returns the current counted mismatch streak.
func (e *Engine) Mismatches() int {
	return e.mismatches
}

// Compare judges the opponent's checksum against the local one.
func (e *Engine) Compare(local, remote string) Decision {
	if local == remote {
		e.mismatches = 0
		return DecisionMatch
	}

	now := e.clock.Now()
	if !e.lastLocalAction.IsZero() && now.Sub(e.lastLocalAction) < e.cfg.GraceWindow {
		return DecisionIgnored
	}

	e.mismatches++
	if e.mismatches < e.cfg.MismatchThreshold {
		return DecisionCounted
	}
	if !e.lastResync.IsZero() && now.Sub(e.lastResync) < e.cfg.Cooldown {
		return DecisionCounted
	}
	return DecisionResync
}
