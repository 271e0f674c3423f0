// Package reconnect recovers a dropped room connection: every per-room
// channel is resubscribed with exponential backoff, and each attempt
// refetches the canonical snapshot so recovery never depends solely on
// broadcast messages arriving.
package reconnect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ludorush/ludorush/go/internal/models"
)

// ErrExhausted is returned when the attempt budget runs out; recovery
// then requires a manual Retry.
var ErrExhausted = errors.New("reconnect attempts exhausted")

// Config tunes the backoff schedule.
type Config struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultConfig is the shipped backoff schedule: 500ms doubling to a
// 15s ceiling, eight attempts.
func DefaultConfig() Config {
	return Config{
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    15 * time.Second,
		Multiplier:  2,
		MaxAttempts: 8,
	}
}

// State is the manager's externally visible condition.
type State int

const (
	StateIdle State = iota
	StateReconnecting
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReconnecting:
		return "reconnecting"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Hooks are the recovery collaborators supplied by the session.
type Hooks struct {
	// Resubscribe re-establishes every per-room channel subscription.
	Resubscribe func(ctx context.Context) error
	// FetchSnapshot reads the canonical snapshot from the store.
	FetchSnapshot func(ctx context.Context) (*models.MatchSnapshot, error)
	// OnRecovered receives the refetched snapshot on success.
	OnRecovered func(*models.MatchSnapshot)
	// OnExhausted fires when the attempt budget is spent.
	OnExhausted func()
}

// Manager drives reconnection for one room.
type Manager struct {
	cfg   Config
	clock clockwork.Clock
	hooks Hooks

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	attempt int
}

// NewManager returns an idle reconnection manager.
func NewManager(cfg Config, clock clockwork.Clock, hooks Hooks) *Manager {
	return &Manager{cfg: cfg, clock: clock, hooks: hooks}
}

// State returns the current recovery condition.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionLost starts the backoff loop. Already reconnecting or
// exhausted states are left alone; exhaustion requires Retry.
func (m *Manager) ConnectionLost(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	m.attempt = 0
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(runCtx)
}

// SetOnline feeds host online/offline transitions: going online
// proactively triggers a reconnect attempt, going offline is noted but
// the loop keeps its own schedule.
func (m *Manager) SetOnline(ctx context.Context, online bool) {
	if online {
		log.Info().Msg("host reports online, triggering reconnect")
		m.ConnectionLost(ctx)
	} else {
		log.Warn().Msg("host reports offline")
	}
}

// Retry clears the exhausted state and starts a fresh attempt budget.
func (m *Manager) Retry(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateExhausted {
		m.mu.Unlock()
		return
	}
	m.state = StateIdle
	m.mu.Unlock()
	m.ConnectionLost(ctx)
}

// Stop aborts any in-flight recovery, for teardown.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.state == StateReconnecting {
		m.state = StateIdle
	}
}

// DelayFor returns the backoff delay before the given zero-based
// attempt.
func (m *Manager) DelayFor(attempt int) time.Duration {
	d := m.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * m.cfg.Multiplier)
		if d >= m.cfg.MaxDelay {
			return m.cfg.MaxDelay
		}
	}
	if d > m.cfg.MaxDelay {
		return m.cfg.MaxDelay
	}
	return d
}

func (m *Manager) run(ctx context.Context) {
	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		m.mu.Lock()
		m.attempt = attempt
		m.mu.Unlock()

		delay := m.DelayFor(attempt)
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(delay):
		}

		log.Info().Int("attempt", attempt+1).Dur("delay", delay).Msg("reconnect attempt")

		if err := m.attemptOnce(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect attempt failed")
			continue
		}
		return
	}

	m.mu.Lock()
	m.state = StateExhausted
	m.mu.Unlock()

	log.Error().Int("attempts", m.cfg.MaxAttempts).Msg("reconnect budget exhausted, manual retry required")
	if m.hooks.OnExhausted != nil {
		m.hooks.OnExhausted()
	}
}

// attemptOnce resubscribes the channels and refetches the snapshot;
// both must succeed for the attempt to count as recovery.
func (m *Manager) attemptOnce(ctx context.Context) error {
	if err := m.hooks.Resubscribe(ctx); err != nil {
		return err
	}
	snap, err := m.hooks.FetchSnapshot(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()

	log.Info().Msg("reconnected and snapshot refetched")
	if m.hooks.OnRecovered != nil {
		m.hooks.OnRecovered(snap)
	}
	return nil
}
