// Package forfeit escalates sustained opponent absence into a
// unilateral win and handles explicit concession. The manager owns only
// the countdown; the session wires the terminal effects (snapshot
// close, reward credit, notifications).
package forfeit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config tunes the disconnect grace window.
type Config struct {
	// GraceWindow is how long the opponent may stay absent during play
	// before the local player is declared winner.
	GraceWindow time.Duration
	// TickInterval drives the visible countdown.
	TickInterval time.Duration
}

// DefaultConfig is the sixty-second disconnect window.
func DefaultConfig() Config {
	return Config{
		GraceWindow:  60 * time.Second,
		TickInterval: time.Second,
	}
}

// Manager runs the disconnect countdown for one room.
type Manager struct {
	cfg   Config
	clock clockwork.Clock

	// onTick reports remaining time for the countdown display; onExpire
	// fires exactly once when the window closes.
	onTick   func(remaining time.Duration)
	onExpire func()

	mu       sync.Mutex
	deadline time.Time
	cancelCh chan struct{}
	running  bool
}

// NewManager returns a stopped countdown manager.
func NewManager(cfg Config, clock clockwork.Clock, onTick func(time.Duration), onExpire func()) *Manager {
	return &Manager{cfg: cfg, clock: clock, onTick: onTick, onExpire: onExpire}
}

// OpponentLost starts the grace countdown. A countdown already running
// keeps its original deadline.
func (m *Manager) OpponentLost() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.deadline = m.clock.Now().Add(m.cfg.GraceWindow)
	m.cancelCh = make(chan struct{})

	log.Warn().Dur("grace_window", m.cfg.GraceWindow).Msg("opponent absent, disconnect countdown started")
	go m.run(m.cancelCh, m.deadline)
}

// OpponentBack cancels the countdown when presence resumes.
func (m *Manager) OpponentBack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.cancelCh)
	log.Info().Msg("opponent presence resumed, disconnect countdown cancelled")
}

// Running reports whether a countdown is in flight.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Stop tears the countdown down without firing, for phase exit.
func (m *Manager) Stop() {
	m.OpponentBack()
}

func (m *Manager) run(cancel <-chan struct{}, deadline time.Time) {
	ticker := m.clock.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.Chan():
			remaining := deadline.Sub(m.clock.Now())
			if remaining > 0 {
				if m.onTick != nil {
					m.onTick(remaining)
				}
				continue
			}

			m.mu.Lock()
			expired := m.running
			m.running = false
			m.mu.Unlock()

			if expired && m.onExpire != nil {
				log.Warn().Msg("disconnect grace window expired, declaring local win")
				m.onExpire()
			}
			return
		}
	}
}
