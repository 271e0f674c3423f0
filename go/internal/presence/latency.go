package presence

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ludorush/ludorush/go/internal/wire"
)

// Quality classifies link health from smoothed latency and drop rate.
type Quality int

const (
	QualityExcellent Quality = iota
	QualityGood
	QualityFair
	QualityPoor
)

func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	case QualityPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// MonitorConfig tunes ping cadence and smoothing.
type MonitorConfig struct {
	// HealthyInterval and DegradedInterval are the adaptive ping
	// cadences: fast on a healthy link, backed off on a degraded one.
	HealthyInterval  time.Duration
	DegradedInterval time.Duration
	// PingTimeout is how long an unanswered ping counts as in flight
	// before it is scored as a drop.
	PingTimeout time.Duration
	// SmoothingAlpha is the EMA weight of the newest sample.
	SmoothingAlpha float64
	// WindowSize bounds the retained sample history.
	WindowSize int
	// AdvisoryInterval rate-limits the high-latency advisory.
	AdvisoryInterval time.Duration
}

// DefaultMonitorConfig matches the in-game connection indicator.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		HealthyInterval:  2 * time.Second,
		DegradedInterval: 5 * time.Second,
		PingTimeout:      4 * time.Second,
		SmoothingAlpha:   0.2,
		WindowSize:       32,
		AdvisoryInterval: 30 * time.Second,
	}
}

// Monitor measures round-trip time to the opponent via ping/pong
// echoes and classifies link quality.
type Monitor struct {
	cfg   MonitorConfig
	clock clockwork.Clock

	outstanding map[string]time.Time
	samples     []float64
	smoothed    float64
	haveSample  bool
	sent        int
	dropped     int

	lastAdvisory time.Time
}

// NewMonitor returns a latency monitor driven by the given clock.
func NewMonitor(cfg MonitorConfig, clock clockwork.Clock) *Monitor {
	return &Monitor{
		cfg:         cfg,
		clock:       clock,
		outstanding: make(map[string]time.Time),
	}
}

// NextPing issues a ping payload and records it as in flight. Pings
// unanswered past the timeout are scored as drops on the next call.
func (m *Monitor) NextPing() wire.PingPayload {
	now := m.clock.Now()
	for id, sentAt := range m.outstanding {
		if now.Sub(sentAt) > m.cfg.PingTimeout {
			delete(m.outstanding, id)
			m.dropped++
		}
	}

	id := uuid.New().String()
	m.outstanding[id] = now
	m.sent++
	return wire.PingPayload{ID: id, TS: now.UnixMilli()}
}

// ObservePong matches a pong to its ping and folds the round trip into
// the smoothed estimate. Unknown ids (already expired) return ok=false.
func (m *Monitor) ObservePong(p wire.PongPayload) (rttMillis float64, ok bool) {
	sentAt, known := m.outstanding[p.ID]
	if !known {
		return 0, false
	}
	delete(m.outstanding, p.ID)

	rtt := float64(m.clock.Now().Sub(sentAt).Microseconds()) / 1000.0
	if rtt < 0 {
		rtt = 0
	}

	if !m.haveSample {
		m.smoothed = rtt
		m.haveSample = true
	} else {
		a := m.cfg.SmoothingAlpha
		m.smoothed = a*rtt + (1-a)*m.smoothed
	}

	m.samples = append(m.samples, rtt)
	if len(m.samples) > m.cfg.WindowSize {
		m.samples = m.samples[len(m.samples)-m.cfg.WindowSize:]
	}
	return rtt, true
}

// Latency returns the smoothed round-trip estimate in milliseconds.
func (m *Monitor) Latency() float64 {
	return m.smoothed
}

// DropRate is the fraction of issued pings that timed out.
func (m *Monitor) DropRate() float64 {
	if m.sent == 0 {
		return 0
	}
	return float64(m.dropped) / float64(m.sent)
}

// Classify maps the smoothed latency and drop rate onto quality tiers.
func (m *Monitor) Classify() Quality {
	if !m.haveSample {
		return QualityGood
	}
	drop := m.DropRate()
	switch {
	case drop > 0.2 || m.smoothed >= 350:
		return QualityPoor
	case drop > 0.1 || m.smoothed >= 180:
		return QualityFair
	case m.smoothed >= 80:
		return QualityGood
	default:
		return QualityExcellent
	}
}

// Cadence returns the adaptive ping interval for the current quality.
func (m *Monitor) Cadence() time.Duration {
	if m.Classify() >= QualityFair {
		return m.cfg.DegradedInterval
	}
	return m.cfg.HealthyInterval
}

// ShouldAdvise reports whether a high-latency advisory may be shown
// now; it self-rate-limits to avoid repeated interruptions.
func (m *Monitor) ShouldAdvise() bool {
	if m.Classify() != QualityPoor {
		return false
	}
	now := m.clock.Now()
	if !m.lastAdvisory.IsZero() && now.Sub(m.lastAdvisory) < m.cfg.AdvisoryInterval {
		return false
	}
	m.lastAdvisory = now
	return true
}
