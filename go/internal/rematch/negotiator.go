// Package rematch runs the post-match request/accept/decline handshake
// with a timeout default. The session wires broadcasting and, for the
// host, re-initialization of the canonical snapshot.
package rematch

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Outcome ends a negotiation.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeDeclined Outcome = "declined"
	OutcomeTimeout  Outcome = "timeout"
)

var ErrNoPendingRequest = errors.New("no pending rematch request")

// DefaultTimeout is how long the opponent has to answer.
const DefaultTimeout = 30 * time.Second

// Negotiator tracks one room's rematch handshake. Either side may
// initiate; an unanswered request resolves to the timeout outcome.
type Negotiator struct {
	timeout   time.Duration
	clock     clockwork.Clock
	onOutcome func(Outcome)

	mu       sync.Mutex
	pending  bool
	inbound  bool // true when the pending request came from the opponent
	cancelCh chan struct{}
}

// NewNegotiator reports resolved outcomes through onOutcome.
func NewNegotiator(timeout time.Duration, clock clockwork.Clock, onOutcome func(Outcome)) *Negotiator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Negotiator{timeout: timeout, clock: clock, onOutcome: onOutcome}
}

// Request starts an outbound negotiation and arms the timeout. Returns
// false when one is already pending.
func (n *Negotiator) Request() bool {
	return n.open(false)
}

// ObserveRequest records the opponent's inbound request; the same
// timeout applies to our answer.
func (n *Negotiator) ObserveRequest() bool {
	return n.open(true)
}

// Pending reports whether a negotiation is unresolved; inbound is true
// when it is the opponent waiting on us.
func (n *Negotiator) Pending() (pending, inbound bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending, n.inbound
}

// Resolve settles the negotiation with the given outcome.
func (n *Negotiator) Resolve(outcome Outcome) error {
	n.mu.Lock()
	if !n.pending {
		n.mu.Unlock()
		return ErrNoPendingRequest
	}
	n.pending = false
	close(n.cancelCh)
	n.mu.Unlock()

	log.Info().Str("outcome", string(outcome)).Msg("rematch resolved")
	if n.onOutcome != nil {
		n.onOutcome(outcome)
	}
	return nil
}

// Stop aborts any pending negotiation without an outcome, for teardown.
func (n *Negotiator) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending {
		n.pending = false
		close(n.cancelCh)
	}
}

func (n *Negotiator) open(inbound bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending {
		return false
	}
	n.pending = true
	n.inbound = inbound
	n.cancelCh = make(chan struct{})

	go n.expire(n.cancelCh)
	return true
}

func (n *Negotiator) expire(cancel <-chan struct{}) {
	timer := n.clock.NewTimer(n.timeout)
	defer timer.Stop()

	select {
	case <-cancel:
	case <-timer.Chan():
		n.mu.Lock()
		timedOut := n.pending
		n.pending = false
		n.mu.Unlock()

		if timedOut {
			log.Info().Dur("timeout", n.timeout).Msg("rematch request timed out")
			if n.onOutcome != nil {
				n.onOutcome(OutcomeTimeout)
			}
		}
	}
}
