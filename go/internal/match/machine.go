// Package match wraps the movement rule engine with whose-turn and
// roll-phase bookkeeping. The machine is deterministic given a dice
// source, so both peers converge when fed the same values.
package match

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/ludorush/ludorush/go/internal/models"
	"github.com/ludorush/ludorush/go/internal/rules"
)

// Phase is the per-turn state of the machine.
type Phase string

const (
	PhaseWaitingForRoll Phase = "waiting_for_roll"
	PhaseRolling        Phase = "rolling"
	PhaseAwaitingMove   Phase = "awaiting_move"
	PhaseResult         Phase = "result"
)

// MaxConsecutiveSixes caps bonus rolls: the third six in a row forfeits
// the turn (standard tournament rule).
const MaxConsecutiveSixes = 3

var (
	ErrIllegalAction = errors.New("illegal action")
	ErrNotYourTurn   = fmt.Errorf("not your turn: %w", ErrIllegalAction)
)

// Machine holds the live board state for one match.
type Machine struct {
	Players          []models.Player
	CurrentTurn      int
	DiceValue        int
	Phase            Phase
	ConsecutiveSixes int
	WinnerID         string

	roll func() int
}

// Option configures a Machine.
type Option func(*Machine)

// WithDiceSource injects a deterministic dice source for tests.
func WithDiceSource(roll func() int) Option {
	return func(m *Machine) { m.roll = roll }
}

// NewMachine starts a match with the first player to roll.
func NewMachine(players []models.Player, opts ...Option) *Machine {
	m := &Machine{
		Players: models.ClonePlayers(players),
		Phase:   PhaseWaitingForRoll,
		roll:    func() int { return rand.IntN(6) + 1 },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RollResult describes the effect of a dice roll.
type RollResult struct {
	Value         int
	HasLegalMove  bool
	GotSix        bool
	TurnForfeited bool // third consecutive six
	TurnAdvanced  bool
	NextTurn      int
}

// MoveResult describes the effect of a token move.
type MoveResult struct {
	Outcome      rules.MoveOutcome
	GotSix       bool
	TurnAdvanced bool
	NextTurn     int
	WinnerID     string
}

// CanRoll reports whether the player may roll now: their turn, no roll
// outstanding, match still running.
func (m *Machine) CanRoll(playerIdx int) bool {
	return m.Phase == PhaseWaitingForRoll && playerIdx == m.CurrentTurn
}

// BeginRolling marks a roll in flight. The dice_rolling message is
// broadcast before the value exists so both clients animate in
// lockstep; until the value lands no further roll may start.
func (m *Machine) BeginRolling(playerIdx int) error {
	if !m.CanRoll(playerIdx) {
		if playerIdx != m.CurrentTurn {
			return ErrNotYourTurn
		}
		return fmt.Errorf("roll outstanding in phase %s: %w", m.Phase, ErrIllegalAction)
	}
	m.Phase = PhaseRolling
	return nil
}

// RollDice rolls for the acting player and applies the outcome locally.
func (m *Machine) RollDice(playerIdx int) (RollResult, error) {
	if !m.CanRoll(playerIdx) {
		if playerIdx != m.CurrentTurn {
			return RollResult{}, ErrNotYourTurn
		}
		return RollResult{}, fmt.Errorf("roll outstanding in phase %s: %w", m.Phase, ErrIllegalAction)
	}
	return m.ApplyRoll(playerIdx, m.roll())
}

// ApplyRoll applies a known dice value for the acting player. Local
// rolls and remotely received dice_roll messages both land here, which
// keeps turn advancement identical on both peers.
func (m *Machine) ApplyRoll(playerIdx, value int) (RollResult, error) {
	if m.Phase != PhaseWaitingForRoll && m.Phase != PhaseRolling {
		return RollResult{}, fmt.Errorf("apply roll in phase %s: %w", m.Phase, ErrIllegalAction)
	}
	if playerIdx != m.CurrentTurn {
		return RollResult{}, ErrNotYourTurn
	}
	if value < 1 || value > 6 {
		return RollResult{}, fmt.Errorf("dice value %d out of range: %w", value, ErrIllegalAction)
	}

	m.DiceValue = value
	res := RollResult{Value: value, GotSix: value == 6}

	if value == 6 {
		m.ConsecutiveSixes++
		if m.ConsecutiveSixes >= MaxConsecutiveSixes {
			res.TurnForfeited = true
			res.TurnAdvanced = true
			m.advanceTurn()
			res.NextTurn = m.CurrentTurn
			return res, nil
		}
	}

	if !rules.HasLegalMove(m.Players[m.CurrentTurn], value) {
		res.TurnAdvanced = true
		m.advanceTurn()
		res.NextTurn = m.CurrentTurn
		return res, nil
	}

	res.HasLegalMove = true
	res.NextTurn = m.CurrentTurn
	m.Phase = PhaseAwaitingMove
	return res, nil
}

// MoveToken moves one of the acting player's tokens using the current
// dice value. A six keeps the turn for a bonus roll; a win ends the
// match.
func (m *Machine) MoveToken(playerIdx, tokenID int) (MoveResult, error) {
	if m.Phase != PhaseAwaitingMove {
		return MoveResult{}, fmt.Errorf("move in phase %s: %w", m.Phase, ErrIllegalAction)
	}
	if playerIdx != m.CurrentTurn {
		return MoveResult{}, ErrNotYourTurn
	}

	out, err := rules.Advance(m.Players, playerIdx, tokenID, m.DiceValue)
	if err != nil {
		return MoveResult{}, err
	}
	m.Players = out.Players

	res := MoveResult{Outcome: out, GotSix: m.DiceValue == 6}

	if out.Winner {
		m.Phase = PhaseResult
		m.WinnerID = m.Players[playerIdx].ID
		res.WinnerID = m.WinnerID
		res.NextTurn = m.CurrentTurn
		return res, nil
	}

	if m.DiceValue == 6 {
		// Bonus roll, same player. Six counter carries across the turn.
		m.DiceValue = 0
		m.Phase = PhaseWaitingForRoll
		res.NextTurn = m.CurrentTurn
		return res, nil
	}

	res.TurnAdvanced = true
	m.advanceTurn()
	res.NextTurn = m.CurrentTurn
	return res, nil
}

// SetTurn forces the turn index, used when applying a remote
// turn_timeout message.
func (m *Machine) SetTurn(idx int) {
	if idx < 0 || idx >= len(m.Players) {
		return
	}
	m.CurrentTurn = idx
	m.DiceValue = 0
	m.ConsecutiveSixes = 0
	if m.Phase != PhaseResult {
		m.Phase = PhaseWaitingForRoll
	}
}

// Overwrite replaces the live state wholesale, used for hard resyncs
// and full_sync application.
func (m *Machine) Overwrite(players []models.Player, currentTurn, diceValue int, phase Phase) {
	m.Players = models.ClonePlayers(players)
	if currentTurn >= 0 && currentTurn < len(m.Players) {
		m.CurrentTurn = currentTurn
	}
	m.DiceValue = diceValue
	m.Phase = phase
	m.ConsecutiveSixes = 0
}

// Finish marks the match decided in favor of winnerID without further
// movement (forfeit and disconnect-timeout outcomes).
func (m *Machine) Finish(winnerID string) {
	m.Phase = PhaseResult
	m.WinnerID = winnerID
}

func (m *Machine) advanceTurn() {
	m.CurrentTurn = (m.CurrentTurn + 1) % len(m.Players)
	m.DiceValue = 0
	m.ConsecutiveSixes = 0
	m.Phase = PhaseWaitingForRoll
}
