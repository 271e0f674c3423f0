// Package rules implements the movement rule engine: legal-move checks,
// token advancement, capture detection, and win detection. Pure
// functions over player lists; no I/O and no mutation of inputs.
package rules

import (
	"errors"
	"fmt"

	"github.com/ludorush/ludorush/go/internal/models"
)

var (
	// ErrIllegalMove is returned for any move the rules reject. Callers
	// treat it as a defensive no-op, not a reportable failure.
	ErrIllegalMove = errors.New("illegal move")
)

// MoveOutcome describes the result of advancing a token.
type MoveOutcome struct {
	// Players is the resulting player list. Inputs are never mutated.
	Players []models.Player

	From             int
	To               int
	CapturedOpponent bool
	CapturedPlayer   int // index into Players, valid when CapturedOpponent
	CapturedToken    int
	Finished         bool
	Winner           bool
}

// CanMove reports whether a token may move with the given dice value:
// base tokens need a six, track tokens must not overshoot the finish.
func CanMove(t models.Token, dice int) bool {
	if dice < 1 || dice > 6 {
		return false
	}
	switch {
	case t.Position == models.PositionFinished:
		return false
	case t.Position == models.PositionBase:
		return dice == EntryRoll
	default:
		return t.Position+dice <= models.PositionFinished
	}
}

// MovableTokens returns the ids of tokens the player may legally move.
func MovableTokens(p models.Player, dice int) []int {
	var ids []int
	for _, t := range p.Tokens {
		if CanMove(t, dice) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// HasLegalMove reports whether the player can act on the dice value.
func HasLegalMove(p models.Player, dice int) bool {
	for _, t := range p.Tokens {
		if CanMove(t, dice) {
			return true
		}
	}
	return false
}

// Advance moves one token and resolves captures, finishes, and wins.
// The returned outcome holds a fresh player list; the input is left
// untouched so optimistic application can be rolled back by discarding.
func Advance(players []models.Player, playerIdx, tokenID, dice int) (MoveOutcome, error) {
	if playerIdx < 0 || playerIdx >= len(players) {
		return MoveOutcome{}, fmt.Errorf("player index %d out of range: %w", playerIdx, ErrIllegalMove)
	}
	mover := players[playerIdx]
	if tokenID < 0 || tokenID >= len(mover.Tokens) {
		return MoveOutcome{}, fmt.Errorf("token %d out of range: %w", tokenID, ErrIllegalMove)
	}
	token := mover.Tokens[tokenID]
	if !CanMove(token, dice) {
		return MoveOutcome{}, fmt.Errorf("token %d at %d cannot move %d: %w", tokenID, token.Position, dice, ErrIllegalMove)
	}

	out := MoveOutcome{
		Players: models.ClonePlayers(players),
		From:    token.Position,
	}

	dest := token.Position + dice
	if token.Position == models.PositionBase {
		dest = 1
	}
	out.To = dest
	out.Players[playerIdx].Tokens[tokenID].Position = dest

	// Captures only happen on the shared ring, never on safe squares
	// or in the home stretch.
	if coord, onRing := AbsoluteCoord(mover.Color, dest); onRing && !IsSafeSquare(coord) {
		for pi := range out.Players {
			if pi == playerIdx {
				continue
			}
			for ti, opp := range out.Players[pi].Tokens {
				oppCoord, oppOnRing := AbsoluteCoord(out.Players[pi].Color, opp.Position)
				if oppOnRing && oppCoord == coord {
					out.Players[pi].Tokens[ti].Position = models.PositionBase
					out.CapturedOpponent = true
					out.CapturedPlayer = pi
					out.CapturedToken = ti
				}
			}
		}
	}

	if dest == models.PositionFinished {
		out.Finished = true
		out.Players[playerIdx].Finished++
		if out.Players[playerIdx].Finished == models.TokensPerPlayer {
			out.Winner = true
		}
	}

	return out, nil
}
