package rules

import (
	"errors"
	"testing"

	"github.com/ludorush/ludorush/go/internal/models"
)

func twoPlayers() []models.Player {
	return []models.Player{
		models.NewPlayer("u-red", "Red", models.ColorRed),
		models.NewPlayer("u-green", "Green", models.ColorGreen),
	}
}

func TestCanMove(t *testing.T) {
	tests := []struct {
		name string
		pos  int
		dice int
		want bool
	}{
		{name: "base needs six", pos: models.PositionBase, dice: 3, want: false},
		{name: "base with six", pos: models.PositionBase, dice: 6, want: true},
		{name: "track token advances", pos: 10, dice: 4, want: true},
		{name: "exact landing on finish", pos: 51, dice: 6, want: true},
		{name: "overshoot rejected", pos: 55, dice: 4, want: false},
		{name: "finished token frozen", pos: models.PositionFinished, dice: 1, want: false},
		{name: "dice below range", pos: 10, dice: 0, want: false},
		{name: "dice above range", pos: 10, dice: 7, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanMove(models.Token{ID: 0, Position: tt.pos}, tt.dice)
			if got != tt.want {
				t.Fatalf("CanMove(pos=%d, dice=%d) = %v, want %v", tt.pos, tt.dice, got, tt.want)
			}
		})
	}
}

func TestAbsoluteCoord(t *testing.T) {
	tests := []struct {
		name   string
		color  models.PlayerColor
		pos    int
		want   int
		onRing bool
	}{
		{name: "red entry", color: models.ColorRed, pos: 1, want: 1, onRing: true},
		{name: "green entry", color: models.ColorGreen, pos: 1, want: 14, onRing: true},
		{name: "yellow wraps ring", color: models.ColorYellow, pos: 30, want: 4, onRing: true},
		{name: "blue entry", color: models.ColorBlue, pos: 1, want: 40, onRing: true},
		{name: "base off ring", color: models.ColorRed, pos: 0, onRing: false},
		{name: "home stretch off ring", color: models.ColorRed, pos: 53, onRing: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, onRing := AbsoluteCoord(tt.color, tt.pos)
			if onRing != tt.onRing {
				t.Fatalf("AbsoluteCoord(%s, %d) onRing = %v, want %v", tt.color, tt.pos, onRing, tt.onRing)
			}
			if onRing && got != tt.want {
				t.Fatalf("AbsoluteCoord(%s, %d) = %d, want %d", tt.color, tt.pos, got, tt.want)
			}
		})
	}
}

func TestAdvance_EnterFromBase(t *testing.T) {
	players := twoPlayers()

	out, err := Advance(players, 0, 0, 6)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if out.To != 1 {
		t.Fatalf("entry destination = %d, want 1", out.To)
	}
	if players[0].Tokens[0].Position != models.PositionBase {
		t.Fatalf("input players mutated: token at %d", players[0].Tokens[0].Position)
	}
	if out.Players[0].Tokens[0].Position != 1 {
		t.Fatalf("result token at %d, want 1", out.Players[0].Tokens[0].Position)
	}
}

func TestAdvance_OvershootNoMutation(t *testing.T) {
	players := twoPlayers()
	players[0].Tokens[0].Position = 55

	_, err := Advance(players, 0, 0, 4)
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("overshoot error = %v, want ErrIllegalMove", err)
	}
	if players[0].Tokens[0].Position != 55 {
		t.Fatalf("overshoot mutated token to %d", players[0].Tokens[0].Position)
	}
}

func TestAdvance_CaptureOnSharedSquare(t *testing.T) {
	players := twoPlayers()
	// Red moving to relative 17 lands on absolute 17. Green relative 4
	// is also absolute 17 (origin 14), and 17 is not a safe square.
	players[0].Tokens[0].Position = 13
	players[1].Tokens[2].Position = 4

	out, err := Advance(players, 0, 0, 4)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if !out.CapturedOpponent {
		t.Fatal("expected capture, got none")
	}
	if out.CapturedPlayer != 1 || out.CapturedToken != 2 {
		t.Fatalf("captured player/token = %d/%d, want 1/2", out.CapturedPlayer, out.CapturedToken)
	}
	if got := out.Players[1].Tokens[2].Position; got != models.PositionBase {
		t.Fatalf("captured token at %d, want base", got)
	}
}

func TestAdvance_NoCaptureOnSafeSquare(t *testing.T) {
	players := twoPlayers()
	// Absolute 22 is a star square. Red relative 22 and green relative 9
	// both map there.
	players[0].Tokens[0].Position = 18
	players[1].Tokens[0].Position = 9

	out, err := Advance(players, 0, 0, 4)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if out.CapturedOpponent {
		t.Fatal("capture on safe square should not happen")
	}
	if got := out.Players[1].Tokens[0].Position; got != 9 {
		t.Fatalf("opponent token moved to %d, want 9", got)
	}
}

func TestAdvance_NoCaptureInHomeStretch(t *testing.T) {
	players := twoPlayers()
	players[0].Tokens[0].Position = 50
	players[1].Tokens[0].Position = 45

	out, err := Advance(players, 0, 0, 3)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if out.To != 53 {
		t.Fatalf("destination = %d, want 53", out.To)
	}
	if out.CapturedOpponent {
		t.Fatal("home stretch squares are private, capture impossible")
	}
}

func TestAdvance_FinishAndWin(t *testing.T) {
	players := twoPlayers()
	players[0].Finished = 3
	players[0].Tokens[0].Position = models.PositionFinished
	players[0].Tokens[1].Position = models.PositionFinished
	players[0].Tokens[2].Position = models.PositionFinished
	players[0].Tokens[3].Position = 54

	out, err := Advance(players, 0, 3, 3)
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if !out.Finished {
		t.Fatal("expected finish on exact landing at 57")
	}
	if !out.Winner {
		t.Fatal("fourth finished token should win the match")
	}
	if got := out.Players[0].Finished; got != 4 {
		t.Fatalf("finished count = %d, want 4", got)
	}
}

func TestAdvance_PositionsNonDecreasingUntilCaptureOrFinish(t *testing.T) {
	players := twoPlayers()
	players[0].Tokens[0].Position = 1

	// Walk a token up the track; its position must only grow.
	prev := 1
	for _, dice := range []int{4, 5, 3, 6, 2, 5, 6, 4, 5, 6, 5, 4, 1} {
		out, err := Advance(players, 0, 0, dice)
		if err != nil {
			t.Fatalf("Advance(dice=%d) returned error: %v", dice, err)
		}
		if out.To <= prev {
			t.Fatalf("position decreased: %d -> %d", prev, out.To)
		}
		prev = out.To
		players = out.Players
		if out.Finished {
			return
		}
	}
}
