package reconcile

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ludorush/ludorush/go/internal/models"
)

func TestChecksum_PlayerOrderIndependent(t *testing.T) {
	a := models.NewPlayer("u-a", "A", models.ColorRed)
	b := models.NewPlayer("u-b", "B", models.ColorGreen)
	a.Tokens[0].Position = 12
	a.Tokens[2].Position = 40
	b.Tokens[1].Position = 7

	forward := Checksum([]models.Player{a, b}, 1, 4)
	reversed := Checksum([]models.Player{b, a}, 1, 4)
	if forward != reversed {
		t.Fatalf("checksum depends on player order: %s != %s", forward, reversed)
	}
}

func TestChecksum_TokenOrderIndependent(t *testing.T) {
	a := models.NewPlayer("u-a", "A", models.ColorRed)
	b := models.NewPlayer("u-b", "B", models.ColorGreen)
	a.Tokens[0].Position = 5
	a.Tokens[1].Position = 30

	shuffled := a.Clone()
	shuffled.Tokens[0], shuffled.Tokens[1] = shuffled.Tokens[1], shuffled.Tokens[0]

	if Checksum([]models.Player{a, b}, 0, 0) != Checksum([]models.Player{shuffled, b}, 0, 0) {
		t.Fatal("checksum depends on token array order")
	}
}

func TestChecksum_SensitiveToStateChanges(t *testing.T) {
	a := models.NewPlayer("u-a", "A", models.ColorRed)
	b := models.NewPlayer("u-b", "B", models.ColorGreen)
	base := Checksum([]models.Player{a, b}, 0, 0)

	moved := a.Clone()
	moved.Tokens[0].Position = 1
	if Checksum([]models.Player{moved, b}, 0, 0) == base {
		t.Fatal("checksum blind to token position change")
	}
	if Checksum([]models.Player{a, b}, 1, 0) == base {
		t.Fatal("checksum blind to turn change")
	}
	if Checksum([]models.Player{a, b}, 0, 6) == base {
		t.Fatal("checksum blind to dice change")
	}
}

func TestCompare_MatchResetsCounter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := NewEngine(DefaultConfig(), clock)

	if d := e.Compare("aa", "bb"); d != DecisionCounted {
		t.Fatalf("first mismatch decision = %s, want counted", d)
	}
	if d := e.Compare("aa", "aa"); d != DecisionMatch {
		t.Fatalf("match decision = %s", d)
	}
	if e.Mismatches() != 0 {
		t.Fatalf("counter = %d after match, want 0", e.Mismatches())
	}
}

func TestCompare_GraceWindowIgnoresMismatch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := NewEngine(DefaultConfig(), clock)

	e.NoteLocalAction()
	if d := e.Compare("aa", "bb"); d != DecisionIgnored {
		t.Fatalf("in-grace decision = %s, want ignored", d)
	}
	if e.Mismatches() != 0 {
		t.Fatalf("ignored mismatch counted: %d", e.Mismatches())
	}

	clock.Advance(3 * time.Second)
	if d := e.Compare("aa", "bb"); d != DecisionCounted {
		t.Fatalf("post-grace decision = %s, want counted", d)
	}
}

func TestCompare_ThresholdAndCooldownGateResync(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := NewEngine(DefaultConfig(), clock)

	// A recent resync keeps the cooldown closed.
	e.NoteResync()

	// Two mismatches inside the cooldown window: counted, no resync.
	for i := 0; i < 2; i++ {
		if d := e.Compare("aa", "bb"); d == DecisionResync {
			t.Fatalf("mismatch %d triggered early resync", i+1)
		}
		clock.Advance(150 * time.Millisecond)
	}

	// Third mismatch after the cooldown elapses fires the resync.
	clock.Advance(5 * time.Second)
	if d := e.Compare("aa", "bb"); d != DecisionResync {
		t.Fatalf("third mismatch decision = %s, want resync", d)
	}

	e.NoteResync()
	if e.Mismatches() != 0 {
		t.Fatalf("counter = %d after resync, want 0", e.Mismatches())
	}
}

func TestCompare_CooldownHoldsEvenPastThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := NewEngine(DefaultConfig(), clock)
	e.NoteResync()

	for i := 0; i < 5; i++ {
		if d := e.Compare("aa", "bb"); d == DecisionResync {
			t.Fatalf("resync inside cooldown at mismatch %d", i+1)
		}
	}

	clock.Advance(6 * time.Second)
	if d := e.Compare("aa", "bb"); d != DecisionResync {
		t.Fatalf("decision after cooldown = %s, want resync", d)
	}
}
