package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus defines the lifecycle state of a room's canonical snapshot.
type MatchStatus string

const (
	MatchStatusWaiting   MatchStatus = "waiting"
	MatchStatusReady     MatchStatus = "ready"
	MatchStatusPlaying   MatchStatus = "playing"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}

// MatchSnapshot is the persisted source of truth for a room. Both peers
// read it for recovery and write it back at turn boundaries and terminal
// transitions. Version implements optimistic concurrency on updates.
type MatchSnapshot struct {
	RoomID       uuid.UUID   `json:"room_id"`
	Status       MatchStatus `json:"status"`
	Players      []Player    `json:"players"`
	CurrentTurn  int         `json:"current_turn"`
	DiceValue    int         `json:"dice_value"`
	Phase        string      `json:"phase"`
	EntryAmount  int64       `json:"entry_amount"`
	RewardAmount int64       `json:"reward_amount"`
	WinnerID     *string     `json:"winner_id,omitempty"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// PlayerIndex returns the index of the player with the given id, or -1.
func (m *MatchSnapshot) PlayerIndex(playerID string) int {
	for i, p := range m.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}
