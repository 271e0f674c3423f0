package engine

import (
	"time"

	"github.com/ludorush/ludorush/go/internal/match"
	"github.com/ludorush/ludorush/go/internal/models"
	"github.com/ludorush/ludorush/go/internal/presence"
	"github.com/ludorush/ludorush/go/internal/reconnect"
	"github.com/ludorush/ludorush/go/internal/rematch"
)

// EventType tags session events delivered to the attached UI.
type EventType string

const (
	EventStateChanged    EventType = "StateChanged"
	EventDiceRolling     EventType = "DiceRolling"
	EventDiceRolled      EventType = "DiceRolled"
	EventTokenMoved      EventType = "TokenMoved"
	EventMatchEnded      EventType = "MatchEnded"
	EventOpponentOnline  EventType = "OpponentOnline"
	EventOpponentOffline EventType = "OpponentOffline"
	EventCountdownTick   EventType = "CountdownTick"
	EventLinkQuality     EventType = "LinkQuality"
	EventLatencyAdvisory EventType = "LatencyAdvisory"
	EventResynced        EventType = "Resynced"
	EventStoreDegraded   EventType = "StoreDegraded"
	EventReconnectState  EventType = "ReconnectState"
	EventRematchPrompt   EventType = "RematchPrompt"
	EventRematchResolved EventType = "RematchResolved"
)

// Event is one session notification. Data is the typed payload below.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// StatePayload mirrors the live board for rendering.
type StatePayload struct {
	Players     []models.Player `json:"players"`
	CurrentTurn int             `json:"current_turn"`
	DiceValue   int             `json:"dice_value"`
	Phase       match.Phase     `json:"phase"`
}

// DiceRolledPayload reports a confirmed roll.
type DiceRolledPayload struct {
	Value         int  `json:"value"`
	Mine          bool `json:"mine"`
	TurnForfeited bool `json:"turn_forfeited"`
	NextTurn      int  `json:"next_turn"`
}

// TokenMovedPayload reports a completed move.
type TokenMovedPayload struct {
	Color    models.PlayerColor `json:"color"`
	TokenID  int                `json:"token_id"`
	From     int                `json:"from"`
	To       int                `json:"to"`
	Captured bool               `json:"captured"`
	NextTurn int                `json:"next_turn"`
}

// MatchEndedPayload closes out the match for the UI.
type MatchEndedPayload struct {
	WinnerID string `json:"winner_id"`
	Won      bool   `json:"won"`
	Reason   string `json:"reason"` // win, forfeit, disconnect_timeout
}

// CountdownPayload drives the disconnect countdown display.
type CountdownPayload struct {
	Remaining time.Duration `json:"remaining_ms"`
}

// LinkQualityPayload carries the connection indicator state.
type LinkQualityPayload struct {
	Quality   presence.Quality `json:"quality"`
	LatencyMs float64          `json:"latency_ms"`
	DropRate  float64          `json:"drop_rate"`
}

// ReconnectPayload reports recovery progress.
type ReconnectPayload struct {
	State reconnect.State `json:"state"`
}

// RematchPayload reports handshake progress.
type RematchPayload struct {
	Outcome rematch.Outcome `json:"outcome,omitempty"`
	Inbound bool            `json:"inbound,omitempty"`
}
