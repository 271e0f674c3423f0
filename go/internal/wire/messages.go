// Package wire defines the broadcast message contract between peers.
// Messages are transient: they are never persisted, only published on
// the per-room subjects, and every receiver must tolerate silent loss.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ludorush/ludorush/go/internal/models"
)

// MessageType tags the payload carried by an envelope.
type MessageType string

const (
	TypeDiceRolling    MessageType = "dice_rolling"
	TypeDiceRoll       MessageType = "dice_roll"
	TypeTokenMove      MessageType = "token_move"
	TypePlayerForfeit  MessageType = "player_forfeit"
	TypeTurnTimeout    MessageType = "turn_timeout"
	TypeFullSync       MessageType = "full_sync"
	TypeChecksum       MessageType = "checksum"
	TypeStateRequest   MessageType = "state_request"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
	TypeActionConfirm  MessageType = "action_confirm"
	TypeHeartbeat      MessageType = "heartbeat"
	TypeRematchRequest MessageType = "rematch_request"
	TypeRematchAccept  MessageType = "rematch_accept"
	TypeRematchDecline MessageType = "rematch_decline"
)

// StateMutating reports whether a message advances game state and is
// therefore subject to the per-room watermark. Telemetry messages
// (checksums, pings, heartbeats) bypass it.
func (t MessageType) StateMutating() bool {
	switch t {
	case TypeDiceRolling, TypeDiceRoll, TypeTokenMove, TypePlayerForfeit,
		TypeTurnTimeout, TypeFullSync:
		return true
	default:
		return false
	}
}

// Envelope is the common frame around every broadcast message. The
// timestamp is monotonic per sender; receivers use it to drop stale and
// duplicated deliveries.
type Envelope struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	SenderID  string          `json:"sender_id"`
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts"` // unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope frames a payload. The caller supplies the monotonic
// timestamp; the action id is fresh per message.
func NewEnvelope(roomID, senderID string, t MessageType, ts int64, payload any) (Envelope, error) {
	env := Envelope{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  senderID,
		Type:      t,
		Timestamp: ts,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Data = data
	}
	return env, nil
}

// Marshal encodes the envelope for the transport.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a transport frame into an envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

// DiceRollPayload carries the confirmed dice value.
type DiceRollPayload struct {
	Value int `json:"value"`
}

// TokenMovePayload carries a completed move and the full resulting
// player list so receivers apply the sender's outcome verbatim.
type TokenMovePayload struct {
	Color            models.PlayerColor `json:"color"`
	TokenID          int                `json:"token_id"`
	ResultingPlayers []models.Player    `json:"resulting_players"`
	NextTurn         int                `json:"next_turn"`
	GotSix           bool               `json:"got_six"`
	WinnerID         string             `json:"winner_id,omitempty"`
}

// TurnTimeoutPayload advances the turn when a player stalls out.
type TurnTimeoutPayload struct {
	FromTurn int `json:"from_turn"`
	ToTurn   int `json:"to_turn"`
}

// FullSyncPayload pushes the sender's complete state, answered to a
// state_request or sent after rematch acceptance.
type FullSyncPayload struct {
	Players     []models.Player `json:"players"`
	CurrentTurn int             `json:"current_turn"`
	DiceValue   int             `json:"dice_value"`
	Phase       string          `json:"phase"`
}

// ChecksumPayload carries the periodic board digest.
type ChecksumPayload struct {
	Hash string `json:"hash"`
	Turn int    `json:"turn"`
	Dice int    `json:"dice"`
}

// PingPayload and PongPayload measure round-trip time; the pong echoes
// the ping's id and origination timestamp.
type PingPayload struct {
	ID string `json:"id"`
	TS int64  `json:"ts"`
}

type PongPayload struct {
	ID string `json:"id"`
	TS int64  `json:"ts"`
}

// ActionConfirmPayload acknowledges application of a state-mutating
// action by its id.
type ActionConfirmPayload struct {
	ID string `json:"id"`
}

// HeartbeatPayload is the presence-channel track payload.
type HeartbeatPayload struct {
	UserID        string `json:"userId"`
	LastHeartbeat int64  `json:"lastHeartbeatTimestamp"`
}

// ParsePayload decodes an envelope's data into its typed payload.
// Payload-less types and unknown types return nil.
func ParsePayload(env Envelope) (any, error) {
	switch env.Type {
	case TypeDiceRoll:
		return decode[DiceRollPayload](env)
	case TypeTokenMove:
		return decode[TokenMovePayload](env)
	case TypeTurnTimeout:
		return decode[TurnTimeoutPayload](env)
	case TypeFullSync:
		return decode[FullSyncPayload](env)
	case TypeChecksum:
		return decode[ChecksumPayload](env)
	case TypePing:
		return decode[PingPayload](env)
	case TypePong:
		return decode[PongPayload](env)
	case TypeActionConfirm:
		return decode[ActionConfirmPayload](env)
	case TypeHeartbeat:
		return decode[HeartbeatPayload](env)
	default:
		return nil, nil
	}
}

func decode[T any](env Envelope) (any, error) {
	var payload T
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return payload, nil
}
