package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ludorush/ludorush/go/internal/engine"
)

// SessionFactory builds and starts a session for a room on behalf of a
// user. The cmd wiring supplies one closing over the NATS connection,
// the snapshot repository, and the wallet client.
type SessionFactory func(ctx context.Context, roomID uuid.UUID, userID string, onEvent func(engine.Event)) (*engine.Session, error)

var ErrNotAttached = errors.New("user not attached to room")

// Hub tracks the live session per (room, user) pair and routes UI
// commands to it.
type Hub struct {
	factory SessionFactory

	mu       sync.Mutex
	sessions map[sessionKey]*engine.Session
}

type sessionKey struct {
	roomID uuid.UUID
	userID string
}

// NewHub returns a hub that creates sessions through factory.
func NewHub(factory SessionFactory) *Hub {
	return &Hub{factory: factory, sessions: make(map[sessionKey]*engine.Session)}
}

// Attach returns the user's session for the room, creating and starting
// one if none is live. A second UI connection shares the session.
func (h *Hub) Attach(ctx context.Context, roomID uuid.UUID, userID string, onEvent func(engine.Event)) (*engine.Session, error) {
	key := sessionKey{roomID: roomID, userID: userID}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[key]; ok {
		return s, nil
	}

	s, err := h.factory(ctx, roomID, userID, onEvent)
	if err != nil {
		return nil, fmt.Errorf("create session for room %s: %w", roomID, err)
	}
	h.sessions[key] = s

	log.Info().Str("room_id", roomID.String()).Str("user_id", userID).Msg("session attached")
	return s, nil
}

// Detach stops and forgets the user's session for the room.
func (h *Hub) Detach(roomID uuid.UUID, userID string) {
	key := sessionKey{roomID: roomID, userID: userID}

	h.mu.Lock()
	s, ok := h.sessions[key]
	delete(h.sessions, key)
	h.mu.Unlock()
	if !ok {
		return
	}

	s.Stop()
	log.Info().Str("room_id", roomID.String()).Str("user_id", userID).Msg("session detached")
}

// Command is one UI action frame.
type Command struct {
	Action  string `json:"action"`
	TokenID int    `json:"token_id,omitempty"`
}

type commandError struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Error  string `json:"error"`
}

// Dispatch routes a command to the user's session.
func (h *Hub) Dispatch(roomID uuid.UUID, userID string, cmd Command) error {
	h.mu.Lock()
	s, ok := h.sessions[sessionKey{roomID: roomID, userID: userID}]
	h.mu.Unlock()
	if !ok {
		return ErrNotAttached
	}

	switch cmd.Action {
	case "roll":
		return s.RollDice()
	case "move":
		return s.MoveToken(cmd.TokenID)
	case "forfeit":
		return s.Forfeit()
	case "leave":
		h.mu.Lock()
		delete(h.sessions, sessionKey{roomID: roomID, userID: userID})
		h.mu.Unlock()
		s.Leave()
		return nil
	case "rematch_request":
		return s.RequestRematch()
	case "rematch_accept":
		return s.AcceptRematch()
	case "rematch_decline":
		return s.DeclineRematch()
	case "retry_reconnect":
		s.RetryReconnect()
		return nil
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}

// TransportLost forwards a dropped broadcast connection to every live
// session; each starts its own recovery loop.
func (h *Hub) TransportLost() {
	for _, s := range h.snapshot() {
		s.TransportLost()
	}
}

// SetOnline forwards host online/offline transitions to every live
// session.
func (h *Hub) SetOnline(online bool) {
	for _, s := range h.snapshot() {
		s.SetOnline(online)
	}
}

func (h *Hub) snapshot() []*engine.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	sessions := make([]*engine.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// StopAll tears down every live session, for process shutdown.
func (h *Hub) StopAll() {
	h.mu.Lock()
	sessions := make([]*engine.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[sessionKey]*engine.Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
