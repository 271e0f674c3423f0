// Package gateway is the local attachment surface for the game UI: a
// WebSocket endpoint that streams session events out and accepts player
// commands in. The gateway never touches game state itself; everything
// goes through the room session.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ludorush/ludorush/go/internal/engine"
)

// ConnectionManager owns the WebSocket connection pools, one per room.
type ConnectionManager struct {
	roomConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	hub      *Hub

	broadcastCh chan outboundEvent
}

// Connection is one attached UI client.
type Connection struct {
	ID      string
	UserID  string
	RoomID  uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// quit is closed exactly once on unregistration; Send itself is
	// never closed, so a racing broadcast can never panic on it.
	quit   chan struct{}
	closed bool // guarded by Manager.mu

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds WebSocket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type outboundEvent struct {
	RoomID uuid.UUID
	UserID string // only this user's connections receive the event
	Event  engine.Event
}

// DefaultConnectionConfig returns the default WebSocket tuning.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// The gateway binds locally; restrict origins when exposed.
			return true
		},
	}
}

// NewConnectionManager creates a connection manager backed by a session
// hub.
func NewConnectionManager(config ConnectionConfig, hub *Hub) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		hub:         hub,
		broadcastCh: make(chan outboundEvent, 1000),
	}
}

// Start processes outbound session events until the context ends.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case ev := <-cm.broadcastCh:
			cm.handleOutbound(ev)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to WebSocket and attaches
// the user to their room session.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, roomID uuid.UUID) error {
	session, err := cm.hub.Attach(r.Context(), roomID, userID, func(ev engine.Event) {
		cm.forward(roomID, userID, ev)
	})
	if err != nil {
		return fmt.Errorf("attach session: %w", err)
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		quit:        make(chan struct{}),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	// Seed the fresh client with the current board.
	cm.forward(roomID, userID, engine.Event{
		Type: engine.EventStateChanged,
		Data: session.State(),
	})

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("room_id", roomID.String()).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.roomConnections[conn.RoomID]
	if !exists || !connections[conn] {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	conn.closed = true
	close(conn.quit)
	if len(connections) == 0 {
		delete(cm.roomConnections, conn.RoomID)
	}

	// The session stays alive only while the user has a connection;
	// reconnection of the UI re-attaches.
	lastForUser := true
	for c := range connections {
		if c.UserID == conn.UserID {
			lastForUser = false
			break
		}
	}
	cm.mu.Unlock()

	if lastForUser {
		cm.hub.Detach(conn.RoomID, conn.UserID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("room_id", conn.RoomID.String()).
		Msg("connection unregistered")
}

// forward queues a session event for the user's connections.
func (cm *ConnectionManager) forward(roomID uuid.UUID, userID string, ev engine.Event) {
	select {
	case cm.broadcastCh <- outboundEvent{RoomID: roomID, UserID: userID, Event: ev}:
	default:
		log.Warn().Str("room_id", roomID.String()).Msg("event channel full, dropping event")
	}
}

func (cm *ConnectionManager) handleOutbound(ev outboundEvent) {
	cm.mu.RLock()
	connections, exists := cm.roomConnections[ev.RoomID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	var targets []*Connection
	for conn := range connections {
		if conn.UserID != ev.UserID || conn.closed {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(ev.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal session event")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		case <-conn.quit:
			// Unregistered between collection and send; drop silently.
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}
}

// Stats summarizes active connections per room.
func (cm *ConnectionManager) Stats() (totalConnections, activeRooms int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, connections := range cm.roomConnections {
		totalConnections += len(connections)
	}
	return totalConnections, len(cm.roomConnections)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.quit:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close")
			}
			break
		}

		c.handleCommand(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleCommand parses and dispatches one UI command; failures go back
// to the client as an error frame instead of tearing the socket down.
func (c *Connection) handleCommand(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("dropping malformed command")
		return
	}

	if err := c.Manager.hub.Dispatch(c.RoomID, c.UserID, cmd); err != nil {
		reply, merr := json.Marshal(commandError{Type: "error", Action: cmd.Action, Error: err.Error()})
		if merr != nil {
			return
		}
		select {
		case c.Send <- reply:
		default:
		}
	}
}
