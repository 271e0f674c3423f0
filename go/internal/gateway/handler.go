package gateway

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler terminates WebSocket upgrade requests from the UI.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler wraps a connection manager.
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleRoomConnection attaches a UI client to its room session.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomIDStr := r.URL.Query().Get("room_id")
	if roomIDStr == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room_id format", http.StatusBadRequest)
		return
	}

	// The gateway serves a single local player; identity comes from the
	// platform session token upstream, a query parameter suffices here.
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userID, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("user_id", userID).
			Msg("failed to attach WebSocket connection")
		http.Error(w, "failed to attach", http.StatusInternalServerError)
	}
}

// HandleConnectionStats reports active connection counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, rooms := h.connectionManager.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"total_connections":%d,"active_rooms":%d}`, total, rooms)
}

// RegisterRoutes mounts the gateway endpoints.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
