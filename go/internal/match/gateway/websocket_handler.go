package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for participants
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stats             func() map[string]interface{}
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, stats func() map[string]interface{}) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stats:             stats,
	}
}

// HandleConnection upgrades a participant connection, optionally joining ?room= right away
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	roomKey := strings.TrimSpace(r.URL.Query().Get("room"))
	if roomKey != "" {
		if err := validateRoomKey(roomKey); err != nil {
			http.Error(w, "invalid room", http.StatusBadRequest)
			return
		}
	}

	// Identity comes from the auth layer in front of this service; it is only used for logging here
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		userID = "anonymous"
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userID, roomKey); err != nil {
		// the upgrader has already written an HTTP error response
		log.Error().
			Err(err).
			Str("room", roomKey).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections and rooms
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
