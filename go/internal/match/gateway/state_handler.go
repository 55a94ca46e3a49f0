package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/rs/zerolog/log"
)

// StateProvider interface defines methods for retrieving room state
type StateProvider interface {
	Snapshot(roomKey string) (match.RoomSnapshot, error)
	Rooms() ([]match.RoomSnapshot, error)
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleListRooms handles GET /api/rooms
func (h *StateHandler) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rooms, err := h.stateProvider.Rooms()
	if err != nil {
		log.Error().Err(err).Msg("failed to list rooms")
		http.Error(w, "Failed to list rooms", http.StatusServiceUnavailable)
		return
	}
	if rooms == nil {
		rooms = []match.RoomSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

// HandleGetRoom handles GET /api/rooms/{key}
func (h *StateHandler) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomKey := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	if roomKey == "" {
		h.HandleListRooms(w, r)
		return
	}

	snap, err := h.stateProvider.Snapshot(roomKey)
	if errors.Is(err, match.ErrRoomNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room", roomKey).Msg("failed to get room state")
		http.Error(w, "Failed to get room state", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RegisterStateRoutes registers the room state routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms", h.HandleListRooms)
	mux.HandleFunc("/api/rooms/", h.HandleGetRoom)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
