package match

import (
	"sort"
	"time"
)

// Store is the registry of live rooms keyed by room key.
// It is owned by a single Manager loop and is not safe for concurrent use.
type Store struct {
	rooms map[string]*Room
}

// NewStore creates an empty room registry.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
	}
}

// Get returns the room for key, or nil.
func (s *Store) Get(key string) *Room {
	return s.rooms[key]
}

// Create registers a fresh room with zeroed scores.
func (s *Store) Create(key string, now time.Time) *Room {
	room := newRoom(key, now)
	s.rooms[key] = room
	return room
}

// Delete drops a room from the registry.
func (s *Store) Delete(key string) {
	delete(s.rooms, key)
}

// Len returns the number of live rooms.
func (s *Store) Len() int {
	return len(s.rooms)
}

// RoomsOf returns every room p occupies, ordered by key.
func (s *Store) RoomsOf(p ParticipantID) []*Room {
	var rooms []*Room
	for _, room := range s.rooms {
		if room.seatOf(p) >= 0 {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Key < rooms[j].Key })
	return rooms
}

// All returns every live room ordered by key.
func (s *Store) All() []*Room {
	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Key < rooms[j].Key })
	return rooms
}
