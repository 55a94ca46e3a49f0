package match

import "errors"

var (
	// ErrRoomNotFound is returned when a command references a room with no live state
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotInRoom is returned when the participant does not occupy the room
	ErrNotInRoom = errors.New("participant not in room")
	// ErrRoomFull is returned when both slots of a room are taken
	ErrRoomFull = errors.New("room is full")
	// ErrInvalidChoice is returned for symbols outside rock/paper/scissors
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrNotPlaying is returned when a choice arrives while no round is open
	ErrNotPlaying = errors.New("no round in progress")
	// ErrNotFinished is returned when a rematch is requested before game over
	ErrNotFinished = errors.New("match not finished")
	// ErrManagerStopped is returned once the manager loop has exited
	ErrManagerStopped = errors.New("match manager stopped")
)
