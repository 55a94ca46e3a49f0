package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/duel/go/internal/match"
)

// MatchEvent is the envelope of every server push
type MatchEvent struct {
	ID        string          `json:"id"`        // Event UUID
	Room      string          `json:"room"`      // Room key
	Type      match.EventType `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMatchEvent wraps a manager event for the wire
func NewMatchEvent(ev match.Event, now time.Time) (*MatchEvent, error) {
	wsEvent := &MatchEvent{
		ID:        uuid.New().String(),
		Room:      ev.Room,
		Type:      ev.Type,
		Timestamp: now,
	}
	if ev.Data != nil {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", ev.Type, err)
		}
		wsEvent.Data = data
	}
	return wsEvent, nil
}

// CommandType represents an inbound participant command
type CommandType string

const (
	CommandJoin           CommandType = "join"
	CommandSubmitChoice   CommandType = "submit-choice"
	CommandRequestRematch CommandType = "request-rematch"
	CommandLeave          CommandType = "leave"
)

// commandAliases also accepts the event names used by the legacy web client
var commandAliases = map[string]CommandType{
	string(CommandJoin):           CommandJoin,
	string(CommandSubmitChoice):   CommandSubmitChoice,
	string(CommandRequestRematch): CommandRequestRematch,
	string(CommandLeave):          CommandLeave,
	"joinGame":                    CommandJoin,
	"choice":                      CommandSubmitChoice,
	"play-again":                  CommandRequestRematch,
	"leave-room":                  CommandLeave,
}

const maxRoomKeyLength = 64

// ErrMalformedCommand is returned for payloads that cannot be mapped to a command
var ErrMalformedCommand = errors.New("malformed command")

// ClientMessage is the JSON a client sends
type ClientMessage struct {
	Type   string `json:"type"`
	Room   string `json:"room"`
	RoomID string `json:"roomId"`
	Choice string `json:"choice,omitempty"`
}

// Command is a validated client message
type Command struct {
	Type   CommandType
	Room   string
	Choice match.Choice
}

// ParseCommand decodes and validates a client message
func ParseCommand(raw []byte) (Command, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	cmdType, ok := commandAliases[msg.Type]
	if !ok {
		return Command{}, fmt.Errorf("%w: unknown type %q", ErrMalformedCommand, msg.Type)
	}

	room := strings.TrimSpace(msg.Room)
	if room == "" {
		room = strings.TrimSpace(msg.RoomID)
	}
	if err := validateRoomKey(room); err != nil {
		return Command{}, err
	}

	cmd := Command{Type: cmdType, Room: room}
	if cmdType == CommandSubmitChoice {
		choice, err := match.ParseChoice(msg.Choice)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
		}
		cmd.Choice = choice
	}
	return cmd, nil
}

func validateRoomKey(room string) error {
	if room == "" {
		return fmt.Errorf("%w: room is required", ErrMalformedCommand)
	}
	if len(room) > maxRoomKeyLength {
		return fmt.Errorf("%w: room key longer than %d", ErrMalformedCommand, maxRoomKeyLength)
	}
	return nil
}
