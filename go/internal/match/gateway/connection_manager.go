package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/duel/go/internal/match"
	"github.com/rs/zerolog/log"
)

// Commands is what the gateway needs from the room lifecycle manager
type Commands interface {
	Join(p match.ParticipantID, roomKey string) error
	SubmitChoice(p match.ParticipantID, roomKey string, choice match.Choice) error
	RequestRematch(p match.ParticipantID, roomKey string) error
	Leave(p match.ParticipantID, roomKey string) error
	Disconnect(p match.ParticipantID) error
}

// ConnectionManager manages WebSocket connections, one participant per connection
type ConnectionManager struct {
	connections map[match.ParticipantID]*Connection
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	commands Commands

	// Event delivery
	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a participant
type Connection struct {
	ParticipantID match.ParticipantID
	UserID        string
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	// initial room joined right after the upgrade, if any
	joinRoom string

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time

	sendMu sync.Mutex
	closed bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is an event queued for one participant
type BroadcastMessage struct {
	To    match.ParticipantID
	Event match.Event
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // 1KB max message size
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[match.ParticipantID]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000), // Buffer for high throughput
	}
}

// SetCommands wires the lifecycle manager that inbound commands are dispatched to
func (cm *ConnectionManager) SetCommands(commands Commands) {
	cm.commands = commands
}

// Start delivers queued events until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Notify implements match.Notifier. It never blocks the match loop.
func (cm *ConnectionManager) Notify(to match.ParticipantID, event match.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{To: to, Event: event}:
	default:
		log.Warn().
			Str("participant", string(to)).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its pumps
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, roomKey string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ParticipantID: match.ParticipantID(uuid.New().String()),
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, cm.config.SendBufferSize),
		Manager:       cm,
		joinRoom:      roomKey,
		ConnectedAt:   time.Now(),
		LastPing:      time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("participant", string(connection.ParticipantID)).
		Str("user_id", userID).
		Str("room", roomKey).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn.ParticipantID] = conn

	log.Debug().
		Str("participant", string(conn.ParticipantID)).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if existing, ok := cm.connections[conn.ParticipantID]; ok && existing == conn {
		delete(cm.connections, conn.ParticipantID)
		conn.closeSend()

		log.Info().
			Str("participant", string(conn.ParticipantID)).
			Str("user_id", conn.UserID).
			Msg("connection unregistered")
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.Unlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// handleBroadcast delivers one event to its participant's connection
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	conn, exists := cm.connections[message.To]
	cm.mu.RUnlock()
	if !exists {
		log.Debug().
			Str("participant", string(message.To)).
			Str("event_type", string(message.Event.Type)).
			Msg("no connection for participant, dropping event")
		return
	}

	wsEvent, err := NewMatchEvent(message.Event, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to build event")
		return
	}
	eventData, err := json.Marshal(wsEvent)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	if !conn.enqueue(eventData) {
		// Connection is slow/dead, close it
		log.Warn().
			Str("participant", string(conn.ParticipantID)).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
		return
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room", message.Event.Room).
		Str("participant", string(message.To)).
		Msg("event delivered")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"queued_events":     len(cm.broadcastCh),
	}
}

// enqueue hands data to the write pump without blocking
func (c *Connection) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("participant", string(c.ParticipantID)).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("participant", string(c.ParticipantID)).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads commands until the connection drops, then always runs disconnect cleanup
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if err := c.Manager.commands.Disconnect(c.ParticipantID); err != nil && !errors.Is(err, match.ErrManagerStopped) {
			log.Error().Err(err).Str("participant", string(c.ParticipantID)).Msg("disconnect cleanup failed")
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	if c.joinRoom != "" {
		c.dispatch(Command{Type: CommandJoin, Room: c.joinRoom})
	}

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("participant", string(c.ParticipantID)).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes a client command; malformed input is dropped without side effects
func (c *Connection) handleClientMessage(message []byte) {
	cmd, err := ParseCommand(message)
	if err != nil {
		log.Debug().
			Err(err).
			Str("participant", string(c.ParticipantID)).
			Msg("rejected client message")
		return
	}
	c.dispatch(cmd)
}

func (c *Connection) dispatch(cmd Command) {
	commands := c.Manager.commands

	var err error
	switch cmd.Type {
	case CommandJoin:
		err = commands.Join(c.ParticipantID, cmd.Room)
	case CommandSubmitChoice:
		err = commands.SubmitChoice(c.ParticipantID, cmd.Room, cmd.Choice)
	case CommandRequestRematch:
		err = commands.RequestRematch(c.ParticipantID, cmd.Room)
	case CommandLeave:
		err = commands.Leave(c.ParticipantID, cmd.Room)
	}

	switch {
	case err == nil:
	case match.IsSilent(err):
		log.Debug().
			Err(err).
			Str("participant", string(c.ParticipantID)).
			Str("command", string(cmd.Type)).
			Str("room", cmd.Room).
			Msg("command ignored")
	case errors.Is(err, match.ErrManagerStopped):
		log.Warn().Str("participant", string(c.ParticipantID)).Msg("command after manager shutdown")
	default:
		log.Error().
			Err(err).
			Str("participant", string(c.ParticipantID)).
			Str("command", string(cmd.Type)).
			Msg("command failed")
	}
}
