package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/rs/zerolog/log"
)

// Service is the realtime gateway: WebSocket connections in front of the match manager
type Service struct {
	connectionManager *ConnectionManager
	matchManager      *match.Manager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	MatchConfig      match.Config
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		MatchConfig:      match.DefaultConfig(),
	}
}

// NewService wires the connection manager and the match manager to each other
func NewService(config Config, opts ...match.Option) (*Service, error) {
	if err := config.MatchConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid match config: %w", err)
	}

	connectionManager := NewConnectionManager(config.ConnectionConfig)
	matchManager := match.NewManager(config.MatchConfig, connectionManager, opts...)
	connectionManager.SetCommands(matchManager)

	s := &Service{
		connectionManager: connectionManager,
		matchManager:      matchManager,
		stateHandler:      NewStateHandler(matchManager),
	}
	s.wsHandler = NewWebSocketHandler(connectionManager, s.GetStats)
	return s, nil
}

// Start runs the match loop and event delivery until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.connectionManager.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := s.matchManager.Run(ctx); err != nil {
			log.Error().Err(err).Msg("match manager failed")
		}
	}()

	wg.Wait()
	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// Manager exposes the match manager
func (s *Service) Manager() *match.Manager {
	return s.matchManager
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "match_gateway"
	if rooms, err := s.matchManager.Rooms(); err == nil {
		stats["active_rooms"] = len(rooms)
		stats["status"] = "running"
	} else {
		stats["status"] = "stopped"
	}
	return stats
}
