package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/duel/go/internal/match/feed"
	"github.com/mcdev12/duel/go/internal/match/gateway"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(config *Config, gatewayService *gateway.Service, feedHealth *feed.HealthChecker) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	gatewayService.RegisterRoutes(mux)
	setupHealthCheck(mux)
	mux.Handle("/health/feed", feedHealth)
	mux.HandleFunc("/metrics", feedHealth.MetricsHandler())

	handler := gateway.SecurityHeaders(c.Handler(mux))

	// h2c serves HTTP/2 cleartext and passes HTTP/1.1 (including WebSocket upgrades) through
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Server.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
