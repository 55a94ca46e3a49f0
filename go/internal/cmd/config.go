package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/duel/go/internal/match"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`
	Game match.Config `yaml:"game"`
	Feed struct {
		NATSURL       string `yaml:"nats_url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"feed"`
}

func defaultConfig() *Config {
	cfg := &Config{Game: match.DefaultConfig()}
	cfg.Server.Port = "3000"
	cfg.Server.LogLevel = "info"
	cfg.Feed.SubjectPrefix = "match.events"
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file at path over the defaults, then applies env overrides.
// A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Server.LogLevel = getEnv("LOG_LEVEL", config.Server.LogLevel)
	config.Feed.NATSURL = getEnv("NATS_URL", config.Feed.NATSURL)
	config.Game.WinThreshold = getEnvAsInt("MATCH_WIN_THRESHOLD", config.Game.WinThreshold)
	config.Game.RoundTimeout = getEnvAsDuration("MATCH_ROUND_TIMEOUT", config.Game.RoundTimeout)
	config.Game.RoundPause = getEnvAsDuration("MATCH_ROUND_PAUSE", config.Game.RoundPause)

	if err := config.Game.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game config: %w", err)
	}
	return config, nil
}
