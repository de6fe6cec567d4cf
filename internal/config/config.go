// Package config reads settings from the environment, after an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	TransportNDJSON    = "ndjson"
	TransportWebSocket = "websocket"
)

type AppConfig struct {
	LichessToken   string
	LichessBaseURL string
	EventTransport string
	EventWSURL     string

	StockfishPath string
	EngineThreads int
	EngineHashMB  int

	RedisURL  string
	RecordTTL time.Duration

	MessagesDir string
	SnapshotDir string

	HTTPTimeout time.Duration
}

// Load reads .env from the working directory if present, then the environment.
// Variables already set in the environment win over .env.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		LichessBaseURL: "https://lichess.org",
		EventTransport: TransportNDJSON,
		StockfishPath:  "stockfish",
		EngineThreads:  1,
		EngineHashMB:   16,
		RecordTTL:      24 * time.Hour,
		SnapshotDir:    "snapshots",
		HTTPTimeout:    10 * time.Second,
	}

	cfg.LichessToken = env("LICHESS_API_TOKEN")
	if v := env("LICHESS_BASE_URL"); v != "" {
		cfg.LichessBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.ToLower(env("EVENT_TRANSPORT")); v != "" {
		if v != TransportNDJSON && v != TransportWebSocket {
			return nil, fmt.Errorf("EVENT_TRANSPORT must be %s or %s, got %q", TransportNDJSON, TransportWebSocket, v)
		}
		cfg.EventTransport = v
	}
	cfg.EventWSURL = env("EVENT_WS_URL")

	if v := env("STOCKFISH_PATH"); v != "" {
		cfg.StockfishPath = v
	}
	if v := env("ENGINE_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineThreads = n
		}
	}
	if v := env("ENGINE_HASH_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineHashMB = n
		}
	}

	cfg.RedisURL = env("REDIS_URL")
	if v := env("RECORD_TTL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("RECORD_TTL: %w", err)
		}
		cfg.RecordTTL = d
	}

	cfg.MessagesDir = env("MESSAGES_DIR")
	if v := env("SNAPSHOT_DIR"); v != "" {
		cfg.SnapshotDir = v
	}
	if v := env("HTTP_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	return cfg, nil
}

// ValidateOnline checks what playing against the remote server needs.
func (c *AppConfig) ValidateOnline() error {
	if c.LichessToken == "" {
		return errors.New("LICHESS_API_TOKEN is required")
	}
	if c.EventTransport == TransportWebSocket && c.EventWSURL == "" {
		return errors.New("EVENT_WS_URL is required when EVENT_TRANSPORT=websocket")
	}
	return nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

// parseDuration accepts Go durations ("90m") or whole seconds ("5400").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive: %q", v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive: %q", v)
	}
	return d, nil
}
