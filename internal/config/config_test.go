package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LICHESS_API_TOKEN", "LICHESS_BASE_URL", "EVENT_TRANSPORT", "EVENT_WS_URL",
		"STOCKFISH_PATH", "ENGINE_THREADS", "ENGINE_HASH_MB", "REDIS_URL", "RECORD_TTL",
		"MESSAGES_DIR", "SNAPSHOT_DIR", "HTTP_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LichessBaseURL != "https://lichess.org" || cfg.EventTransport != TransportNDJSON {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.StockfishPath != "stockfish" || cfg.EngineHashMB != 16 || cfg.RecordTTL != 24*time.Hour || cfg.HTTPTimeout != 10*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if err := cfg.ValidateOnline(); err == nil {
		t.Fatalf("online without token should fail")
	}
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LICHESS_API_TOKEN", "lip_x")
	t.Setenv("LICHESS_BASE_URL", "http://localhost:9663/")
	t.Setenv("EVENT_TRANSPORT", "WebSocket")
	t.Setenv("RECORD_TTL", "3600")
	t.Setenv("HTTP_TIMEOUT", "2s")
	t.Setenv("ENGINE_THREADS", "4")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LichessBaseURL != "http://localhost:9663" || cfg.EventTransport != TransportWebSocket {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RecordTTL != time.Hour || cfg.HTTPTimeout != 2*time.Second || cfg.EngineThreads != 4 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if err := cfg.ValidateOnline(); err == nil {
		t.Fatalf("websocket without EVENT_WS_URL should fail")
	}
	t.Setenv("EVENT_WS_URL", "ws://relay")
	cfg, _ = FromEnv()
	if err := cfg.ValidateOnline(); err != nil {
		t.Fatalf("ValidateOnline: %v", err)
	}
}

func TestRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("EVENT_TRANSPORT", "carrier-pigeon")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected transport error")
	}
	clearEnv(t)
	t.Setenv("RECORD_TTL", "-5")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected ttl error")
	}
}
