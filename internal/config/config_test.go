package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want 8080", cfg.ServerPort)
	}
	if cfg.FloorTimeout != 30*time.Second {
		t.Errorf("FloorTimeout = %v, want 30s", cfg.FloorTimeout)
	}
	if len(cfg.ICEServers) != 1 {
		t.Fatalf("expected one default ICE server, got %d", len(cfg.ICEServers))
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STREAM_PORT", "9999")
	t.Setenv("PTT_TIMEOUT", "45s")
	t.Setenv("TURN_SERVER", "turn:example.com:3478")
	t.Setenv("TURN_USERNAME", "u")
	t.Setenv("TURN_PASSWORD", "p")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != 9999 {
		t.Errorf("ServerPort = %d, want 9999", cfg.ServerPort)
	}
	if cfg.FloorTimeout != 45*time.Second {
		t.Errorf("FloorTimeout = %v, want 45s", cfg.FloorTimeout)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("expected STUN+TURN servers, got %d", len(cfg.ICEServers))
	}
	if cfg.ICEServers[1].Username != "u" {
		t.Errorf("TURN username = %q, want %q", cfg.ICEServers[1].Username, "u")
	}
}
