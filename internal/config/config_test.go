package config

import (
	"testing"
	"time"
)

func TestLoadRelayDefaults(t *testing.T) {
	t.Setenv("RELAY_PORT", "")
	t.Setenv("RELAY_SWEEP_SECONDS", "")
	t.Setenv("RELAY_RETENTION_SECONDS", "")

	cfg := LoadRelay()
	if cfg.Port != "8080" {
		t.Fatalf("port=%q", cfg.Port)
	}
	if cfg.TicketRetention != 24*time.Hour {
		t.Fatalf("retention=%s", cfg.TicketRetention)
	}
	if cfg.SweepInterval != time.Hour {
		t.Fatalf("sweep=%s", cfg.SweepInterval)
	}
}

func TestLoadStationOverrides(t *testing.T) {
	t.Setenv("STATION_RELAY_URL", "ws://relay.internal:9000/ws")
	t.Setenv("STATION_HEARTBEAT_SECONDS", "5")
	t.Setenv("STATION_MAX_DIAL_ATTEMPTS", "not-a-number")

	cfg := LoadStation()
	if cfg.RelayURL != "ws://relay.internal:9000/ws" {
		t.Fatalf("relayURL=%q", cfg.RelayURL)
	}
	if cfg.Heartbeat != 5*time.Second {
		t.Fatalf("heartbeat=%s", cfg.Heartbeat)
	}
	if cfg.MaxDialAttempts != 10 {
		t.Fatalf("bad int must fall back, got %d", cfg.MaxDialAttempts)
	}
}
