package config

import (
	"os"
	"strconv"
	"time"
)

// Relay holds the relay-server settings.
type Relay struct {
	Port            string
	SweepInterval   time.Duration
	TicketRetention time.Duration
	RateLimit       int
	RateBurst       int
}

// Station holds the client station settings.
type Station struct {
	RelayURL           string
	CachePath          string
	Heartbeat          time.Duration
	MaxDialAttempts    int
	RetryInterval      time.Duration
	ResetCheckInterval time.Duration
}

func LoadRelay() Relay {
	port := os.Getenv("RELAY_PORT")
	if port == "" {
		port = "8080"
	}

	return Relay{
		Port:            port,
		SweepInterval:   readDurationSeconds("RELAY_SWEEP_SECONDS", 3600),
		TicketRetention: readDurationSeconds("RELAY_RETENTION_SECONDS", 86400),
		RateLimit:       readInt("RELAY_RATE_LIMIT", 120),
		RateBurst:       readInt("RELAY_RATE_BURST", 60),
	}
}

func LoadStation() Station {
	relayURL := os.Getenv("STATION_RELAY_URL")
	if relayURL == "" {
		relayURL = "ws://localhost:8080/ws"
	}
	cachePath := os.Getenv("STATION_CACHE_PATH")
	if cachePath == "" {
		cachePath = "station.sqlite3"
	}

	return Station{
		RelayURL:           relayURL,
		CachePath:          cachePath,
		Heartbeat:          readDurationSeconds("STATION_HEARTBEAT_SECONDS", 30),
		MaxDialAttempts:    readInt("STATION_MAX_DIAL_ATTEMPTS", 10),
		RetryInterval:      readDurationSeconds("STATION_RETRY_SECONDS", 1),
		ResetCheckInterval: readDurationSeconds("STATION_RESET_CHECK_SECONDS", 60),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
