package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only STORAGE_PATH is required.
type Config struct {
	// Status/admin server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Persistent queue store
	StoragePath string

	// Remote API
	SubmitBaseURL string
	ProbeURL      string

	// Connectivity monitor
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration
	ProbeRate     int

	// Replay
	ReplayTimeout time.Duration
	MaxAttempts   int
	FlushInterval time.Duration

	// Background worker lifecycle
	UpdateCheckInterval time.Duration
}

func Load() (*Config, error) {
	storagePath := os.Getenv("STORAGE_PATH")
	if storagePath == "" {
		return nil, fmt.Errorf("STORAGE_PATH is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8790"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		StoragePath: storagePath,

		SubmitBaseURL: getEnv("SUBMIT_BASE_URL", "https://api.worklink.example"),
		ProbeURL:      getEnv("PROBE_URL", "https://api.worklink.example/health"),

		ProbeTimeout:  getDuration("PROBE_TIMEOUT", 5*time.Second),
		ProbeInterval: getDuration("PROBE_INTERVAL", 30*time.Second),
		ProbeRate:     getInt("PROBE_RATE", 2),

		ReplayTimeout: getDuration("REPLAY_TIMEOUT", 10*time.Second),
		MaxAttempts:   getInt("MAX_ATTEMPTS", 5),
		FlushInterval: getDuration("FLUSH_INTERVAL", time.Minute),

		UpdateCheckInterval: getDuration("UPDATE_CHECK_INTERVAL", time.Hour),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
