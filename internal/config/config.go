// Package config loads process configuration from environment variables,
// the same direct os.Getenv idiom the reference server uses for its TURN
// secret and debug flag, gathered here into one typed, testable loader
// instead of scattered package-level vars.
package config

import (
	"os"
	"time"
)

// Config holds every knob the server reads at startup.
type Config struct {
	ListenAddr       string
	RoomTTL          time.Duration
	DownloadCooldown time.Duration
	StorageDir       string
	LogLevel         string
}

const (
	defaultListenAddr       = ":8080"
	defaultRoomTTL          = time.Hour
	defaultDownloadCooldown = 6 * time.Hour
	defaultLogLevel         = "info"
)

// Load reads PTT_LISTEN_ADDR, PTT_ROOM_TTL, PTT_DOWNLOAD_COOLDOWN,
// PTT_STORAGE_DIR and PTT_LOG_LEVEL, falling back to documented defaults
// for anything unset or unparsable.
func Load() Config {
	cfg := Config{
		ListenAddr:       defaultListenAddr,
		RoomTTL:          defaultRoomTTL,
		DownloadCooldown: defaultDownloadCooldown,
		StorageDir:       "",
		LogLevel:         defaultLogLevel,
	}

	if v, ok := os.LookupEnv("PTT_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("PTT_ROOM_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RoomTTL = d
		}
	}
	if v, ok := os.LookupEnv("PTT_DOWNLOAD_COOLDOWN"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DownloadCooldown = d
		}
	}
	if v, ok := os.LookupEnv("PTT_STORAGE_DIR"); ok {
		cfg.StorageDir = v
	}
	if v, ok := os.LookupEnv("PTT_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
