package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ListenAddr != defaultListenAddr {
		t.Fatalf("want default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.RoomTTL != defaultRoomTTL {
		t.Fatalf("want default room ttl, got %v", cfg.RoomTTL)
	}
	if cfg.DownloadCooldown != defaultDownloadCooldown {
		t.Fatalf("want default cooldown, got %v", cfg.DownloadCooldown)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PTT_LISTEN_ADDR", ":9090")
	t.Setenv("PTT_ROOM_TTL", "30m")
	t.Setenv("PTT_DOWNLOAD_COOLDOWN", "2h")
	t.Setenv("PTT_STORAGE_DIR", "/tmp/ptt")
	t.Setenv("PTT_LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("want :9090, got %q", cfg.ListenAddr)
	}
	if cfg.RoomTTL.String() != "30m0s" {
		t.Fatalf("want 30m, got %v", cfg.RoomTTL)
	}
	if cfg.DownloadCooldown.String() != "2h0m0s" {
		t.Fatalf("want 2h, got %v", cfg.DownloadCooldown)
	}
	if cfg.StorageDir != "/tmp/ptt" {
		t.Fatalf("want /tmp/ptt, got %q", cfg.StorageDir)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("want debug, got %q", cfg.LogLevel)
	}
}

func TestLoadIgnoresUnparsableDuration(t *testing.T) {
	t.Setenv("PTT_ROOM_TTL", "not-a-duration")
	cfg := Load()
	if cfg.RoomTTL != defaultRoomTTL {
		t.Fatalf("want fallback to default on bad duration, got %v", cfg.RoomTTL)
	}
}
