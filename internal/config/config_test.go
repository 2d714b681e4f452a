package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roomsync.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
identity:
  user_id: "u-1"
room:
  id: "general"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Transport.Driver != "nats" {
		t.Errorf("default transport driver: got %s want nats", cfg.Transport.Driver)
	}
	if cfg.Presence.HeartbeatSeconds != 15 {
		t.Errorf("default heartbeat: got %d want 15", cfg.Presence.HeartbeatSeconds)
	}
	if cfg.Presence.AwaySeconds != 45 {
		t.Errorf("default away threshold: got %d want 45", cfg.Presence.AwaySeconds)
	}
	if cfg.Scheduler.LeaderboardDebounceMs != 2000 {
		t.Errorf("default debounce: got %d want 2000", cfg.Scheduler.LeaderboardDebounceMs)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ROOMSYNC_REDIS_ADDR", "redis.internal:6380")

	path := writeConfig(t, `
identity:
  user_id: "u-1"
room:
  id: "general"
redis:
  addr: "localhost:6379"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("env override not applied: got %s", cfg.Redis.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid defaults",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "missing user id",
			mutate:  func(cfg *Config) { cfg.Identity.UserID = "" },
			wantErr: true,
		},
		{
			name:    "missing room id",
			mutate:  func(cfg *Config) { cfg.Room.ID = "" },
			wantErr: true,
		},
		{
			name:    "unknown transport driver",
			mutate:  func(cfg *Config) { cfg.Transport.Driver = "carrier-pigeon" },
			wantErr: true,
		},
		{
			name: "websocket driver without url",
			mutate: func(cfg *Config) {
				cfg.Transport.Driver = "websocket"
				cfg.Transport.WebSocket.URL = ""
			},
			wantErr: true,
		},
		{
			name: "websocket driver with plain http url",
			mutate: func(cfg *Config) {
				cfg.Transport.Driver = "websocket"
				cfg.Transport.WebSocket.URL = "https://gateway.example.com"
			},
			wantErr: true,
		},
		{
			name: "away threshold below heartbeat",
			mutate: func(cfg *Config) {
				cfg.Presence.HeartbeatSeconds = 30
				cfg.Presence.AwaySeconds = 20
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Identity.UserID = "u-1"
			cfg.Room.ID = "general"
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestGetExampleConfig(t *testing.T) {
	data, err := GetExampleConfig()
	if err != nil {
		t.Fatalf("GetExampleConfig err: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("example config is empty")
	}
}
