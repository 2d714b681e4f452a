package config

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete roomsync configuration
type Config struct {
	Identity   Identity   `yaml:"identity"`
	Room       Room       `yaml:"room"`
	Transport  Transport  `yaml:"transport"`
	Redis      Redis      `yaml:"redis"`
	Presence   Presence   `yaml:"presence"`
	Scheduler  Scheduler  `yaml:"scheduler"`
	Optimistic Optimistic `yaml:"optimistic"`
	Logging    Logging    `yaml:"logging"`
}

// Identity describes the local viewer
type Identity struct {
	UserID      string `yaml:"user_id"`
	DisplayName string `yaml:"display_name"`
	AvatarURL   string `yaml:"avatar_url"`
}

// Room selects the room to join at startup
type Room struct {
	ID string `yaml:"id"`
}

// Transport selects and configures the realtime event feed
type Transport struct {
	Driver    string    `yaml:"driver"` // nats|websocket
	NATS      NATS      `yaml:"nats"`
	WebSocket WebSocket `yaml:"websocket"`
}

// NATS contains NATS JetStream feed settings
type NATS struct {
	URL        string `yaml:"url"`
	Stream     string `yaml:"stream"`
	SubjectPfx string `yaml:"subject_prefix"`
}

// WebSocket contains WebSocket gateway feed settings
type WebSocket struct {
	URL string `yaml:"url"`
}

// Redis contains storage collaborator settings
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Presence contains heartbeat and staleness tuning
type Presence struct {
	HeartbeatSeconds int `yaml:"heartbeat_seconds"` // local heartbeat + recheck tick interval
	AwaySeconds      int `yaml:"away_seconds"`      // staleness threshold before online -> away
	ResyncMisses     int `yaml:"resync_misses"`     // consecutive full-resync omissions before removal
}

// HeartbeatInterval returns the heartbeat interval as a duration
func (p *Presence) HeartbeatInterval() time.Duration {
	return time.Duration(p.HeartbeatSeconds) * time.Second
}

// AwayThreshold returns the staleness threshold as a duration
func (p *Presence) AwayThreshold() time.Duration {
	return time.Duration(p.AwaySeconds) * time.Second
}

// Scheduler contains derived-work tuning
type Scheduler struct {
	LeaderboardDebounceMs int `yaml:"leaderboard_debounce_ms"`
	ReactionDedupMs       int `yaml:"reaction_dedup_ms"`
}

// LeaderboardDebounce returns the debounce quiet period as a duration
func (s *Scheduler) LeaderboardDebounce() time.Duration {
	return time.Duration(s.LeaderboardDebounceMs) * time.Millisecond
}

// ReactionDedup returns the reaction notification dedup window as a duration
func (s *Scheduler) ReactionDedup() time.Duration {
	return time.Duration(s.ReactionDedupMs) * time.Millisecond
}

// Optimistic contains optimistic-send reconciliation tuning
type Optimistic struct {
	TimeoutMs     int `yaml:"timeout_ms"`      // provisional entry marked failed after this
	MatchWindowMs int `yaml:"match_window_ms"` // created-at window for authoritative matching
}

// Timeout returns the optimistic-send timeout as a duration
func (o *Optimistic) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// MatchWindow returns the reconciliation match window as a duration
func (o *Optimistic) MatchWindow() time.Duration {
	return time.Duration(o.MatchWindowMs) * time.Millisecond
}

// Logging contains log output settings
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

var validTransportDrivers = map[string]bool{
	"nats":      true,
	"websocket": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads, defaults, and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Transport: Transport{
			Driver: "nats",
			NATS: NATS{
				URL:        "nats://localhost:4222",
				Stream:     "ROOM_EVENTS",
				SubjectPfx: "rooms",
			},
		},
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Presence: Presence{
			HeartbeatSeconds: 15,
			AwaySeconds:      45,
			ResyncMisses:     2,
		},
		Scheduler: Scheduler{
			LeaderboardDebounceMs: 2000,
			ReactionDedupMs:       2000,
		},
		Optimistic: Optimistic{
			TimeoutMs:     10000,
			MatchWindowMs: 5000,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Transport.Driver == "" {
		cfg.Transport.Driver = defaults.Transport.Driver
	}
	if cfg.Transport.NATS.URL == "" {
		cfg.Transport.NATS.URL = defaults.Transport.NATS.URL
	}
	if cfg.Transport.NATS.Stream == "" {
		cfg.Transport.NATS.Stream = defaults.Transport.NATS.Stream
	}
	if cfg.Transport.NATS.SubjectPfx == "" {
		cfg.Transport.NATS.SubjectPfx = defaults.Transport.NATS.SubjectPfx
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Presence.HeartbeatSeconds == 0 {
		cfg.Presence.HeartbeatSeconds = defaults.Presence.HeartbeatSeconds
	}
	if cfg.Presence.AwaySeconds == 0 {
		cfg.Presence.AwaySeconds = defaults.Presence.AwaySeconds
	}
	if cfg.Presence.ResyncMisses == 0 {
		cfg.Presence.ResyncMisses = defaults.Presence.ResyncMisses
	}
	if cfg.Scheduler.LeaderboardDebounceMs == 0 {
		cfg.Scheduler.LeaderboardDebounceMs = defaults.Scheduler.LeaderboardDebounceMs
	}
	if cfg.Scheduler.ReactionDedupMs == 0 {
		cfg.Scheduler.ReactionDedupMs = defaults.Scheduler.ReactionDedupMs
	}
	if cfg.Optimistic.TimeoutMs == 0 {
		cfg.Optimistic.TimeoutMs = defaults.Optimistic.TimeoutMs
	}
	if cfg.Optimistic.MatchWindowMs == 0 {
		cfg.Optimistic.MatchWindowMs = defaults.Optimistic.MatchWindowMs
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("ROOMSYNC_NATS_URL"); url != "" {
		cfg.Transport.NATS.URL = url
	}
	if addr := os.Getenv("ROOMSYNC_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("ROOMSYNC_REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if user := os.Getenv("ROOMSYNC_USER_ID"); user != "" {
		cfg.Identity.UserID = user
	}
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

// Validate checks a configuration for consistency
func Validate(cfg *Config) error {
	if cfg.Identity.UserID == "" {
		return fmt.Errorf("identity.user_id is required")
	}
	if cfg.Room.ID == "" {
		return fmt.Errorf("room.id is required")
	}

	if !validTransportDrivers[cfg.Transport.Driver] {
		return fmt.Errorf("invalid transport driver: %s (must be one of: nats, websocket)", cfg.Transport.Driver)
	}
	if cfg.Transport.Driver == "websocket" {
		if cfg.Transport.WebSocket.URL == "" {
			return fmt.Errorf("transport.websocket.url is required for the websocket driver")
		}
		if !strings.HasPrefix(cfg.Transport.WebSocket.URL, "ws://") && !strings.HasPrefix(cfg.Transport.WebSocket.URL, "wss://") {
			return fmt.Errorf("transport.websocket.url must start with ws:// or wss://")
		}
	}

	if cfg.Presence.HeartbeatSeconds < 1 {
		return fmt.Errorf("presence.heartbeat_seconds must be at least 1")
	}
	if cfg.Presence.AwaySeconds <= cfg.Presence.HeartbeatSeconds {
		return fmt.Errorf("presence.away_seconds must exceed presence.heartbeat_seconds")
	}
	if cfg.Presence.ResyncMisses < 1 {
		return fmt.Errorf("presence.resync_misses must be at least 1")
	}

	if cfg.Scheduler.LeaderboardDebounceMs < 0 {
		return fmt.Errorf("scheduler.leaderboard_debounce_ms must not be negative")
	}
	if cfg.Optimistic.TimeoutMs < cfg.Optimistic.MatchWindowMs {
		return fmt.Errorf("optimistic.timeout_ms must be at least optimistic.match_window_ms")
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", cfg.Logging.Level)
	}

	return nil
}
