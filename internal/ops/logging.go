package ops

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sandwichfarm/roomsync/internal/config"
)

// Logger is a structured logger wrapper
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

// NewLogger creates a new structured logger based on config
func NewLogger(cfg *config.Logging) *Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a logger with a custom writer
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
		format: l.format,
	}
}

// WithFields adds custom fields to the logger
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		level:  l.level,
		format: l.format,
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// Component-specific logger helpers

// LogEventApplied logs the application of a realtime event to engine state
func (l *Logger) LogEventApplied(eventType string, roomID string, duplicate bool) {
	l.Debug("event applied",
		"type", eventType,
		"room", roomID,
		"duplicate", duplicate)
}

// LogFeedConnection logs a realtime feed connection event
func (l *Logger) LogFeedConnection(driver string, connected bool, err error) {
	if err != nil {
		l.Warn("feed connection failed",
			"driver", driver,
			"error", err)
	} else if connected {
		l.Info("feed connected",
			"driver", driver)
	} else {
		l.Info("feed disconnected",
			"driver", driver)
	}
}

// LogResync logs a full reaction resync against the storage collaborator
func (l *Logger) LogResync(messageCount int, duration time.Duration, err error) {
	if err != nil {
		l.Warn("reaction resync failed",
			"messages", messageCount,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("reaction resync completed",
			"messages", messageCount,
			"duration_ms", duration.Milliseconds())
	}
}

// LogHydration logs a batched reply hydration fetch
func (l *Logger) LogHydration(requested, resolved int, duration time.Duration, err error) {
	if err != nil {
		l.Warn("reply hydration failed",
			"requested", requested,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("reply hydration completed",
			"requested", requested,
			"resolved", resolved,
			"duration_ms", duration.Milliseconds())
	}
}

// LogPresenceTransition logs an occupant status change
func (l *Logger) LogPresenceTransition(userID, from, to string) {
	l.Debug("presence transition",
		"user", userID,
		"from", from,
		"to", to)
}

// LogHeartbeat logs a local heartbeat publish
func (l *Logger) LogHeartbeat(roomID string, err error) {
	if err != nil {
		l.Warn("heartbeat publish failed",
			"room", roomID,
			"error", err)
	} else {
		l.Debug("heartbeat published",
			"room", roomID)
	}
}

// LogNotification logs a dispatched viewer notification
func (l *Logger) LogNotification(kind, messageID string) {
	l.Debug("notification dispatched",
		"kind", kind,
		"message_id", messageID)
}

// LogLeaderboardRefresh logs a debounced leaderboard recomputation
func (l *Logger) LogLeaderboardRefresh(roomID string, authors int, duration time.Duration, err error) {
	if err != nil {
		l.Warn("leaderboard refresh failed",
			"room", roomID,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("leaderboard refreshed",
			"room", roomID,
			"authors", authors,
			"duration_ms", duration.Milliseconds())
	}
}

// LogOptimisticFailure logs an optimistic send that never reconciled
func (l *Logger) LogOptimisticFailure(provisionalID string, age time.Duration) {
	l.Warn("optimistic send timed out",
		"provisional_id", provisionalID,
		"age_ms", age.Milliseconds())
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, commit string, config map[string]interface{}) {
	l.Info("roomsync starting",
		"version", version,
		"commit", commit,
		"config", config)
}

// LogShutdown logs application shutdown
func (l *Logger) LogShutdown(reason string) {
	l.Info("roomsync shutting down",
		"reason", reason)
}

// LogPanic logs a panic with stack trace
func (l *Logger) LogPanic(recovered interface{}, stack string) {
	l.Error("panic recovered",
		"panic", fmt.Sprintf("%v", recovered),
		"stack", stack)
}

// Default logger configuration
var defaultLogger *Logger

func init() {
	// Create a default logger for early startup
	defaultLogger = NewLogger(&config.Logging{
		Level:  "info",
		Format: "text",
	})
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Helper functions for common logging patterns

// Info logs an info message
func Info(msg string, fields ...any) {
	defaultLogger.Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...any) {
	defaultLogger.Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...any) {
	defaultLogger.Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...any) {
	defaultLogger.Error(msg, fields...)
}
