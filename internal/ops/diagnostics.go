package ops

import (
	"fmt"
	"runtime"
	"time"
)

// SystemStats contains process-level statistics
type SystemStats struct {
	Version   string
	Commit    string
	Uptime    time.Duration
	StartTime time.Time

	// Runtime stats
	GoVersion       string
	NumGoroutines   int
	MemAllocMB      float64
	MemTotalAllocMB float64
	MemSysMB        float64
	NumGC           uint32
}

// SessionStats contains room-session statistics, reported by the engine
type SessionStats struct {
	RoomID          string
	Transport       string
	Messages        int
	VisibleMessages int
	Occupants       int
	PendingSends    int
}

// SessionReporter is implemented by the room engine to expose live session
// counters to diagnostics
type SessionReporter interface {
	SessionStats() SessionStats
}

// DiagnosticsCollector collects process and session diagnostics
type DiagnosticsCollector struct {
	version   string
	commit    string
	startTime time.Time
	session   SessionReporter
}

// NewDiagnosticsCollector creates a new diagnostics collector
func NewDiagnosticsCollector(version, commit string, session SessionReporter) *DiagnosticsCollector {
	return &DiagnosticsCollector{
		version:   version,
		commit:    commit,
		startTime: time.Now(),
		session:   session,
	}
}

// CollectSystemStats collects process-level statistics
func (d *DiagnosticsCollector) CollectSystemStats() *SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &SystemStats{
		Version:   d.version,
		Commit:    d.commit,
		Uptime:    time.Since(d.startTime),
		StartTime: d.startTime,

		GoVersion:       runtime.Version(),
		NumGoroutines:   runtime.NumGoroutine(),
		MemAllocMB:      float64(m.Alloc) / 1024 / 1024,
		MemTotalAllocMB: float64(m.TotalAlloc) / 1024 / 1024,
		MemSysMB:        float64(m.Sys) / 1024 / 1024,
		NumGC:           m.NumGC,
	}
}

// CollectAll collects all diagnostic information
func (d *DiagnosticsCollector) CollectAll() *Diagnostics {
	diag := &Diagnostics{
		CollectedAt: time.Now(),
		System:      d.CollectSystemStats(),
	}
	if d.session != nil {
		stats := d.session.SessionStats()
		diag.Session = &stats
	}
	return diag
}

// Diagnostics contains all diagnostic information
type Diagnostics struct {
	CollectedAt time.Time
	System      *SystemStats
	Session     *SessionStats
}

// FormatAsText formats diagnostics as plain text
func (d *Diagnostics) FormatAsText() string {
	var out string

	out += fmt.Sprintf("=== roomsync Diagnostics ===\n")
	out += fmt.Sprintf("Collected: %s\n\n", d.CollectedAt.Format(time.RFC3339))

	out += fmt.Sprintf("--- System ---\n")
	out += fmt.Sprintf("Version: %s (%s)\n", d.System.Version, d.System.Commit)
	out += fmt.Sprintf("Uptime: %s\n", d.System.Uptime.Round(time.Second))
	out += fmt.Sprintf("Go Version: %s\n", d.System.GoVersion)
	out += fmt.Sprintf("Goroutines: %d\n", d.System.NumGoroutines)
	out += fmt.Sprintf("Memory: %.2f MB allocated, %.2f MB system\n", d.System.MemAllocMB, d.System.MemSysMB)
	out += fmt.Sprintf("GC Runs: %d\n\n", d.System.NumGC)

	out += fmt.Sprintf("--- Session ---\n")
	if d.Session != nil {
		out += fmt.Sprintf("Room: %s\n", d.Session.RoomID)
		out += fmt.Sprintf("Transport: %s\n", d.Session.Transport)
		out += fmt.Sprintf("Messages: %d stored, %d visible\n", d.Session.Messages, d.Session.VisibleMessages)
		out += fmt.Sprintf("Occupants: %d\n", d.Session.Occupants)
		out += fmt.Sprintf("Pending Sends: %d\n", d.Session.PendingSends)
	} else {
		out += fmt.Sprintf("No active session\n")
	}

	return out
}
