package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sandwichfarm/roomsync/internal/config"
	"github.com/sandwichfarm/roomsync/internal/natsfeed"
	"github.com/sandwichfarm/roomsync/internal/ops"
	"github.com/sandwichfarm/roomsync/internal/room"
	"github.com/sandwichfarm/roomsync/internal/storebridge"
	"github.com/sandwichfarm/roomsync/internal/wsfeed"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "manual"
)

func main() {
	// Define subcommands
	if len(os.Args) > 1 && os.Args[1] == "init" {
		handleInit()
		return
	}

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("roomsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  by:     %s\n", builtBy)
		os.Exit(0)
	}

	// Optional .env for local development; environment always wins
	_ = godotenv.Load()

	if *configPath == "" {
		fmt.Println("roomsync - Realtime Room State Engine")
		fmt.Println()
		fmt.Println("No configuration file specified. Use --config <path> to specify config.")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  roomsync init              Generate example configuration")
		fmt.Println("  roomsync --version         Show version information")
		fmt.Println("  roomsync --config <path>   Start with configuration file")
		os.Exit(1)
	}

	// Load and validate configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting roomsync %s\n", version)
	fmt.Printf("  Room: %s\n", cfg.Room.ID)
	fmt.Printf("  Viewer: %s\n", cfg.Identity.UserID)
	fmt.Printf("  Transport: %s\n", cfg.Transport.Driver)
	fmt.Println()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)
	logger.LogStartup(version, commit, map[string]interface{}{
		"room":      cfg.Room.ID,
		"transport": cfg.Transport.Driver,
	})

	// Initialize storage collaborators
	fmt.Println("Connecting to Redis...")
	bridge, err := storebridge.New(ctx, &cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage bridge: %w", err)
	}
	defer bridge.Close()
	fmt.Printf("  Storage bridge ready (%s)\n", cfg.Redis.Addr)

	// Initialize the realtime feed for the configured transport
	deps := room.Deps{
		Fetcher:     bridge,
		Eligibility: bridge,
		Leaderboard: bridge,
		Sink:        &terminalSink{},
	}

	switch cfg.Transport.Driver {
	case "nats":
		fmt.Printf("Connecting to NATS at %s...\n", cfg.Transport.NATS.URL)
		feed, err := natsfeed.New(&cfg.Transport.NATS, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize nats feed: %w", err)
		}
		deps.Source = feed
		deps.Presence = feed
		deps.Publisher = feed
		fmt.Println("  NATS feed ready")
	case "websocket":
		fmt.Printf("Using WebSocket gateway at %s...\n", cfg.Transport.WebSocket.URL)
		feed := wsfeed.New(&cfg.Transport.WebSocket, logger)
		deps.Source = feed
		deps.Presence = feed
		deps.Publisher = feed
		fmt.Println("  WebSocket feed ready")
	default:
		return fmt.Errorf("unsupported transport driver: %s", cfg.Transport.Driver)
	}

	// Join the room: eligibility, snapshot, live loops
	fmt.Printf("Joining room %s...\n", cfg.Room.ID)
	engine := room.NewEngine(cfg, deps, logger)
	if err := engine.Join(ctx); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	defer engine.Close()
	fmt.Printf("  Joined with %d visible messages\n", len(engine.Messages()))

	diagnostics := ops.NewDiagnosticsCollector(version, commit, engine)

	fmt.Println()
	fmt.Println("✓ Room session running")
	fmt.Println()
	fmt.Println("Press Ctrl+C to leave the room (SIGUSR1 dumps diagnostics)...")

	// Wait for interrupt or feed loss; SIGUSR1 dumps diagnostics in place
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGUSR1 {
				fmt.Print(diagnostics.CollectAll().FormatAsText())
				continue
			}
			fmt.Println()
			fmt.Println("Leaving room...")
		case <-engine.Done():
			if err := engine.Err(); err != nil {
				return fmt.Errorf("room session ended: %w", err)
			}
		}
		break
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

// terminalSink renders notifications on stdout; the engine never formats
// presentation itself
type terminalSink struct{}

func (terminalSink) Toast(title, body string) {
	fmt.Printf("  [%s] %s\n", title, body)
}

func (terminalSink) Sound(name string) {
	// Terminal bell stands in for the notification sound
	fmt.Print("\a")
}

func (terminalSink) Notify(title, body string) {}

func handleInit() {
	exampleConfig, err := config.GetExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading example config: %v\n", err)
		os.Exit(1)
	}

	// Write to stdout
	fmt.Print(string(exampleConfig))
}
