package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"snaphound/internal/catalog"
	"snaphound/internal/config"
	"snaphound/internal/eventbus"
	"snaphound/internal/host"
	"snaphound/internal/ingest"
	"snaphound/internal/logging"
	"snaphound/internal/metrics"
	"snaphound/internal/search"
	"snaphound/internal/settings"
	"snaphound/internal/ui"
	"snaphound/internal/visibility"
)

// uiEvents are the bus events the UI reacts to
var uiEvents = []eventbus.EventType{
	eventbus.EventHostReady,
	eventbus.EventCatalogChanged,
	eventbus.EventCatalogResetRequested,
	eventbus.EventStatusUpdated,
	eventbus.EventError,
	eventbus.EventReloadRequested,
	eventbus.EventSearchDispatched,
	eventbus.EventSearchPathsSaved,
	eventbus.EventResourceFailed,
}

func main() {
	// Parse command line arguments
	var hostURL, configPath string
	flag.StringVar(&hostURL, "host", "", "Base URL of the indexing host (overrides the config file and $"+config.EnvHost+")")
	flag.StringVar(&configPath, "config", "", "Path to the config file (default "+config.DefaultPath()+")")
	flag.StringVar(&configPath, "c", "", "Path to the config file (shorthand)")
	flag.Parse()

	// Create event bus
	bus := eventbus.New()

	// Load configuration
	configSvc := config.NewConfigServiceWithBus(bus, configPath)
	if _, err := configSvc.EnsureFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not write default config %s: %v\n", configSvc.Path(), err)
	}
	cfg, err := configSvc.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config %s: %v, using defaults\n", configSvc.Path(), err)
		cfg = config.DefaultConfig()
		config.ApplyEnv(cfg)
	}
	if hostURL != "" {
		cfg.Host.URL = hostURL
	}

	// Set up logging
	logFile := logging.Setup(logging.Options{
		File:       cfg.Logging.File,
		Level:      cfg.Logging.Level,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if logFile != nil {
		defer logFile.Close()
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if srv := metrics.Serve(cfg.Metrics.Listen); srv != nil {
		defer srv.Close()
	}
	observer := metrics.NewObserver()

	// Ask the host to prepare its environment every time the event stream
	// (re)connects, so a relaunched host announces itself again
	var client *host.Client
	initialize := func() {
		if err := client.InitializeEnvironment(ctx); err != nil && ctx.Err() == nil {
			logging.Error("Failed to initialize host environment: %v", err)
			bus.Publish(eventbus.ErrorEvent{Op: host.CallInitializeEnvironment, Message: "Failed to start the indexing host", Err: err})
		}
	}
	client, err = host.NewClient(host.Options{
		BaseURL:         cfg.Host.URL,
		Timeout:         cfg.Host.Timeout(),
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval(),
		MaxInterval:     cfg.Retry.MaxInterval(),
		Observer:        observer,
		OnConnect:       func() { go initialize() },
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.Info("Using host %s (session %s)", cfg.Host.URL, client.SessionID())

	// Initialize services
	cat := catalog.New()
	coordinator := search.NewCoordinator(bus, client, search.Options{
		Debounce:         cfg.Search.Debounce(),
		MinQueryLength:   cfg.Search.MinQueryLength,
		CancelSuperseded: cfg.Search.CancelSuperseded,
		Observer:         observer,
	})
	defer coordinator.Stop()

	ingestor := ingest.New(bus, cat, coordinator, ingest.Options{
		ReloadDelay:     cfg.View.ReloadDelay(),
		Reload:          client.Relaunch,
		InitialInterval: cfg.Retry.InitialInterval(),
		Observer:        observer,
	})
	defer ingestor.Stop()

	gate := visibility.NewGate(client.AssetURI, cfg.View.VisibilityThreshold)
	gate.SetEventBus(bus)
	gate.SetObserver(observer)

	session := settings.NewSession(client, bus)

	// Create UI model
	uiModel := ui.NewModel(ui.Deps{
		Context: ctx,
		Catalog: cat,
		Search:  coordinator,
		Gate:    gate,
		Session: session,
		Prober:  client,
	})

	// Create Bubble Tea program
	p := tea.NewProgram(uiModel, tea.WithAltScreen(), tea.WithContext(ctx))
	uiModel.SetProgram(p)

	// Set up event forwarding to UI
	forwarder := ui.NewForwarder(p.Send)
	for _, eventType := range uiEvents {
		bus.Subscribe(eventType, forwarder.Forward)
	}

	// Start forwarding events to UI in background
	go forwarder.Run()

	// Start listening to the host
	go func() {
		if err := ingestor.Run(ctx, client); err != nil {
			logging.Error("Event stream stopped: %v", err)
		}
	}()

	// Run the UI
	logging.Info("Starting UI...")
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		logging.Error("Error running program: %v", err)
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
	logging.Info("UI exited normally")

	// Cleanup
	cancel()
	bus.Close()
	forwarder.Close()
}
