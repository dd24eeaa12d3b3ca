// Package main provides the FieldWatch operations dashboard entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fieldwatch/fieldwatch/internal/alerts"
	"github.com/fieldwatch/fieldwatch/internal/api"
	"github.com/fieldwatch/fieldwatch/internal/bus"
	"github.com/fieldwatch/fieldwatch/internal/config"
	"github.com/fieldwatch/fieldwatch/internal/logging"
	"github.com/fieldwatch/fieldwatch/internal/orchestrator"
	"github.com/fieldwatch/fieldwatch/internal/orders"
	"github.com/fieldwatch/fieldwatch/internal/sensors"
	"github.com/fieldwatch/fieldwatch/internal/store"
)

const version = "0.3.0"

// sensorBufferCap is the per-sensor reading ring size.
const sensorBufferCap = 100

func main() {
	configPath := findConfigFile()
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default(configPath)
		err = nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(os.Stdout, cfg.System.Logging.Level, cfg.System.Logging.Format)
	logger.Info("Starting FieldWatch",
		"version", version,
		"config_path", configPath,
		"api_port", cfg.Server.Port,
		"bus_port", cfg.Bus.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.System.DataDir, 0755); err != nil {
		logger.Error("Failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Embedded NATS event bus.
	eventBus, err := bus.New(bus.Config{Host: cfg.Bus.Host, Port: cfg.Bus.Port}, logger)
	if err != nil {
		logger.Error("Failed to start event bus", "error", err)
		os.Exit(1)
	}
	defer eventBus.Stop()

	clk := clock.New()

	// Optional alert history persistence.
	var db *store.DB
	managerOpts := []alerts.Option{alerts.WithMaxHistory(cfg.Alerts.MaxHistory)}
	if cfg.Alerts.Persist {
		db, err = store.Open(store.DefaultConfig(cfg.System.DataDir))
		if err != nil {
			logger.Error("Failed to open store", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		history := store.NewAlertHistory(db)
		managerOpts = append(managerOpts, alerts.WithHistoryStore(history))
		go pruneHistory(ctx, history, cfg.Alerts.RetentionDays)
	}

	// Core components.
	registry := sensors.NewRegistry(sensorBufferCap, eventBus)
	matcher := orders.NewMatcher(api.FilterValidOrders(cfg.OrderList()), eventBus, clk)
	manager := alerts.NewManager(eventBus, clk, managerOpts...)

	seedRegistry(registry, cfg, logger)
	if started := matcher.InitializeMonitors(); started > 0 {
		logger.Info("Time-based monitors running", "count", started)
	}
	defer matcher.StopMonitors()

	// WebSocket hub and pipeline glue.
	hub := api.NewHub()
	go hub.Run()

	orch := orchestrator.New(matcher, manager)
	if err := orch.Start(eventBus); err != nil {
		logger.Error("Failed to subscribe trigger pipeline", "error", err)
		os.Exit(1)
	}
	bridge := orchestrator.NewBridge(hub)
	if err := bridge.Start(eventBus); err != nil {
		logger.Error("Failed to subscribe hub bridge", "error", err)
		os.Exit(1)
	}
	if err := orchestrator.NewConfigSync(cfg).Start(eventBus); err != nil {
		logger.Warn("Sensor persistence unavailable", "error", err)
	}
	go broadcastStats(ctx, hub, registry, manager)

	// Hot-reload standing configuration edits.
	cfg.OnChange(func(next *config.Config) {
		logger.Info("Configuration reloaded", "sensors", len(next.Sensors), "orders", len(next.Orders))
	})
	if err := cfg.Watch(); err != nil {
		logger.Warn("Config watch unavailable", "error", err)
	}

	router := setupRouter(cfg, registry, matcher, manager, hub, eventBus, db)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}

// seedRegistry loads the configured sensors, geofences and watchlists.
func seedRegistry(registry *sensors.Registry, cfg *config.Config, logger *slog.Logger) {
	for _, fence := range cfg.GeofenceList() {
		registry.AddGeofence(fence)
	}
	for _, spec := range cfg.SensorSpecs() {
		if _, err := registry.Register(spec); err != nil {
			logger.Warn("Skipping configured sensor", "sensor", spec.ID, "error", err)
		}
	}
	for _, id := range cfg.Watchlists.Faces {
		registry.AddToWatchlist(sensors.WatchlistFace, id)
	}
	for _, id := range cfg.Watchlists.Plates {
		registry.AddToWatchlist(sensors.WatchlistPlate, id)
	}
	for _, id := range cfg.Watchlists.Devices {
		registry.AddToWatchlist(sensors.WatchlistDevice, id)
	}
	logger.Info("Registry seeded",
		"sensors", len(cfg.Sensors),
		"geofences", len(cfg.Geofences),
	)
}

// broadcastStats pushes dashboard counters to connected clients every 30s.
func broadcastStats(ctx context.Context, hub *api.Hub, registry *sensors.Registry, manager *alerts.Manager) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if hub.ClientCount() == 0 {
				continue
			}
			hub.Broadcast(api.StatsMessage(map[string]any{
				"sensors": registry.GetCounts(),
				"alerts":  manager.Counts(),
			}))
		}
	}
}

// pruneHistory removes persisted alerts older than the retention window,
// once at startup and then daily.
func pruneHistory(ctx context.Context, history *store.AlertHistory, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		if n, err := history.Prune(ctx, cutoff); err != nil {
			slog.Warn("Alert history prune failed", "error", err)
		} else if n > 0 {
			slog.Info("Alert history pruned", "removed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthFunc adapts a closure to the api.HealthChecker interface.
type healthFunc func() bool

func (f healthFunc) Healthy() bool { return f() }

// setupRouter creates the HTTP router with all routes.
func setupRouter(
	cfg *config.Config,
	registry *sensors.Registry,
	matcher *orders.Matcher,
	manager *alerts.Manager,
	hub *api.Hub,
	eventBus *bus.EventBus,
	db *store.DB,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	allowedOrigins := cfg.Server.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	system := api.NewSystemHandler(cfg.System.Name, version, hub)
	system.AddCheck("event_bus", healthFunc(func() bool {
		return eventBus.Flush() == nil
	}))
	if db != nil {
		system.AddCheck("store", healthFunc(func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.Health(ctx) == nil
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/sensors", api.NewSensorHandler(registry).Routes())
		r.Mount("/geofences", api.NewGeofenceHandler(registry).Routes())
		r.Mount("/watchlists", api.NewWatchlistHandler(registry).Routes())
		r.Mount("/orders", api.NewOrderHandler(matcher).Routes())
		r.Mount("/alerts", api.NewAlertHandler(manager).Routes())
		r.Mount("/system", system.Routes())
	})

	r.Get("/ws", hub.HandleWebSocket)

	return r
}

// findConfigFile looks for the config file in multiple locations.
func findConfigFile() string {
	if configPath := os.Getenv("FIELDWATCH_CONFIG"); configPath != "" {
		return configPath
	}

	locations := []string{
		"./config.yaml",
		"./config/config.yaml",
		"/data/config.yaml",
		"/config/config.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return "/data/config.yaml"
}
