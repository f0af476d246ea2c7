// T-Deck-Pro hub server.
//
// The hub is the central authority for a fleet of T-Deck-Pro handheld
// devices: it routes their MQTT traffic, persists device state,
// telemetry, OTA updates and mesh messages in SQLite, and exposes a
// REST API over the same store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/kdegeek/T-Deck-Pro-OS-Server/migrations"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/api"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/device"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/hub"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/config"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/database"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/influxdb"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/logging"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/mqtt"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/mesh"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/ota"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting T-Deck-Pro hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Stores over the shared database
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), log)
	telemetryStore := telemetry.NewSQLiteStore(db.DB)
	catalog := ota.NewSQLiteCatalog(db.DB)
	relay := mesh.NewSQLiteRelay(db.DB)

	fileStore, err := ota.NewFileStore(cfg.Storage.OTADir)
	if err != nil {
		return fmt.Errorf("opening OTA storage: %w", err)
	}
	log.Info("OTA storage ready", "dir", cfg.Storage.OTADir)

	// Connect to MQTT broker
	topics := mqtt.NewTopics(cfg.Server.Namespace)
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"namespace", cfg.Server.Namespace,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional telemetry mirror)
	var influxClient *influxdb.Client
	var mirror hub.TelemetryMirror
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		mirror = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Message router: subscribes the device-facing wildcards and owns
	// all inbound MQTT handling.
	router := hub.NewRouter(
		mqttClient,
		topics,
		registry,
		telemetryStore,
		relay,
		mirror,
		cfg.Server,
		byte(cfg.MQTT.QoS),
		log,
	)
	if err := router.Start(); err != nil {
		return fmt.Errorf("starting message router: %w", err)
	}
	log.Info("message router started", "subscriptions", mqttClient.SubscriptionCount())

	// Presence sweep (optional): flips silent devices to offline.
	if cfg.Presence.Enabled {
		sweeper := device.NewSweeper(
			registry,
			cfg.Presence.GetSweepInterval(),
			cfg.Presence.GetOfflineAfter(),
			log,
		)
		go sweeper.Run(ctx)
		log.Info("presence sweep enabled",
			"interval_seconds", cfg.Presence.SweepInterval,
			"offline_after_seconds", cfg.Presence.OfflineAfter,
		)
	}

	// REST API over the same store; pushes go out through the router.
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log,
		Registry:  registry,
		Telemetry: telemetryStore,
		Catalog:   catalog,
		Files:     fileStore,
		Relay:     relay,
		Pusher:    router,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("T-Deck-Pro hub stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TDECKPRO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TDECKPRO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
