// fireplaced - DaVinci fireplace session daemon
//
// This is the main entry point for fireplaced. It maintains the single
// persistent session to a DaVinci fireplace's IFC control board over a
// serial-to-network Telnet bridge and exposes the device to local
// clients over HTTP, WebSocket, and (optionally) MQTT, with optional
// InfluxDB telemetry and a SQLite transition history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/NTillmann/davinci-fireplace-ha/migrations"

	"github.com/NTillmann/davinci-fireplace-ha/internal/api"
	"github.com/NTillmann/davinci-fireplace-ha/internal/bridges/ifc"
	"github.com/NTillmann/davinci-fireplace-ha/internal/fireplace"
	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/config"
	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/database"
	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/influxdb"
	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/logging"
	"github.com/NTillmann/davinci-fireplace-ha/internal/infrastructure/mqtt"
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

// mqttCommandTimeout bounds how long an MQTT-initiated command waits
// for the board's acknowledgment.
const mqttCommandTimeout = 30 * time.Second

// historyPruneInterval is how often old state history rows are deleted.
const historyPruneInterval = 24 * time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting fireplaced",
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
	db, err := database.Open(ctx, database.Config{
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

	historyRepo := fireplace.NewHistoryRepository(db.DB)

	// Keep the history table bounded
	if cfg.Database.RetentionDays > 0 {
		go pruneHistory(ctx, historyRepo, cfg.Database.RetentionDays, log)
	}

	// State store: single source of truth for device state
	store := fireplace.NewStore()
	store.SetLogger(log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		// One point per process start, for restart tracking
		influxClient.WritePoint("fireplace_daemon",
			map[string]string{"event": "start", "version": version},
			map[string]interface{}{"value": 1},
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Board session coordinator
	coordinator := ifc.New(cfg.Fireplace, store)
	coordinator.SetLogger(log)
	if influxClient != nil {
		coordinator.SetOnCommandResult(func(property fireplace.Property, verb string, latency time.Duration, cmdErr error) {
			influxClient.WriteCommandLatency(property.Key(), verb, latency, cmdErr == nil)
		})
	}

	// Fan state changes out to history, MQTT, and telemetry. Heavy work
	// stays off the coordinator's read loop via the background context;
	// SQLite inserts are fast enough inline.
	store.Subscribe(func(_ fireplace.Snapshot, changes []fireplace.Change) {
		for _, change := range changes {
			if recordErr := historyRepo.RecordChange(context.Background(), change); recordErr != nil {
				log.Error("history write failed", "property", change.Property.Key(), "error", recordErr)
			}
			if mqttClient != nil {
				publishStateChange(mqttClient, change, log)
			}
			if influxClient != nil {
				writePropertyTelemetry(influxClient, change)
			}
		}
	})

	// API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Fireplace:   cfg.Fireplace,
		Logger:      log,
		Coordinator: coordinator,
		History:     historyRepo,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	coordinator.SetOnStateChange(func(state ifc.ConnectionState) {
		log.Info("board connection state changed", "state", state.String())
		apiServer.BroadcastConnectionState(state)
		if influxClient != nil {
			influxClient.WriteConnectionEvent(state.String(), 1)
		}
	})

	coordinator.Start()
	defer func() {
		log.Info("stopping coordinator")
		if closeErr := coordinator.Close(); closeErr != nil {
			log.Error("error closing coordinator", "error", closeErr)
		}
	}()
	log.Info("coordinator started", "address", cfg.Fireplace.Address())

	// MQTT command ingestion
	if mqttClient != nil {
		if subErr := subscribeCommands(mqttClient, coordinator, cfg.MQTT.QoS, log); subErr != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", subErr)
		}
	}

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure connections are healthy. The board itself is
	// allowed to be down; the coordinator reconnects on its own.
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FIREPLACE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FIREPLACE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// pruneHistory deletes state history rows older than the retention
// window, once at startup and then daily, until ctx is cancelled.
func pruneHistory(ctx context.Context, repo *fireplace.HistoryRepository, retentionDays int, log *logging.Logger) {
	retention := time.Duration(retentionDays) * 24 * time.Hour

	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		deleted, err := repo.Prune(ctx, retention)
		switch {
		case err != nil:
			log.Error("history prune failed", "error", err)
		case deleted > 0:
			log.Info("history pruned", "deleted", deleted, "retention_days", retentionDays)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// publishStateChange publishes one property change as a retained state
// topic. The payload is the property's JSON value form: booleans as
// true/false, levels as integers, colors as a channel object.
func publishStateChange(client *mqtt.Client, change fireplace.Change, log *logging.Logger) {
	payload, err := change.Value.MarshalJSON()
	if err != nil {
		log.Error("state payload marshal failed", "property", change.Property.Key(), "error", err)
		return
	}
	if err := client.PublishState(change.Property.Key(), payload); err != nil {
		log.Warn("state publish failed", "property", change.Property.Key(), "error", err)
	}
}

// writePropertyTelemetry writes numeric telemetry for a change:
// booleans as 0/1, levels as-is, color channels as separate series.
func writePropertyTelemetry(client *influxdb.Client, change fireplace.Change) {
	key := change.Property.Key()

	switch change.Value.Kind() {
	case fireplace.KindBool:
		v := 0.0
		if change.Value.Bool() {
			v = 1.0
		}
		client.WritePropertyMetric(key, v)
	case fireplace.KindLevel:
		client.WritePropertyMetric(key, float64(change.Value.Level()))
	case fireplace.KindColor:
		c, ok := change.Value.Color()
		if !ok {
			// OFF sentinel: record all channels at zero
			c = fireplace.Color{}
		}
		client.WritePropertyMetric(key+"_red", float64(c.Red))
		client.WritePropertyMetric(key+"_green", float64(c.Green))
		client.WritePropertyMetric(key+"_blue", float64(c.Blue))
		client.WritePropertyMetric(key+"_white", float64(c.White))
	}
}

// subscribeCommands wires the MQTT command topics to the coordinator.
// Topic form: davinci/command/{property}/set with the SET value grammar
// as payload ("ON", "7", "255,128,64,0").
func subscribeCommands(client *mqtt.Client, coordinator *ifc.Coordinator, qos int, log *logging.Logger) error {
	topics := mqtt.Topics{}

	return client.Subscribe(topics.AllCommands(), byte(qos), func(topic string, payload []byte) error {
		segments := strings.Split(topic, "/")
		if len(segments) != 4 {
			return fmt.Errorf("unexpected command topic %q", topic)
		}

		property, err := fireplace.ParseProperty(segments[2])
		if err != nil {
			return fmt.Errorf("command topic %q: %w", topic, err)
		}

		value, err := fireplace.ParseSetValue(property, string(payload))
		if err != nil {
			return fmt.Errorf("command payload for %s: %w", property.Key(), err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), mqttCommandTimeout)
		defer cancel()

		if err := coordinator.Set(ctx, property, value); err != nil {
			return fmt.Errorf("command %s: %w", property.Key(), err)
		}

		log.Info("MQTT command applied", "property", property.Key(), "value", value.String())
		return nil
	})
}
