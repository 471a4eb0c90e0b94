// Keygrid Core - button-grid fleet daemon
//
// This is the main entry point for the Keygrid daemon. It discovers
// button-grid devices, keeps one session per managed device, loads the
// built-in and external modules, and serves the control protocol on a
// unix socket for keygridctl and other clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/keygrid-core/internal/api"
	"github.com/nerrad567/keygrid-core/internal/component"
	"github.com/nerrad567/keygrid-core/internal/core"
	"github.com/nerrad567/keygrid-core/internal/devconfig"
	"github.com/nerrad567/keygrid-core/internal/driver"
	"github.com/nerrad567/keygrid-core/internal/driver/virtual"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/config"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/database"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/logging"
	"github.com/nerrad567/keygrid-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/keygrid-core/internal/module"
	"github.com/nerrad567/keygrid-core/internal/module/builtin"
	"github.com/nerrad567/keygrid-core/internal/module/external"
	"github.com/nerrad567/keygrid-core/internal/module/relay"
	"github.com/nerrad567/keygrid-core/internal/module/telemetry"
	"github.com/nerrad567/keygrid-core/internal/session"
	"github.com/nerrad567/keygrid-core/internal/store"
	"github.com/nerrad567/keygrid-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// configEnv overrides the configuration file path.
	configEnv = "KEYGRID_CONFIG"

	// historyRetention is how long button action history is kept.
	historyRetention = 30 * 24 * time.Hour

	// stopTimeout bounds how long sessions get to close on shutdown.
	stopTimeout = 10 * time.Second
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Keygrid Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.Init(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	images := store.NewSQLiteImageRepository(db.DB)
	history := store.NewSQLiteHistoryRepository(db.DB)

	configs, err := devconfig.NewStore(cfg.Devices.ConfigDir)
	if err != nil {
		return fmt.Errorf("opening device config directory: %w", err)
	}

	// Drivers
	drivers := driver.NewManager()
	drivers.SetLogger(log.With("component", "drivers"))
	if _, regErr := drivers.Register(driver.NamespaceBuiltin, newVirtualDriver(cfg.Virtual)); regErr != nil {
		return fmt.Errorf("registering virtual driver: %w", regErr)
	}
	log.Info("drivers registered", "drivers", drivers.Names(), "virtual_devices", len(cfg.Virtual.Devices))

	// Modules
	components := component.NewRegistry()
	components.SetLogger(log.With("component", "components"))
	modules := module.NewManager(components)
	modules.SetLogger(log.With("component", "modules"))

	coreModule := builtin.New(version)
	coreModule.SetLogger(log.With("module", builtin.Name))
	if regErr := modules.Register(coreModule); regErr != nil {
		return fmt.Errorf("registering core module: %w", regErr)
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var renderMetrics session.RenderRecorder
	var telemetryStats api.WriteStats
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		renderMetrics = influxClient
		telemetryStats = influxClient
		if regErr := modules.Register(telemetry.New(influxClient, version)); regErr != nil {
			return fmt.Errorf("registering telemetry module: %w", regErr)
		}
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	mgr, err := core.New(core.Options{
		Drivers:           drivers,
		Modules:           modules,
		Configs:           configs,
		Images:            images,
		History:           history,
		Metrics:           renderMetrics,
		HistoryRetention:  historyRetention,
		ReconnectInterval: cfg.GetReconnectInterval(),
		PollRate:          float64(cfg.Devices.PollRateHz),
		QueueSize:         cfg.Devices.CommandQueueSize,
		Watch:             cfg.Devices.Watch,
		Logger:            log.With("component", "core"),
	})
	if err != nil {
		return fmt.Errorf("creating device manager: %w", err)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var mqttStatus api.Connectivity
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		mqttStatus = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		relayModule, relayErr := relay.New(relay.Options{
			Client:     mqttClient,
			Controller: mgr.Controller("mqtt"),
			Version:    version,
			Logger:     log.With("module", relay.Name),
		})
		if relayErr != nil {
			return fmt.Errorf("creating mqtt relay: %w", relayErr)
		}
		if regErr := modules.Register(relayModule); regErr != nil {
			return fmt.Errorf("registering mqtt relay: %w", regErr)
		}
		if startErr := relayModule.Start(ctx); startErr != nil {
			return fmt.Errorf("starting mqtt relay: %w", startErr)
		}
		defer relayModule.Stop()
	} else {
		log.Info("MQTT disabled")
	}

	// External plugins, after the built-ins so registration order is stable
	plugins := loadPlugins(ctx, cfg, modules, mgr, log)
	defer func() {
		for _, p := range plugins {
			if stopErr := p.Stop(); stopErr != nil {
				log.Warn("error stopping plugin", "plugin", p.Name(), "error", stopErr)
			}
		}
	}()

	if startErr := mgr.Start(ctx); startErr != nil {
		return fmt.Errorf("starting device manager: %w", startErr)
	}
	defer func() {
		log.Info("stopping device sessions")
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		mgr.Stop(stopCtx)
	}()

	// Control socket
	srv, err := api.New(api.Deps{
		Config:    cfg.Socket,
		Logger:    log.With("component", "api"),
		Core:      mgr,
		MQTT:      mqttStatus,
		Telemetry: telemetryStats,
		DB:        db.DB,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating control socket: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting control socket: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing control socket", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"socket", cfg.Socket.Path,
		"modules", len(modules.Modules()),
		"devices", len(mgr.Devices()),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: control socket, sessions,
	// plugins, MQTT, InfluxDB, database.

	log.Info("Keygrid Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses KEYGRID_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path. A missing file at the default location means a
// first run and yields the built-in defaults; an explicitly named file
// must exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if vErr := cfg.Validate(); vErr != nil {
			return nil, vErr
		}
		return cfg, nil
	}
	return nil, err
}

// newVirtualDriver builds the simulated devices listed in the config.
func newVirtualDriver(cfg config.VirtualConfig) *virtual.Driver {
	devices := make([]virtual.Config, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, virtual.Config{Serial: d.Serial, Rows: d.Rows, ImageSize: d.ImageSize})
	}
	return virtual.New(devices...)
}

// loadPlugins starts every external plugin under the plugins directory.
// Failures are logged per plugin and never stop the daemon.
func loadPlugins(ctx context.Context, cfg *config.Config, modules *module.Manager, mgr *core.Manager, log *logging.Logger) []*external.Plugin {
	loaded, results, err := external.LoadAll(ctx, cfg.Plugins.Dir, modules, external.Options{
		RequestTimeout: cfg.GetPluginRequestTimeout(),
		Controller:     mgr.Controller("plugin"),
		Logger:         log.With("component", "plugins"),
	})
	if err != nil {
		log.Warn("plugins not loaded", "dir", cfg.Plugins.Dir, "error", err)
		return nil
	}
	for _, r := range results {
		if r.Err != nil {
			log.Warn("plugin skipped", "dir", r.Dir, "error", r.Err)
		}
	}
	log.Info("plugins loaded", "dir", cfg.Plugins.Dir, "loaded", len(loaded), "found", len(results))
	return loaded
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
