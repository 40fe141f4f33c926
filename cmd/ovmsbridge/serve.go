package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/ovms-bridge/internal/api"
	"github.com/nerrad567/ovms-bridge/internal/audit"
	"github.com/nerrad567/ovms-bridge/internal/connection"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/config"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/database"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/ovms-bridge/internal/metrics"
	"github.com/nerrad567/ovms-bridge/internal/store"
	"github.com/nerrad567/ovms-bridge/internal/vehicle"
	"github.com/nerrad567/ovms-bridge/migrations"
)

// shutdownTimeout bounds the session teardown (offline publish, worker drain).
const shutdownTimeout = 10 * time.Second

// retentionInterval is how often state history is pruned.
const retentionInterval = time.Hour

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown; the cause when startup fails or the
//     vehicle session fails permanently
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting OVMS bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"vehicle", cfg.Vehicle.ID,
		"base_topic", cfg.Vehicle.BaseTopic(),
		"level", cfg.Logging.Level,
		"stale_after_hours", cfg.Vehicle.StaleAfter,
	)

	// Database
	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path(), "migrations_applied", applied)

	st := store.New(db.DB, cfg.Vehicle.ID)
	if cfg.Database.HistoryRetention > 0 {
		retention := store.NewRetention(st,
			time.Duration(cfg.Database.HistoryRetention)*time.Hour, retentionInterval, log.Component("retention"))
		retention.Start(ctx)
		defer retention.Stop()
	}

	// Time-series export (optional)
	var export vehicle.ObjectWriter
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		var influxErr error
		influxClient, influxErr = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Vehicle.ID)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection", "points_written", influxClient.Written())
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		export = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	checks := map[string]api.HealthChecker{"database": db}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	// Metrics
	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if m, err = metrics.New(registry); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}

	// Vehicle session
	hub := api.NewHub(log.Component("ws"))
	fatal := make(chan error, 1)

	sess, err := vehicle.New(vehicle.ConfigFrom(cfg), vehicle.Deps{
		Dialer:  connection.MQTTDialer(cfg.MQTT, log.Component("mqtt")),
		Store:   st,
		Export:  export,
		Metrics: m,
		Logger:  log.Component("vehicle"),
	}, vehicle.Callbacks{
		Created:           hub.ObjectCreated,
		Updated:           hub.ObjectUpdated,
		Removed:           hub.ObjectRemoved,
		DeviceUpdated:     hub.DeviceUpdated,
		ConnectionChanged: hub.ConnectionChanged,
		Fatal: func(err error) {
			select {
			case fatal <- err:
			default:
			}
		},
	})
	if err != nil {
		return fmt.Errorf("creating vehicle session: %w", err)
	}
	defer shutdownSession(sess, log)

	if startErr := sess.Start(ctx); startErr != nil {
		if errors.Is(startErr, connection.ErrAuth) || errors.Is(startErr, connection.ErrShuttingDown) {
			return fmt.Errorf("starting vehicle session: %w", startErr)
		}
		log.Warn("broker unreachable at startup; retrying in background", "error", startErr)
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		srv, apiErr := startAPI(ctx, cfg, sess, hub, registry, audit.NewSQLiteRepository(db.DB), checks, log)
		if apiErr != nil {
			return apiErr
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("OVMS bridge running", "vehicle", cfg.Vehicle.ID)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		return nil
	case err := <-fatal:
		return fmt.Errorf("vehicle session failed: %w", err)
	}
}

func startAPI(ctx context.Context, cfg *config.Config, sess *vehicle.Session, hub *api.Hub,
	registry *prometheus.Registry, commands audit.Repository, checks map[string]api.HealthChecker,
	log *logging.Logger,
) (*api.Server, error) {
	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		Metrics:   cfg.Metrics,
		Gatherer:  registry,
		Logger:    log.Component("api"),
		Vehicle:   sess,
		VehicleID: cfg.Vehicle.ID,
		Hub:       hub,
		Audit:     commands,
		Checks:    checks,
		Version:   version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	go hub.Run(ctx)
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	if cfg.API.Auth.Secret == "" {
		log.Warn("api.auth.secret not set; command endpoints are disabled")
	}
	return srv, nil
}

// healthCheck verifies the storage connections before the session starts.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - influxClient: InfluxDB client to check (nil when export is disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db api.HealthChecker, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// shutdownSession stops the session and snapshots the final object state.
func shutdownSession(sess *vehicle.Session, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sess.Shutdown(ctx); err != nil {
		log.Error("error shutting down vehicle session", "error", err)
	}
	if n, err := sess.Snapshot(ctx); err != nil {
		log.Error("saving final snapshot failed", "error", err)
	} else {
		log.Info("final snapshot saved", "objects", n)
	}
}
