package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leafbox/leafbox-core/internal/api"
	"github.com/leafbox/leafbox-core/internal/auth"
	"github.com/leafbox/leafbox-core/internal/bridges/esp"
	"github.com/leafbox/leafbox-core/internal/device"
	"github.com/leafbox/leafbox-core/internal/infrastructure/config"
	"github.com/leafbox/leafbox-core/internal/infrastructure/database"
	"github.com/leafbox/leafbox-core/internal/infrastructure/influxdb"
	"github.com/leafbox/leafbox-core/internal/infrastructure/logging"
	"github.com/leafbox/leafbox-core/internal/infrastructure/mqtt"
	"github.com/leafbox/leafbox-core/internal/infrastructure/sysinfo"
	"github.com/leafbox/leafbox-core/internal/media"
	"github.com/leafbox/leafbox-core/internal/plant"
)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and device bridge",
		Long: `Run the REST API, the dashboard WebSocket and the MQTT device bridge
until SIGINT or SIGTERM. Pending migrations are applied on start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

// run is the server lifecycle, separated from the command for testability.
//
// Resources are released by the defer chain in reverse order of
// acquisition: HTTP server, hub sessions, bridge subscription, image
// cleanup, MQTT, InfluxDB, database.
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting LeafBox Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	devices := device.NewSQLiteRepository(db.DB)
	plants := plant.NewSQLiteRepository(db.DB)
	resolver := device.NewResolver(devices, plants)
	authSvc := auth.NewService(auth.NewUserRepository(db.DB), cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)

	images, err := media.NewStore(cfg.Uploads.Dir)
	if err != nil {
		return fmt.Errorf("opening upload directory: %w", err)
	}
	log.Info("upload directory ready",
		"dir", images.Dir(),
		"max_bytes", cfg.GetMaxUploadBytes(),
	)

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
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT. Without a broker the API and dashboards still work;
	// config pushes and dashboard commands are skipped.
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		log.Error("MQTT unavailable, device bridge disabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"error", err,
		)
	} else {
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		images.RunCleanup(cleanupCtx, cfg.GetCleanupInterval(), plants, log.With("component", "media"))
	}()
	defer func() {
		log.Info("stopping image cleanup")
		cleanupCancel()
		<-cleanupDone
	}()

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"), sysinfo.NewHostSampler())

	var bridge *esp.Bridge
	if mqttClient != nil {
		bridge, err = startBridge(cfg, mqttClient, influxClient, hub, devices, plants, resolver, log)
		if err != nil {
			return fmt.Errorf("starting device bridge: %w", err)
		}
		defer func() {
			log.Info("stopping device bridge")
			bridge.Stop()
		}()
		hub.SetForwarder(bridge)
	}

	hubCtx, hubCancel := context.WithCancel(ctx)
	go hub.Run(hubCtx)
	defer func() {
		log.Info("closing dashboard sessions")
		hubCancel()
		hub.Close()
	}()

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Devices:  devices,
		Plants:   plants,
		Auth:     authSvc,
		Resolver: resolver,
		DB:       db,
		Hub:      hub,
		Version:  version,

		PlantInfo:      plant.NewInfoRepository(db.DB),
		Images:         images,
		MaxUploadBytes: cfg.GetMaxUploadBytes(),
	}
	if bridge != nil {
		deps.Pusher = bridge
		deps.MQTT = mqttClient
	}
	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// startBridge wires the device message router to MQTT and subscribes.
func startBridge(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	hub *api.Hub,
	devices *device.SQLiteRepository,
	plants *plant.SQLiteRepository,
	resolver *device.Resolver,
	log *logging.Logger,
) (*esp.Bridge, error) {
	bridgeLog := log.With("component", "esp")

	opts := esp.RouterOptions{
		Topics:      mqttClient.Topics(),
		Devices:     devices,
		Plants:      plants,
		Resolver:    resolver,
		Broadcaster: hub,
		Publisher:   mqttClient,
		Logger:      bridgeLog,
	}
	if influxClient != nil {
		opts.Mirror = influxClient
	}

	router, err := esp.NewRouter(opts)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	bridge, err := esp.NewBridge(esp.BridgeOptions{
		Router:    router,
		Transport: mqttClient,
		Devices:   devices,
		Topics:    mqttClient.Topics(),
		QoS:       byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0-2
		Logger:    bridgeLog,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(); err != nil {
		return nil, err
	}
	log.Info("device bridge started", "topic", mqttClient.Topics().All())
	return bridge, nil
}

// healthCheck verifies the infrastructure connections that are in use.
// mqttClient and influxClient may be nil.
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
