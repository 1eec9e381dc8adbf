package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/leafbox/leafbox-core/internal/auth"
	"github.com/leafbox/leafbox-core/internal/device"
	"github.com/leafbox/leafbox-core/internal/infrastructure/config"
	"github.com/leafbox/leafbox-core/internal/infrastructure/logging"
	"github.com/leafbox/leafbox-core/internal/infrastructure/sysinfo"
	"github.com/leafbox/leafbox-core/internal/media"
	"github.com/leafbox/leafbox-core/internal/plant"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	gracefulShutdownTimeout = 10 * time.Second

	defaultMaxUploadBytes = 10 << 20
)

// ConfigResolver derives the configuration a device would receive.
type ConfigResolver interface {
	Resolve(ctx context.Context, mac string) (*device.Configuration, error)
}

// ConfigPusher sends fresh configuration to devices after operator edits.
// Implemented by the ESP bridge; it lives outside this package so the
// API does not depend on the MQTT transport.
type ConfigPusher interface {
	OnDeviceConfigChanged(ctx context.Context, d *device.Device) error
	OnPlantChanged(ctx context.Context, plantID int64) error
}

// ConnectionStatus reports whether the device transport is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// StatsProvider exposes connection pool statistics.
type StatsProvider interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Devices  device.Repository
	Plants   plant.Repository
	Auth     *auth.Service
	Resolver ConfigResolver

	// PlantInfo and Images are optional. Without them the lookup and
	// image routes are not registered.
	PlantInfo plant.InfoRepository
	Images    *media.Store

	// MaxUploadBytes caps image uploads. Zero means 10 MB.
	MaxUploadBytes int64

	// Pusher is optional. Without it edits are stored but not pushed.
	Pusher ConfigPusher

	// MQTT and DB are optional and only feed /api/metrics.
	MQTT ConnectionStatus
	DB   StatsProvider

	// Hub is optional. When nil the server creates its own from Sampler.
	Hub     *Hub
	Sampler sysinfo.Sampler

	Version string
}

// Server is the HTTP API server for LeafBox Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	devices   device.Repository
	plants    plant.Repository
	auth      *auth.Service
	resolver  ConfigResolver
	plantInfo plant.InfoRepository
	images    *media.Store
	pusher    ConfigPusher
	mqtt      ConnectionStatus
	db        StatsProvider
	sampler   sysinfo.Sampler
	version   string
	startTime time.Time

	maxUploadBytes int64

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if deps.Plants == nil {
		return nil, fmt.Errorf("plant repository is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("config resolver is required")
	}
	if deps.Hub == nil && deps.Sampler == nil {
		return nil, fmt.Errorf("hub or sampler is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		devices:   deps.Devices,
		plants:    deps.Plants,
		auth:      deps.Auth,
		resolver:  deps.Resolver,
		plantInfo: deps.PlantInfo,
		images:    deps.Images,
		pusher:    deps.Pusher,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		sampler:   deps.Sampler,
		version:   deps.Version,
		startTime: time.Now(),

		maxUploadBytes: deps.MaxUploadBytes,
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultMaxUploadBytes
	}

	// The ESP router broadcasts through the hub, so main usually builds it
	// first and injects it here.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// SetPusher sets the config pusher after construction. The bridge needs
// the hub, which may come from this server, so the order is not fixed.
func (s *Server) SetPusher(p ConfigPusher) {
	s.pusher = p
}

// Hub returns the server's WebSocket hub. Nil before Start unless one was
// injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub if the server owns it and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger, s.sampler)
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. An injected hub is left
// for its owner to close.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
