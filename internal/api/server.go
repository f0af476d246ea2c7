// Package api provides the HTTP REST surface of the T-Deck-Pro hub.
//
// It exposes read access to the persisted state (device list, telemetry
// history, OTA catalog, mesh log), the OTA upload/download paths, and
// push endpoints that publish hub-to-device messages over MQTT.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/device"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/config"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/logging"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/mesh"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/ota"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/protocol"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Pusher publishes hub-to-device messages. Satisfied by *hub.Router.
type Pusher interface {
	PublishConfig(deviceID string) error
	PublishUpdateNotice(deviceID string, notice protocol.UpdateNotice) error
	PublishAppCommand(deviceID string, cmd protocol.AppCommand) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Registry  *device.Registry
	Telemetry telemetry.Store
	Catalog   ota.Catalog
	Files     *ota.FileStore
	Relay     mesh.Relay
	Pusher    Pusher // nil when MQTT is unavailable; push endpoints return 503
	Version   string
}

// Server is the HTTP API server for the hub.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	registry  *device.Registry
	telemetry telemetry.Store
	catalog   ota.Catalog
	files     *ota.FileStore
	relay     mesh.Relay
	pusher    Pusher
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, stores)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Telemetry == nil {
		return nil, fmt.Errorf("telemetry store is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("ota catalog is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("mesh relay is required")
	}
	// Pusher and Files are optional; affected endpoints degrade.

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "api"),
		registry:  deps.Registry,
		telemetry: deps.Telemetry,
		catalog:   deps.Catalog,
		files:     deps.Files,
		relay:     deps.Relay,
		pusher:    deps.Pusher,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; the server is stopped
// with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
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
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
