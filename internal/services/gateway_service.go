package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	ws "github.com/benmeehan/device-hub/pkg/websocket"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// GatewayConfig holds the listener and transport settings of the gateway.
type GatewayConfig struct {
	ListenAddr      string
	TLSCertFile     string
	TLSKeyFile      string
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteTimeout    time.Duration
}

// GatewayService accepts device WebSocket connections and serves the REST
// surface of the hub on a single HTTP server.
type GatewayService struct {
	config   GatewayConfig
	hub      DeviceGateway
	upgrader *websocket.Upgrader
	logger   zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	// sessions tracks device connections, which outlive http.Server.Shutdown.
	sessions sync.WaitGroup
}

// NewGatewayService initializes a new GatewayService.
func NewGatewayService(config GatewayConfig, hub DeviceGateway, logger zerolog.Logger) *GatewayService {
	return &GatewayService{
		config:   config,
		hub:      hub,
		upgrader: ws.NewUpgrader(config.ReadBufferSize, config.WriteBufferSize),
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

// Handler returns the HTTP routes of the gateway.
func (g *GatewayService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/device", g.handleDeviceSocket)
	mux.HandleFunc("GET /ws/device/{device_id}", g.handleDeviceSocket)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /devices", g.handleListDevices)
	mux.HandleFunc("GET /devices/{device_id}", g.handleGetDevice)
	mux.HandleFunc("POST /devices/{device_id}/command", g.handleCommand)
	return mux
}

// Start binds the listener and serves in the background.
func (g *GatewayService) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.server != nil {
		return errors.New("gateway service is already running")
	}

	listener, err := net.Listen("tcp", g.config.ListenAddr)
	if err != nil {
		g.logger.Error().Err(err).Str("addr", g.config.ListenAddr).Msg("Failed to bind listener")
		return fmt.Errorf("failed to listen on %s: %w", g.config.ListenAddr, err)
	}
	// A shut down http.Server cannot be reused, so every Start gets a new one.
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	g.listener = listener
	g.server = server
	g.ctx, g.cancel = ctx, cancel

	tlsEnabled := g.config.TLSCertFile != "" && g.config.TLSKeyFile != ""
	go func() {
		var err error
		if tlsEnabled {
			err = server.ServeTLS(listener, g.config.TLSCertFile, g.config.TLSKeyFile)
		} else {
			err = server.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error().Err(err).Msg("Gateway server stopped unexpectedly")
		}
	}()

	g.logger.Info().
		Str("addr", listener.Addr().String()).
		Bool("tls", tlsEnabled).
		Msg("GatewayService started successfully")
	return nil
}

// Stop closes the listener, waits for in-flight requests and closes every
// device connection.
func (g *GatewayService) Stop() error {
	g.mu.Lock()
	server, cancelSessions := g.server, g.cancel
	if server == nil {
		g.mu.Unlock()
		return errors.New("gateway service is not running")
	}
	g.server = nil
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Device sockets are hijacked, so cancel their loops before Shutdown waits.
	cancelSessions()
	err := server.Shutdown(ctx)
	g.sessions.Wait()

	if err != nil {
		g.logger.Error().Err(err).Msg("Gateway shutdown did not complete cleanly")
		return err
	}
	g.logger.Info().Msg("GatewayService stopped successfully")
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (g *GatewayService) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// sessionContext is the context device session loops run under. It is
// cancelled by Stop.
func (g *GatewayService) sessionContext() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx == nil {
		return context.Background()
	}
	return g.ctx
}
