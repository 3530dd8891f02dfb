package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/gridstash/internal/authority"
	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/internal/storage"
	"github.com/gravitas-games/gridstash/internal/world"
	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// ErrSessionFull is returned when a player joins a session at capacity.
var ErrSessionFull = errors.New("server: session is full")

// StashID is the shared container every player can loot from.
const StashID = "stash"

// Server represents the game server
type Server struct {
	config    *config.Config
	session   *Session
	upgrader  websocket.Upgrader
	httpSrv   *http.Server
	validator TokenValidator
	redis     *redis.Client
	logger    logrus.FieldLogger

	registry  *inventory.Registry
	authority *authority.Authority
	schemas   *network.Validator
	store     storage.SnapshotStore
	ledger    *storage.Ledger

	// Connection tracking
	connections map[*Connection]bool
	connMu      sync.RWMutex

	// Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	loop   chan error
}

// Option customizes server construction, mostly for tests.
type Option func(*Server)

// WithValidator replaces the JWT validator.
func WithValidator(v TokenValidator) Option {
	return func(s *Server) { s.validator = v }
}

// WithStore replaces the snapshot store.
func WithStore(store storage.SnapshotStore) Option {
	return func(s *Server) { s.store = store }
}

// WithRedis uses an existing redis client instead of dialing one.
func WithRedis(client *redis.Client) Option {
	return func(s *Server) { s.redis = client }
}

// New creates a new server instance
func New(cfg *config.Config, logger logrus.FieldLogger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.Info("Initializing server...")

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:      cfg,
		connections: make(map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		loop:        make(chan error, 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(srv)
	}

	if err := srv.init(); err != nil {
		cancel()
		srv.closeBackends()
		return nil, err
	}

	go func() {
		srv.loop <- srv.authority.Run(ctx)
	}()
	if err := srv.seedStash(); err != nil {
		logger.WithError(err).Warn("Failed to create shared stash.")
	}

	logger.Info("Server initialized successfully.")
	return srv, nil
}

func (s *Server) init() error {
	cfg := s.config

	needRedis := s.validator == nil || (s.store == nil && cfg.Storage.Enabled)
	if s.redis == nil && needRedis {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redis.Ping(s.ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.logger.Info("Connected to Redis.")
	}

	if s.validator == nil {
		v, err := NewJWTValidator(s.ctx, cfg, s.redis, s.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize JWT validator: %w", err)
		}
		s.validator = v
	}

	reg, err := loadRegistry(cfg.Inventory.CatalogPath)
	if err != nil {
		return err
	}
	s.registry = reg
	s.logger.Infof("Item catalog loaded with %d kinds.", reg.Len())

	schemas, err := network.NewValidator()
	if err != nil {
		return fmt.Errorf("failed to build message schemas: %w", err)
	}
	s.schemas = schemas

	if s.store == nil {
		if cfg.Storage.Enabled {
			s.store = storage.NewRedisStore(s.redis, cfg.Storage.RedisPrefix, cfg.Storage.SnapshotTTL, s.logger)
		} else {
			s.store = storage.NewMemoryStore()
		}
	}

	s.session = NewSession("main", cfg, s.logger)

	authOpts := []authority.Option{
		authority.WithBroadcaster(s.session),
		authority.WithLogger(s.logger),
		authority.WithTickRate(cfg.Interaction.TickRate),
	}
	if cfg.Storage.Enabled {
		ledger, err := storage.OpenLedger(cfg.Storage.SQLitePath, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		s.ledger = ledger
		authOpts = append(authOpts, authority.WithRecorder(ledger))
	}

	w := world.New(s.logger, cfg.Interaction.Distance*2)
	w.SetInteractionDistance(cfg.Interaction.Distance)
	s.authority = authority.New(reg, w, authOpts...)
	return nil
}

func loadRegistry(path string) (*inventory.Registry, error) {
	if path == "" {
		return inventory.SampleRegistry(), nil
	}
	reg := inventory.NewRegistry()
	if _, err := reg.LoadCatalogFile(path); err != nil {
		return nil, fmt.Errorf("failed to load item catalog: %w", err)
	}
	return reg, nil
}

// seedStash registers the shared container, restoring it from storage or
// filling it with one of every kind.
func (s *Server) seedStash() error {
	stash := inventory.New(StashID, "", 6, 6, 200,
		inventory.WithRegistry(s.registry),
		inventory.WithLogger(s.logger),
	)
	if err := s.store.Load(s.ctx, stash); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		for _, kind := range s.registry.Export() {
			stash.TryAddItemFromKind(kind.ID, nil, 1)
		}
	}
	return s.authority.AddInventory(s.ctx, stash)
}

// Start begins listening for connections
func (s *Server) Start(addr string) error {
	s.logger.Infof("Starting WebSocket server on %s", addr)

	// Create HTTP server
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Infof("WebSocket endpoint: ws://%s/ws", addr)
	s.logger.Infof("Health endpoint: http://%s/health", addr)

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server...")

	// Shutdown HTTP server with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("HTTP server shutdown error.")
		}
	}

	// Close all WebSocket connections; each saves its player's inventory.
	s.connMu.RLock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.connMu.RUnlock()
	for _, conn := range conns {
		conn.Close()
	}

	if snap, err := s.authority.Snapshot(ctx, StashID); err == nil {
		s.saveSnapshot(ctx, snap)
	}

	s.cancel()
	select {
	case <-s.loop:
	case <-ctx.Done():
		s.logger.Warn("Authority loop did not stop in time.")
	}

	s.closeBackends()
	s.logger.Info("Server shutdown complete.")
	return nil
}

func (s *Server) closeBackends() {
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.WithError(err).Warn("Ledger close error.")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.WithError(err).Warn("Redis close error.")
		}
	}
}

// saveSnapshot persists a snapshot taken on the authority loop.
func (s *Server) saveSnapshot(ctx context.Context, snap inventory.Snapshot) {
	inv := inventory.New(snap.ID, snap.Owner, snap.Rows, snap.Columns, snap.WeightCapacity,
		inventory.WithRegistry(s.registry))
	if _, err := inv.ApplySnapshot(snap); err != nil {
		s.logger.WithError(err).WithField("inventory", snap.ID).Warn("Failed to rebuild inventory for saving.")
		return
	}
	if err := s.store.Save(ctx, inv); err != nil {
		s.logger.WithError(err).WithField("inventory", snap.ID).Warn("Failed to save inventory.")
	}
}

// handleWebSocket handles WebSocket connection requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithField("remote", r.RemoteAddr)
	log.Debug("New WebSocket connection request.")

	// Extract JWT token from header
	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		log.Warn("Missing JWT token.")
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	// Validate JWT token
	player, err := s.validator.ValidateToken(r.Context(), tokenString)
	if err != nil {
		log.WithError(err).Warn("Invalid JWT token.")
		http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
		return
	}

	log.Infof("Authenticated user: %s (%s).", player.Username, player.ID)

	// Upgrade HTTP connection to WebSocket
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed.")
		return
	}

	// Create connection with authenticated player
	conn := NewConnection(ws, s)
	conn.player = player
	conn.authenticated = true

	// Register connection
	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()

	// Handle connection (blocking)
	conn.Handle()

	// Unregister connection when done
	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()

	log.Infof("WebSocket connection closed: %s.", player.Username)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
