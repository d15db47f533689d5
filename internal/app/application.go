package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"supportdesk/internal/api"
	"supportdesk/internal/config"
	"supportdesk/internal/database"
	"supportdesk/internal/dispatcher"
	"supportdesk/internal/hub"
	"supportdesk/internal/mirror"
	"supportdesk/internal/router"
	"supportdesk/internal/websocket"
	pkgdatabase "supportdesk/pkg/database"
)

// Application owns every component and their lifecycles
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	registry   *websocket.Registry
	dispatcher *dispatcher.Dispatcher
	archiver   *dispatcher.Archiver
	mirror     *mirror.Mirror
	redis      *mirror.RedisStore
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewApplication builds components in dependency order:
// Database → Registry → Dispatcher → Archiver → Mirror → Hub → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath)
	if err := migrationManager.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrationManager.ValidateSchema(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("database schema invalid: %w", err)
	}
	log.Println("Database migrations applied successfully")

	registry := websocket.NewRegistry()

	d := dispatcher.New(dispatcher.Config{
		Categories:     cfg.Dispatcher.Categories,
		TechnicianName: cfg.Dispatcher.TechnicianName,
	}, registry)

	archiver := dispatcher.NewArchiver(dbManager, d.Unicast, dispatcher.ArchiverConfig{
		QueueSize: cfg.Dispatcher.ArchiveQueueSize,
		Workers:   cfg.Dispatcher.ArchiveWorkers,
		Timeout:   cfg.Dispatcher.ArchiveTimeout,
	})
	d.SetArchiver(archiver)

	application := &Application{
		config:     cfg,
		dbManager:  dbManager,
		registry:   registry,
		dispatcher: d,
		archiver:   archiver,
	}

	if cfg.Redis.Enabled {
		application.redis = mirror.NewRedisStore(mirror.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			OpTimeout: cfg.Redis.Timeout,
		})
		application.mirror = mirror.New(application.redis, mirror.Config{
			QueueSize: cfg.Redis.QueueSize,
			Timeout:   cfg.Redis.Timeout,
		})
		d.SetObserver(application.mirror)
	}

	application.hub = hub.NewHub(d, router.NewRouter(), cfg.Dispatcher.EventBuffer)

	application.apiServer = api.NewServer(dbManager, application.hub, registry, api.Config{
		UploadDir:      cfg.Storage.UploadDir,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	})

	wsHandler := websocket.NewHandler(registry, application.hub, websocket.HandlerConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		BufferSize:     cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", application.apiServer)
	mux.Handle("/health", application.apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	application.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return application, nil
}

// Start runs the hub and begins serving HTTP.
// It returns once the listener is bound; serve errors after that are logged.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting supportdesk on %s", app.httpServer.Addr)

	if app.redis != nil {
		if err := app.redis.Ping(ctx); err != nil {
			log.Printf("Redis mirror unreachable, writes will be retried per event: %v", err)
		} else if err := app.redis.Reset(ctx); err != nil {
			log.Printf("Redis mirror reset failed: %v", err)
		}
	}

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("HTTP server error: %w", err)
	}
	app.mu.Lock()
	app.listener = listener
	app.mu.Unlock()

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("supportdesk started on %s", listener.Addr())
	return nil
}

// Stop shuts down in reverse dependency order:
// HTTP → sockets → Hub → Mirror → Archiver → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down supportdesk")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.registry.CloseAll()

	if err := app.hub.Stop(); err != nil {
		log.Printf("Dispatcher hub shutdown error: %v", err)
	}

	if app.mirror != nil {
		app.mirror.Shutdown()
		enqueued, dropped, written, errs := app.mirror.Stats()
		log.Printf("Redis mirror stopped: enqueued=%d dropped=%d written=%d errors=%d", enqueued, dropped, written, errs)
		if err := app.redis.Close(); err != nil {
			log.Printf("Redis close error: %v", err)
		}
	}

	app.archiver.Shutdown()
	enqueued, dropped, written, errs := app.archiver.Stats()
	log.Printf("Archiver stopped: enqueued=%d dropped=%d written=%d errors=%d", enqueued, dropped, written, errs)

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("supportdesk shutdown complete")
	return nil
}

// Handler returns the root HTTP handler
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

// GetAddr returns the bound address once started, otherwise the configured one
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
