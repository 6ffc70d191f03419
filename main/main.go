package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/chat"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/config"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/llm"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/observability"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/query"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/schemastore"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/session"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/web"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/websocket"
)

const version = "1.0.0"

// ChatService is the question pipeline as the handlers use it
type ChatService interface {
	Connect(ctx context.Context, creds db.Credentials) (*chat.Connection, error)
	Ask(ctx context.Context, conn *chat.Connection, question string) (*chat.Answer, error)
	AskStream(ctx context.Context, conn *chat.Connection, question string, emit func(chat.Event) error) (*chat.Answer, error)
	Disconnect(ctx context.Context, conn *chat.Connection) error
}

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Chat     ChatService
	Sessions session.Store
	Pages    *web.Pages
	Hub      *websocket.Hub
	Router   *gin.Engine

	// ctx is cancelled on shutdown
	ctx context.Context
}

func main() {
	if err := run(); err != nil {
		slog.Error("chatdb stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv(slog.Default())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	schemas, closeSchemas, err := openSchemaStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSchemas()

	profiles, err := llm.LoadProfiles(cfg.LLM.ProfilesFile)
	if err != nil {
		return fmt.Errorf("load llm profiles: %w", err)
	}
	factory := llm.NewFactory(llm.FactoryConfig{
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
		Profiles: profiles,
		Logger:   logger,
	})
	if cfg.LLM.APIKey == "" {
		logger.Warn("no llm api key configured, questions will fail until CEREBRAS_API_KEY is set")
	}

	policy := connectPolicy(cfg)
	if policy.FileDatabases() {
		logger.Info("file databases enabled", "dir", policy.FileDir)
	}
	connections := db.NewConnectionCache(db.Connect, cfg.Query.ConnIdleTTL, logger)
	connections.StartCleanupRoutine(ctx, time.Minute)
	defer connections.Close()

	service := chat.NewService(chat.Config{
		Schemas:     schemas,
		LLM:         factory,
		Connections: connections,
		Runner:      query.NewExecutor(connections, policy, cfg.Query.Timeout, cfg.Query.MaxRows, logger),
		Policy:      policy,
		SampleRows:  cfg.Schema.SampleRows,
		Recorder:    metrics,
		Logger:      logger,
	})

	sessions, closeSessions, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	pages, err := web.NewPages()
	if err != nil {
		return err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Registry: registry,
		Chat:     service,
		Sessions: sessions,
		Pages:    pages,
		Hub:      websocket.NewHub(logger),
		ctx:      ctx,
	}
	go app.Hub.Run(ctx)
	app.startSessionSweeper(ctx, time.Minute)
	app.InitRouter()

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      app.Router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.HTTP.Address, "schema_store", cfg.Schema.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openSchemaStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (schemastore.Store, func(), error) {
	switch cfg.Schema.Store {
	case config.SchemaStoreS3:
		store, err := schemastore.NewS3Store(ctx, schemastore.S3Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		}, cfg.Schema.TTL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 schema store: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		store, err := schemastore.NewFileStore(cfg.Schema.Dir, cfg.Schema.TTL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open schema directory: %w", err)
		}
		if _, err := store.Sweep(); err != nil {
			logger.Warn("schema sweep failed", "error", err)
		}
		return store, func() { store.Close() }, nil
	}
}

func connectPolicy(cfg config.Config) db.ConnectPolicy {
	return db.ConnectPolicy{FileDir: cfg.Query.FileDBDir, SSLMode: cfg.Query.PostgresSSLMode}
}

func openSessionStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (session.Store, func(), error) {
	if cfg.Session.DatabaseURL == "" {
		return session.NewMemoryStore(cfg.Session.TTL, logger), func() {}, nil
	}
	database, err := session.OpenRegistryDB(ctx, cfg.Session.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open session database: %w", err)
	}
	registry, err := session.NewSQLRegistry(ctx, database, cfg.Session.Secret, cfg.Session.TTL, logger)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("init session registry: %w", err)
	}
	return registry, func() { registry.Close() }, nil
}

// sessionCounter is implemented by stores that can drop idle sessions
type sessionCounter interface {
	Sweep(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

func (app *App) startSessionSweeper(ctx context.Context, interval time.Duration) {
	counter, ok := app.Sessions.(sessionCounter)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := counter.Sweep(ctx); err != nil {
					app.Logger.Warn("session sweep failed", "error", err)
				} else if n > 0 {
					app.Logger.Debug("expired sessions removed", "count", n)
				}
				if n, err := counter.Count(ctx); err == nil {
					app.Metrics.SetActiveSessions(n)
				}
			}
		}
	}()
}

func (app *App) InitRouter() {
	if app.Config.HTTP.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if app.Config.HTTP.GinMode == gin.TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	app.Router = gin.New()
	app.Router.Use(observability.Trace())
	app.Router.Use(observability.Logging(app.Logger))
	if app.Metrics != nil {
		app.Router.Use(app.Metrics.HTTPMetrics())
	}
	app.Router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", observability.TraceHeader}
	corsConfig.ExposeHeaders = []string{observability.TraceHeader}
	if allowsAnyOrigin(app.Config.HTTP.CORSOrigins) {
		// Credentials cannot be combined with a wildcard origin.
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = app.Config.HTTP.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	app.Router.Use(cors.New(corsConfig))

	app.Router.GET("/api/health", app.healthHandler)
	if app.Registry != nil {
		app.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))
	}

	pages := app.Router.Group("/", app.sessionMiddleware())
	{
		pages.GET("", app.indexHandler)
		pages.POST("/connect", app.connectHandler)
		pages.POST("/ask", app.askHandler)
		pages.POST("/toggle-sql", app.toggleSQLHandler)
		pages.POST("/disconnect", app.disconnectHandler)
	}

	api := app.Router.Group("/api", app.sessionMiddleware())
	{
		api.POST("/connect", app.apiConnectHandler)
		api.POST("/ask", app.apiAskHandler)
		api.POST("/disconnect", app.apiDisconnectHandler)
		api.GET("/session", app.apiSessionHandler)
	}

	if app.Hub != nil {
		socket := websocket.NewHandler(app.ctx, app.Hub, app.Chat, app, app.Config.HTTP.CORSOrigins, app.Logger)
		app.Router.GET("/ws/ask", app.sessionMiddleware(), socket.HandleWebSocket)
	}
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (app *App) healthHandler(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   version,
	}
	if app.Hub != nil {
		body["websocket_connections"] = app.Hub.Count()
	}
	c.JSON(http.StatusOK, body)
}
