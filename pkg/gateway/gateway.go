package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/api"
	"github.com/pepe57/OpenGateLLM/internal/config"
	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/apikey"
	"github.com/pepe57/OpenGateLLM/internal/services/broker"
	"github.com/pepe57/OpenGateLLM/internal/services/database"
	"github.com/pepe57/OpenGateLLM/internal/services/limiter"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"
	"github.com/pepe57/OpenGateLLM/internal/services/middleware"
	"github.com/pepe57/OpenGateLLM/internal/services/providers"
	"github.com/pepe57/OpenGateLLM/internal/services/registry"
	"github.com/pepe57/OpenGateLLM/internal/services/routing"
	"github.com/pepe57/OpenGateLLM/internal/services/usage"
	"github.com/pepe57/OpenGateLLM/internal/services/vectorstore"
	"github.com/pepe57/OpenGateLLM/internal/services/websearch"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Gateway is a running API gateway instance.
type Gateway struct {
	config *config.Config
	app    *fiber.App
	redis  *redis.Client
	db     *database.DB
	broker *broker.Broker
	store  *vectorstore.Store
}

// New creates a Gateway. The cfg parameter is required and must not be nil.
func New(cfg *config.Config) *Gateway {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create one")
	}
	return &Gateway{config: cfg}
}

// Run starts the gateway and blocks until shutdown.
func (g *Gateway) Run() error {
	if err := g.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogLevel(g.config.Server.LogLevel)

	port := g.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	g.app = createFiberApp(g.config)

	db, err := database.New(g.config.Dependencies.Postgres)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	g.db = db
	defer func() {
		if err := g.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()
	if err := g.db.AutoMigrate(); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	g.redis, err = CreateRedisClient(g.config.Dependencies.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := g.redis.Close(); err != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", err)
		}
	}()

	if es := g.config.Dependencies.Elasticsearch; es != nil {
		g.store, err = vectorstore.New(*es, g.config.Settings.VectorStoreIndexPrefix)
		if err != nil {
			return fmt.Errorf("elasticsearch initialization failed: %w", err)
		}
	}

	var web websearch.Engine
	if ws := g.config.Dependencies.WebSearch; ws != nil {
		if web, err = websearch.New(ws); err != nil {
			return fmt.Errorf("web search initialization failed: %w", err)
		}
	}

	if err := g.setupRoutes(web); err != nil {
		return err
	}
	if g.broker != nil {
		defer func() {
			if err := g.broker.Close(); err != nil {
				fiberlog.Errorf("Failed to close broker connection: %v", err)
			}
		}()
	}

	fmt.Printf("OpenGateLLM starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", g.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := g.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	if err := g.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")
	return nil
}

func (g *Gateway) setupRoutes(web websearch.Engine) error {
	cfg := g.config

	tokenizer := usage.NewTokenizer(cfg.Settings.TokenizerEncoding)
	store := metrics.NewStore(g.redis, time.Duration(cfg.Settings.MetricsRetentionMS)*time.Millisecond)
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	balancer := routing.NewBalancer(g.redis, store,
		cfg.Settings.RoutingMaxRetries,
		time.Duration(cfg.Settings.RoutingRetrySeconds)*time.Second)
	reg := registry.New(g.db, balancer)

	syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := reg.Sync(syncCtx, cfg.Models); err != nil {
		return fmt.Errorf("model sync failed: %w", err)
	}
	reg.Probe(syncCtx)

	var queued *broker.QueuedBalancer
	if mq := cfg.Dependencies.RabbitMQ; mq != nil && !cfg.Settings.DisableQueuedRouting {
		g.broker = broker.New(mq.URL, cfg.Settings.QueueMaxPriority)
		queued = broker.NewQueuedBalancer(g.broker, g.redis, 30*time.Second)
		fiberlog.Info("Queued routing enabled")
	}

	keys := apikey.NewService(g.db, cfg.Server.MasterKey)
	usageSvc := usage.NewService(g.db, keys)
	lim := limiter.New(g.redis, limiter.Strategy(cfg.Settings.RateLimitStrategy))
	forwarder := providers.NewForwarder(store, tokenizer)
	resolver := api.NewResolver(reg, queued)
	embedder := api.NewEmbedder(resolver, lim, forwarder, tokenizer)

	var searcher *api.Searcher
	if g.store != nil {
		searcher = api.NewSearcher(g.store, web, embedder)
	}

	g.setupMiddleware(keys)

	health := api.NewHealthHandler(g.db, g.redis, g.store)
	g.app.Get("/health", health.HealthCheck)
	g.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	v1 := g.app.Group("/v1")

	chat := api.NewChatHandler(resolver, lim, forwarder, usageSvc, tokenizer, collector, searcher)
	v1.Post("/chat/completions", chat.ChatCompletion)

	embeddings := api.NewEmbeddingsHandler(resolver, lim, forwarder, usageSvc, tokenizer, collector)
	v1.Post("/embeddings", embeddings.Embeddings)

	rerank := api.NewRerankHandler(resolver, lim, forwarder, usageSvc, tokenizer, collector)
	v1.Post("/rerank", rerank.Rerank)

	ocr := api.NewOCRHandler(resolver, lim, forwarder, usageSvc, tokenizer, collector)
	v1.Post("/ocr", ocr.OCR)

	modelsHandler := api.NewModelsHandler(reg)
	v1.Get("/models", modelsHandler.List)
	v1.Get("/models/:model", modelsHandler.Get)

	usageHandler := api.NewUsageHandler(usageSvc)
	v1.Get("/usage", usageHandler.Summary)

	if g.store != nil {
		collections := api.NewCollectionsHandler(g.store, embedder)
		v1.Post("/collections", collections.Create)
		v1.Get("/collections", collections.List)
		v1.Get("/collections/:collection", collections.Get)
		v1.Delete("/collections/:collection", collections.Delete)

		documents := api.NewDocumentsHandler(g.store, embedder, usageSvc)
		v1.Post("/documents", documents.Create)
		v1.Get("/documents", documents.List)
		v1.Delete("/documents/:document", documents.Delete)

		search := api.NewSearchHandler(searcher)
		v1.Post("/search", search.Search)
	}

	admin := v1.Group("/admin", middleware.RequireAdmin())

	adminHandler := api.NewAdminHandler(reg)
	admin.Get("/routers", adminHandler.ListRouters)
	admin.Post("/routers", adminHandler.CreateRouter)
	admin.Patch("/routers/:router", adminHandler.UpdateRouter)
	admin.Delete("/routers/:router", adminHandler.DeleteRouter)
	admin.Post("/routers/:router/providers", adminHandler.AddProvider)
	admin.Delete("/routers/:router/providers/:provider", adminHandler.RemoveProvider)

	tokens := api.NewTokensHandler(keys)
	admin.Post("/tokens", tokens.Create)
	admin.Get("/tokens", tokens.List)
	admin.Delete("/tokens/:token", tokens.Revoke)

	return nil
}

func (g *Gateway) setupMiddleware(keys *apikey.Service) {
	isProd := g.config.Server.Environment == "production"

	g.app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))
	g.app.Use(requestid.New())
	g.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowedOrigins := g.config.Server.AllowedOrigins
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	g.app.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, User-Agent",
		AllowMethods:  "GET, POST, PATCH, DELETE, OPTIONS",
		MaxAge:        86400,
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
	}))

	auth := middleware.NewAuthMiddleware(keys)
	g.app.Use(auth.RequireAuth())

	if !isProd {
		g.app.Use(pprof.New())
	}
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.Server.Environment == "production"

	return fiber.New(fiber.Config{
		AppName:           "OpenGateLLM v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		CaseSensitive:     true,
		ServerHeader:      "OpenGateLLM",
		ErrorHandler:      api.ErrorHandler,
	})
}

func setupLogLevel(level string) {
	switch level {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info", "":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", level)
	}
}

// CreateRedisClient connects to Redis with the pool settings the gateway's
// limiter and metrics store expect. The worker binary reuses it.
func CreateRedisClient(cfg models.RedisConfig) (*redis.Client, error) {
	var opt *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	fiberlog.Info("Redis connection established")
	return client, nil
}
