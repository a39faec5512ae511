// Command builder-service runs the multi-tenant site build & serve
// pipeline's HTTP surface: site/page CRUD, publish/rollback, version
// history, and the public serve path, backed by Postgres for durable state
// and an S3-compatible object store for immutable build artifacts.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/service_layer/infrastructure/config"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	slmetrics "github.com/R3E-Network/service_layer/infrastructure/metrics"
	slmiddleware "github.com/R3E-Network/service_layer/infrastructure/middleware"
	"github.com/R3E-Network/service_layer/infrastructure/objectstore"
	"github.com/R3E-Network/service_layer/infrastructure/postgres"
	"github.com/R3E-Network/service_layer/infrastructure/service"
	"github.com/R3E-Network/service_layer/packages/auth"
	"github.com/R3E-Network/service_layer/packages/buildengine"
	"github.com/R3E-Network/service_layer/packages/buildworker"
	"github.com/R3E-Network/service_layer/packages/htmlrenderer"
	"github.com/R3E-Network/service_layer/packages/siteresolver"
	"github.com/R3E-Network/service_layer/packages/sitesvc"
)

func main() {
	_ = godotenv.Load() // local dev convenience; absent in deployed environments

	logger := logging.NewFromEnv("builder-service")
	ctx := context.Background()

	dsn, err := config.RequireEnv("DATABASE_URL")
	if err != nil {
		log.Fatalf("builder-service: %v", err)
	}
	jwtSecret, err := config.RequireEnv("JWT_SECRET")
	if err != nil {
		log.Fatalf("builder-service: %v", err)
	}
	if len(jwtSecret) < 8 {
		log.Fatalf("builder-service: JWT_SECRET must be at least 8 characters")
	}
	bucket, err := config.RequireEnv("ARTIFACT_BUCKET")
	if err != nil {
		log.Fatalf("builder-service: %v", err)
	}

	db, err := postgres.Connect(postgres.Config{DSN: dsn})
	if err != nil {
		log.Fatalf("builder-service: connect postgres: %v", err)
	}
	if err := postgres.Migrate(db); err != nil {
		log.Fatalf("builder-service: migrate postgres: %v", err)
	}

	store, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:     config.GetEnv("ARTIFACT_STORE_ENDPOINT", ""),
		Region:       config.GetEnv("ARTIFACT_STORE_REGION", "us-east-1"),
		AccessKey:    config.GetEnv("ARTIFACT_STORE_ACCESS_KEY", ""),
		SecretKey:    config.GetEnv("ARTIFACT_STORE_SECRET_KEY", ""),
		Bucket:       bucket,
		UsePathStyle: config.GetEnv("ARTIFACT_STORE_ENDPOINT", "") != "",
	})
	if err != nil {
		log.Fatalf("builder-service: connect object store: %v", err)
	}

	tenants := postgres.NewTenantRepo(db)
	users := postgres.NewUserRepo(db)
	sites := postgres.NewSiteRepo(db)
	pages := postgres.NewPageRepo(db)
	versions := postgres.NewSiteVersionRepo(db)
	buildJobs := postgres.NewBuildJobRepo(db)

	tokenTTL := config.ParseDurationOrDefault(config.GetEnv("JWT_EXPIRY", ""), auth.DefaultTokenTTL)
	authSvc := auth.New(tenants, users, jwtSecret, tokenTTL)

	siteSvc := sitesvc.New(sites, pages)
	resolver := siteresolver.New(sites, versions, store)
	renderer := htmlrenderer.New()

	engine := buildengine.New(buildengine.Deps{
		Sites:       sites,
		Pages:       pages,
		Versions:    versions,
		Jobs:        buildJobs,
		Store:       store,
		Renderer:    renderer,
		Invalidator: resolver,
	})
	pool := buildworker.New(engine, logger, buildworker.Config{
		Concurrency:  config.GetEnvInt("BUILD_WORKER_CONCURRENCY", buildworker.DefaultConcurrency),
		PollInterval: config.ParseDurationOrDefault(config.GetEnv("BUILD_WORKER_POLL_INTERVAL", ""), buildworker.DefaultPollInterval),
	})

	base := service.NewBase(&service.BaseConfig{
		ID:      "builder-service",
		Name:    "builder-service",
		Version: config.GetEnv("SERVICE_VERSION", "dev"),
		Logger:  logger,
		Deps: map[string]service.HealthChecker{
			"postgres":    db,
			"objectstore": store,
		},
	})
	base.AddWorker(pool.Run)

	startedAt := time.Now()
	deepChecker := service.NewDeepHealthChecker(10 * time.Second)
	deepChecker.Register("postgres", service.DatabaseHealthCheck("postgres", db.HealthCheck))
	deepChecker.Register("objectstore", service.DatabaseHealthCheck("objectstore", store.HealthCheck))

	a := &api{auth: authSvc, sites: siteSvc, build: engine, versions: versions, resolver: resolver}

	router := base.Router()
	router.Use(slmiddleware.LoggingMiddleware(logger))
	router.Use(slmiddleware.NewRecoveryMiddleware(logger).Handler)
	if slmetrics.Enabled() {
		router.Use(slmiddleware.MetricsMiddleware("builder-service", slmetrics.Init("builder-service")))
	}
	router.Use(slmiddleware.NewCORSMiddleware(&slmiddleware.CORSConfig{
		AllowedOrigins:   config.SplitAndTrimCSV(config.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		AllowCredentials: true,
	}).Handler)
	router.Use(slmiddleware.NewBodyLimitMiddleware(0).Handler)

	registerRoutes(base, a, deepChecker, startedAt)

	port := config.GetPort(8081)
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	if err := base.Start(ctx); err != nil {
		log.Fatalf("builder-service: start workers: %v", err)
	}

	go func() {
		logger.WithContext(ctx).Info("builder-service starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("builder-service: serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	base.MarkDraining()
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithError(err).Error("builder-service: shutdown error")
	}
	_ = base.Stop()
}
