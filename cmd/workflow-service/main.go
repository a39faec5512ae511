// Command workflow-service runs the multi-tenant workflow execution
// engine's HTTP surface: workflow/run CRUD, run lifecycle (execute/cancel),
// the event log, and the authenticated push bus, backed by Postgres for
// durable state and Redis for the step job queue.
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

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/R3E-Network/service_layer/infrastructure/config"
	"github.com/R3E-Network/service_layer/infrastructure/jobstore"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	slmetrics "github.com/R3E-Network/service_layer/infrastructure/metrics"
	slmiddleware "github.com/R3E-Network/service_layer/infrastructure/middleware"
	"github.com/R3E-Network/service_layer/infrastructure/postgres"
	"github.com/R3E-Network/service_layer/infrastructure/service"
	"github.com/R3E-Network/service_layer/packages/auth"
	"github.com/R3E-Network/service_layer/packages/completion"
	"github.com/R3E-Network/service_layer/packages/pushbus"
	"github.com/R3E-Network/service_layer/packages/stepworker"
	"github.com/R3E-Network/service_layer/packages/workflow"
	"github.com/R3E-Network/service_layer/packages/workflowsvc"
)

func main() {
	_ = godotenv.Load() // local dev convenience; absent in deployed environments

	logger := logging.NewFromEnv("workflow-service")
	ctx := context.Background()

	dsn, err := config.RequireEnv("DATABASE_URL")
	if err != nil {
		log.Fatalf("workflow-service: %v", err)
	}
	redisURL, err := config.RequireEnv("KV_URL")
	if err != nil {
		log.Fatalf("workflow-service: %v", err)
	}
	jwtSecret, err := config.RequireEnv("JWT_SECRET")
	if err != nil {
		log.Fatalf("workflow-service: %v", err)
	}
	if len(jwtSecret) < 8 {
		log.Fatalf("workflow-service: JWT_SECRET must be at least 8 characters")
	}

	db, err := postgres.Connect(postgres.Config{DSN: dsn})
	if err != nil {
		log.Fatalf("workflow-service: connect postgres: %v", err)
	}
	if err := postgres.Migrate(db); err != nil {
		log.Fatalf("workflow-service: migrate postgres: %v", err)
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("workflow-service: parse KV_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	jobs := jobstore.New(redisClient, "wf")

	tenants := postgres.NewTenantRepo(db)
	users := postgres.NewUserRepo(db)
	workflows := postgres.NewWorkflowRepo(db)
	runs := postgres.NewRunRepo(db)
	steps := postgres.NewStepRepo(db)
	events := postgres.NewEventRepo(db)

	tokenTTL := config.ParseDurationOrDefault(config.GetEnv("JWT_EXPIRY", ""), auth.DefaultTokenTTL)
	authSvc := auth.New(tenants, users, jwtSecret, tokenTTL)

	completionSvc := completion.New(config.GetEnv("COMPLETION_API_KEY", ""))

	engine := workflow.New(workflow.Deps{
		Workflows:  workflows,
		Runs:       runs,
		Steps:      steps,
		Events:     events,
		Jobs:       jobs,
		Completion: completionSvc,
	})
	workflowSvc := workflowsvc.New(workflows)

	hub := pushbus.New(authSvc, logger)
	pool := stepworker.New(jobs, engine, hub, logger, stepworker.Config{
		Concurrency:   config.GetEnvInt("STEP_WORKER_CONCURRENCY", stepworker.DefaultConcurrency),
		RatePerSecond: float64(config.GetEnvInt("STEP_WORKER_RATE_PER_SECOND", stepworker.DefaultRatePerSecond)),
	})

	base := service.NewBase(&service.BaseConfig{
		ID:      "workflow-service",
		Name:    "workflow-service",
		Version: config.GetEnv("SERVICE_VERSION", "dev"),
		Logger:  logger,
		Deps: map[string]service.HealthChecker{
			"postgres": db,
			"redis":    jobs,
		},
	})
	base.AddWorker(pool.Run)
	base.AddTickerWorker(1*time.Minute, pool.Sweep, service.WithTickerWorkerName("step-sweep"))

	startedAt := time.Now()
	deepChecker := service.NewDeepHealthChecker(10 * time.Second)
	deepChecker.Register("postgres", service.DatabaseHealthCheck("postgres", db.HealthCheck))
	deepChecker.Register("redis", service.DatabaseHealthCheck("redis", jobs.HealthCheck))

	a := &api{auth: authSvc, workflows: workflowSvc, engine: engine, runs: runs, events: events}

	router := base.Router()
	router.Use(slmiddleware.LoggingMiddleware(logger))
	router.Use(slmiddleware.NewRecoveryMiddleware(logger).Handler)
	if slmetrics.Enabled() {
		router.Use(slmiddleware.MetricsMiddleware("workflow-service", slmetrics.Init("workflow-service")))
	}
	router.Use(slmiddleware.NewCORSMiddleware(&slmiddleware.CORSConfig{
		AllowedOrigins:   config.SplitAndTrimCSV(config.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		AllowCredentials: true,
	}).Handler)
	router.Use(slmiddleware.NewBodyLimitMiddleware(0).Handler)

	registerRoutes(base, a, hub, deepChecker, startedAt)

	port := config.GetPort(8080)
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
		log.Fatalf("workflow-service: start workers: %v", err)
	}

	go func() {
		logger.WithContext(ctx).Info("workflow-service starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("workflow-service: serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	base.MarkDraining()
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithError(err).Error("workflow-service: shutdown error")
	}
	hub.Shutdown(shutdownCtx)
	_ = base.Stop()
}
