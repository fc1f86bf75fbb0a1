package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/promoledger/backend/internal/config"
	"github.com/promoledger/backend/internal/database"
	"github.com/promoledger/backend/internal/handlers"
	"github.com/promoledger/backend/internal/jobs"
	"github.com/promoledger/backend/internal/middleware"
	"github.com/promoledger/backend/internal/queue"
	"github.com/promoledger/backend/internal/routes"
	"github.com/promoledger/backend/internal/services/attribution"
	"github.com/promoledger/backend/internal/services/forwarding"
	"github.com/promoledger/backend/internal/services/ledger"
	"github.com/promoledger/backend/internal/services/payout"
	"github.com/promoledger/backend/internal/services/tracking"
	"github.com/promoledger/backend/internal/utils"
)

func main() {
	// Initialize configuration (loads .env when present)
	cfg := config.LoadConfig()
	if cfg.JWT.Secret != "" {
		utils.SetJWTSecret(cfg.JWT.Secret)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.InitDB(cfg.Database, cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	redisQueue := queue.NewRedisQueue(redisClient)

	// Forwarding sink
	sink, err := forwarding.NewSink(cfg.Forwarding, redisQueue)
	if err != nil {
		log.Fatalf("Failed to configure forwarding sink: %v", err)
	}
	dispatcher := forwarding.NewDispatcher(sink, cfg.Forwarding.Timeout)
	log.Printf("Forwarding conversions via %s", sink.Name())

	// Initialize services
	linkService := tracking.NewLinkService(db, tracking.NewRedisLinkCache(redisClient, cfg.Cache.LinkTTL), cfg.PublicBaseURL)
	clickService := tracking.NewClickService(db, linkService)
	attributionService := attribution.NewAttributionService(db, linkService, dispatcher, cfg.Attribution.Window())
	ledgerService := ledger.NewLedgerService(db, dispatcher)
	payoutService := payout.NewPayoutService(db)

	// Initialize handlers
	h := &routes.Handlers{
		Click:      handlers.NewClickHandler(clickService, cfg.Attribution.CookieName, cfg.Attribution.CookieDays, cfg.HomeURL, cfg.IsProduction()),
		Conversion: handlers.NewConversionHandler(db, attributionService, cfg.Attribution.CookieName),
		Link:       handlers.NewLinkHandler(linkService),
		Ledger:     handlers.NewLedgerHandler(ledgerService),
		Payout:     handlers.NewPayoutHandler(payoutService),
		Health:     handlers.NewHealthHandler(db),
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.ClicksPerSecond, cfg.RateLimit.Burst)
	router := routes.SetupRouter(routes.RouterConfig{
		AllowedOrigins: cfg.CORSOrigins,
		Production:     cfg.IsProduction(),
	}, h, db, rateLimiter)

	// Start background job processor
	jobProcessor := queue.NewJobProcessor(redisQueue, cfg.Forwarding.Workers)
	jobs.RegisterAllJobHandlers(jobProcessor, db, cfg.Forwarding.Timeout)
	jobProcessor.Start()

	// Schedule counter reconciliation
	scheduler := jobs.NewScheduler(jobs.NewReconcileCountersJob(db), cfg.Reconcile.Interval)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start server
	srv := startServer(router, cfg.Server)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	scheduler.Stop()
	rateLimiter.Stop()
	dispatcher.Wait()
	jobProcessor.Stop()

	if closer, ok := sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Printf("Error closing forwarding sink: %v", err)
		}
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exiting")
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Port)
	return srv
}
