package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rsm/retail-backend/internal/inventory/consumers"
	"github.com/rsm/retail-backend/internal/inventory/events"
	"github.com/rsm/retail-backend/internal/inventory/handler"
	"github.com/rsm/retail-backend/internal/inventory/repository"
	"github.com/rsm/retail-backend/internal/inventory/service"
	"github.com/rsm/retail-backend/pkg/config"
	"github.com/rsm/retail-backend/pkg/database"
	"github.com/rsm/retail-backend/pkg/httputil"
	"github.com/rsm/retail-backend/pkg/logger"
	"github.com/rsm/retail-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("inventory-service", cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewInventoryEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	lotRepo := repository.NewLotRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize services
	stockService := service.NewStockService(db, accountRepo, lotRepo, productRepo, auditRepo, publisher, log)
	disposalService := service.NewDisposalService(db, accountRepo, lotRepo, alertRepo, publisher, log)
	scanner := service.NewAlertScanner(accountRepo, lotRepo, alertRepo, productRepo, publisher,
		cfg.Alerts.NearExpiryHorizonDays, log)
	scheduler := service.NewScanScheduler(scanner, cfg.Alerts.ScanInterval, log)

	// Initialize handlers
	stockHandler := handler.NewStockHandler(stockService, log)
	alertHandler := handler.NewAlertHandler(alertRepo, disposalService, log)
	scanHandler := handler.NewScanHandler(scanner, log)

	// Start sale event consumer
	saleConsumer, err := consumers.NewSaleEventConsumer(rmq, stockService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sale event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := saleConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sale event consumer")
	}

	// Start background alert scanner
	scheduler.Start(ctx)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "inventory-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/inventory", func(r chi.Router) {
		// Stock movements
		r.Route("/stock", func(r chi.Router) {
			r.Post("/receive", stockHandler.Receive)
			r.Post("/deduct", stockHandler.Deduct)
		})

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", stockHandler.ListAccounts)
			r.Get("/{id}", stockHandler.GetAccount)
			r.Get("/{id}/lots", stockHandler.ListLots)
			r.Post("/{id}/reserve", stockHandler.Reserve)
			r.Post("/{id}/release", stockHandler.Release)
			r.Post("/{id}/recount", stockHandler.Recount)
		})

		// Audit routes
		r.Post("/audits", stockHandler.RecordAudit)
		r.Get("/products/{id}/audits", stockHandler.ListAudits)

		// Alert routes
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Get("/count", alertHandler.CountOpen)
			r.Get("/{id}", alertHandler.Get)
			r.Put("/{id}/read", alertHandler.MarkRead)
			r.Put("/{id}/resolve", alertHandler.Resolve)
			r.Post("/dispose-expired", alertHandler.DisposeExpired)
		})

		// Manual scan triggers
		r.Route("/scan", func(r chi.Router) {
			r.Post("/", scanHandler.ScanAll)
			r.Post("/low-stock", scanHandler.ScanLowStock)
			r.Post("/expiry", scanHandler.ScanExpiry)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the scanner and consumers
	scheduler.Stop()
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
