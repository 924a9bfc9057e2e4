package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"

	"github.com/asuwest1/ContractReviewOA/internal/client"
	"github.com/asuwest1/ContractReviewOA/internal/config"
	"github.com/asuwest1/ContractReviewOA/internal/database"
	"github.com/asuwest1/ContractReviewOA/internal/handler"
	"github.com/asuwest1/ContractReviewOA/internal/identity"
	"github.com/asuwest1/ContractReviewOA/internal/logger"
	"github.com/asuwest1/ContractReviewOA/internal/middleware"
	"github.com/asuwest1/ContractReviewOA/internal/repository"
	"github.com/asuwest1/ContractReviewOA/internal/service"
	"github.com/asuwest1/ContractReviewOA/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Contract Review Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	// Repositories
	workflowRepo := repository.NewWorkflowRepository(db)
	stepRepo := repository.NewStepRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Document storage
	fileStore, err := storage.New(cfg.Storage.Root, cfg.Storage.UNCBase)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare document storage")
	}

	// Outbound collaborators: both are optional and disabled when unconfigured.
	mailer := client.NewMailer(client.MailerConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Sender:   cfg.SMTP.Sender,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		StartTLS: cfg.SMTP.StartTLS,
	}, log.Logger)

	publisher, err := client.NewNotificationPublisher(cfg.NATS.URL, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("Notification publisher unavailable, continuing without it")
	}
	defer publisher.Close()

	// Services
	notifier := service.NewNotifier(notificationRepo, auditRepo, mailer, publisher, log)
	workflowService := service.NewWorkflowService(
		workflowRepo, stepRepo, documentRepo, settingsRepo, auditRepo,
		fileStore, notifier, cfg.Workflow.FinalStatus, log,
	)
	agingService := service.NewAgingService(
		workflowRepo, stepRepo, settingsRepo, notificationRepo, notifier,
		clock.RealClock{}, log,
	)
	dashboardService := service.NewDashboardService(workflowRepo, stepRepo, agingService)
	adminService := service.NewAdminService(settingsRepo, auditRepo, log)

	resolver := identity.NewResolver(cfg.Identity.AllowDevHeaders, cfg.Identity.DefaultRoles)

	// Reminder scheduler
	if cfg.Reminder.Schedule != "" {
		scheduler := cron.New()
		systemIdent := identity.System(cfg.Identity.SystemUser)
		_, err := scheduler.AddFunc(cfg.Reminder.Schedule, func() {
			if _, err := agingService.RunReminders(ctx, systemIdent); err != nil {
				log.Error().Err(err).Msg("Scheduled reminder run failed")
			}
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Reminder.Schedule).Msg("Invalid reminder schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Info().Str("schedule", cfg.Reminder.Schedule).Msg("Reminder scheduler started")
	}

	// HTTP server
	httpHandler := handler.NewHTTPHandler(
		workflowService, dashboardService, agingService, adminService, resolver, log,
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(&log.Logger))
	router.Use(middleware.Logger(&log.Logger))
	router.Use(middleware.SecurityHeaders)
	router.Use(middleware.CSRFOrigin(&log.Logger))
	router.Use(middleware.MaxBody(cfg.Server.MaxBodyBytes))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	httpHandler.Routes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	log.Info().Msg("Shutdown complete")
}
