package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CERT-PDF/internal"
	"CERT-PDF/internal/config"
	"CERT-PDF/internal/handlers"
	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/processor"
	"CERT-PDF/internal/services"
	"CERT-PDF/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Backend == config.StorageMinIO {
		m := cfg.Storage.MinIO
		return storage.NewMinIOClient(ctx, m.Endpoint, m.AccessKey, m.SecretKey, m.BucketName, m.UseSSL, m.PublicURL)
	}
	g := cfg.Storage.GCS
	return storage.NewGCSClient(ctx, g.BucketName, g.ProjectID, g.CredentialsPath)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := applog.New(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := internal.InitDB(cfg, logger); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer internal.CloseDB()

	ctx := context.Background()
	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}
	defer store.Close()

	converter, err := services.NewPDFService(cfg.Gotenberg.URL, cfg.Gotenberg.Timeout, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Gotenberg client", zap.Error(err))
	}

	defaults := processor.Appearance{
		FontSize: cfg.Certificate.FontSize,
		Align:    processor.Align(cfg.Certificate.Align),
		Color:    cfg.Certificate.Color,
	}
	fonts := processor.NewStandardFonts()
	renderer := processor.NewRenderer(fonts, logger)

	fetcher := services.NewTemplateFetcher(cfg.Proxy.AllowedHosts, cfg.Proxy.Timeout, cfg.Proxy.MaxBytes, logger)
	templateService := services.NewTemplateService(internal.DB, store, converter, logger)
	certificateService := services.NewCertificateService(internal.DB, templateService, fetcher, defaults, logger)
	deliveryService := services.NewDeliveryService(internal.DB, store, cfg.Fallback.Dir, cfg.Server.BaseURL, logger)
	generator := services.NewBatchGenerator(renderer, cfg.Batch.RecipientInterval, logger)
	jobs := services.NewJobManager(generator, deliveryService, 64, logger)
	emailClient := services.NewEmailClient(cfg.Email.ServiceURL, cfg.Email.Timeout, cfg.Email.MaxAttachmentBytes)
	dispatcher := services.NewEmailDispatcher(emailClient, cfg.Email.Interval, logger)
	activityLogService := services.NewActivityLogService(internal.DB, logger)

	jobs.Start()

	cleanupService := handlers.NewFileCleanupService(
		[]string{cfg.Fallback.Dir}, cfg.Fallback.MaxAge, 10*time.Minute, jobs.Prune, logger)
	cleanupService.Start()

	router := handlers.NewRouter(handlers.Handlers{
		Templates:    handlers.NewTemplateHandler(templateService),
		Certificates: handlers.NewCertificateHandler(certificateService, fonts),
		Batches: handlers.NewBatchHandler(certificateService, jobs, dispatcher, deliveryService,
			cfg.Batch.Upload, cfg.Batch.GeneratedBy, logger),
		Logs:        handlers.NewLogsHandler(activityLogService),
		ActivityLog: activityLogService,
		Fetcher:     fetcher,
	}, cfg.Server.AllowOrigins)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment),
			zap.String("storage", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	cleanupService.Stop()
	jobs.Shutdown()
}
