package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"receipts/internal/amqp"
	"receipts/internal/cache"
	"receipts/internal/cli"
	"receipts/internal/config"
	"receipts/internal/export"
	apphttp "receipts/internal/http"
	"receipts/internal/identity"
	"receipts/internal/imagehost"
	"receipts/internal/ledger"
	applog "receipts/internal/log"
	"receipts/internal/session"
	"receipts/internal/store"
)

// imageCacheBytes caps the bytes held by the receipt image cache.
const imageCacheBytes = 64 << 20

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	backend := cli.InitBackend(startCtx, logger, cfg)
	startCancel()

	auth := identity.NewService(backend.Users)
	tokens, err := identity.NewTokens(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		logger.Error("Failed to initialize session tokens", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("No SESSION_SECRET provided, sessions end when the server restarts")
	}

	// Session: the signed-in user's records, kept live by the store watches
	records := store.New()
	sessions := session.NewManager(backend.Docs, records)
	sessionLog := logger.WithComponent(applog.ComponentSession)
	stopWatch := sessions.Watch(func(st session.Status) {
		if st.Err != nil {
			sessionLog.Error("Session binding failed", applog.FieldUID, st.UID, applog.FieldError, st.Err)
			return
		}
		sessionLog.Info("Session changed", "state", st.State.String(), applog.FieldUID, st.UID)
	})
	if err := sessions.Attach(context.Background(), auth); err != nil {
		logger.Warn("Initial session binding failed", applog.FieldError, err)
	}

	var images imagehost.Host
	if cfg.UsesCloudinary() {
		images = imagehost.NewCloudinary(imagehost.Config{
			CloudName:    cfg.CloudinaryCloudName,
			UploadPreset: cfg.CloudinaryUploadPreset,
			Timeout:      30 * time.Second,
		})
		logger.Info("Using Cloudinary image host", "cloud_name", cfg.CloudinaryCloudName)
	} else {
		images = imagehost.NewMemory(cfg.PublicBaseURL + "/images")
		logger.Info("Using in-process image host", "base_url", cfg.PublicBaseURL+"/images")
	}

	imageCache := cache.NewLRU[[]byte](cfg.ImageCacheSize, cfg.ImageCacheTTL).
		WithWeight(func(b []byte) int { return len(b) }, imageCacheBytes)
	caches := cache.NewManager()
	caches.Register(imageCache)
	caches.StartCleanup(cfg.ImageCacheTTL)

	// Change notifications for the mirror worker are optional
	var notifier ledger.Notifier
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, change notifications disabled", applog.FieldError, err)
		} else {
			amqpClient, notifier = client, client
			logger.Info("AMQP change notifications enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:                  auth,
		Session:               sessions,
		Views:                 session.NewViews(records, time.Now),
		Ledger:                ledger.NewService(backend.Docs, images, auth, notifier),
		Images:                images,
		Exporter:              export.NewExporter(images, imageCache),
		Tokens:                tokens,
		Ready:                 backend.Ping,
		Logger:                logger,
		AuthRequestsPerMinute: cfg.AuthRateLimit,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		stopWatch()
		if err := sessions.Close(); err != nil {
			logger.Error("Session close error", applog.FieldError, err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", applog.FieldError, err)
			}
		}
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting receipts server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		applog.FieldOperation, applog.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
