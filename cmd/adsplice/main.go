package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/idealad/adsplice/internal/api"
	"github.com/idealad/adsplice/internal/cloud"
	"github.com/idealad/adsplice/internal/compose"
	"github.com/idealad/adsplice/internal/config"
	"github.com/idealad/adsplice/internal/db"
	"github.com/idealad/adsplice/internal/events"
	"github.com/idealad/adsplice/internal/logging"
	"github.com/idealad/adsplice/internal/media"
	"github.com/idealad/adsplice/internal/playback"
	"github.com/idealad/adsplice/internal/session"
	"github.com/idealad/adsplice/internal/stitch"
	"github.com/idealad/adsplice/internal/ui"
)

const pruneInterval = time.Hour

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting adsplice",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	minDelay, maxDelay := cfg.StitchDelay()
	stitchSvc := stitch.NewService(stitch.ServiceConfig{
		Repository: stitch.NewRepository(database.Conn()),
		Logger:     logger,
		MinDelay:   minDelay,
		MaxDelay:   maxDelay,
	})

	var stitcher stitch.Stitcher = stitchSvc
	if cfg.StitchURL() != "" {
		stitcher = stitch.NewHTTPClient(cfg.StitchURL(), 0, logger)
		logger.Info("using remote stitch back end", "url", cfg.StitchURL())
	}

	var cloudClient cloud.Client
	cloudMode := "stub"
	if cfg.CloudAPIKey() != "" {
		cloudClient = cloud.NewHTTPClient(cfg.CloudBaseURL(), cfg.CloudAPIKey(), cfg.CloudRPS(), logger)
		cloudMode = "remote"
		logger.Info("video intelligence enabled",
			"base_url", cfg.CloudBaseURL(),
			"api_key", logging.SanitizeToken(cfg.CloudAPIKey()),
			"index_id", cfg.CloudIndexID(),
		)
	} else {
		cloudClient = cloud.NewStubClient(cfg.CloudMockScenes(), logger)
		logger.Info("no API key configured, using stub video intelligence", "mock_scenes", cfg.CloudMockScenes())
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}

	panicHandler := func(p interface{}) {
		logger.Error("panic in upload worker", "panic", fmt.Sprintf("%v", p))
	}
	pool, err := ants.NewPool(cfg.UploadWorkers(), ants.WithPanicHandler(panicHandler))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	hub := events.NewHub()
	sessions := session.NewManager(session.Config{
		Pool:              pool,
		Store:             store,
		Cloud:             cloudClient,
		Composer:          compose.NewRequester(stitcher, cfg.PlaceholderURL(), logger),
		Events:            hub,
		Logger:            logger,
		IndexID:           cfg.CloudIndexID(),
		WindowSeconds:     cfg.WindowSeconds(),
		DefaultAdDuration: cfg.DefaultAdDuration(),
		ProgressInterval:  cfg.ProgressInterval(),
		ProgressStep:      cfg.ProgressStep(),
		ProgressCap:       cfg.ProgressCap(),
	})
	defer sessions.Close()

	var limiter *api.RateLimiter
	if cfg.UploadRate() > 0 {
		limiter = api.NewRateLimiter(rate.Limit(cfg.UploadRate()), cfg.UploadBurst())
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Sessions:       sessions,
		Store:          store,
		PlaybackServer: playback.NewServer(store, logger),
		Stitch:         stitchSvc,
		Hub:            hub,
		Logger:         logger,
		StartTime:      startTime,
		AllowedOrigins: cfg.AllowedOrigins(),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		UploadLimiter:  limiter,
		StorageType:    cfg.Storage(),
		CloudMode:      cloudMode,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pruneLoop(ctx, stitchSvc, cfg.Retention(), logger)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Sessions: func(context.Context) (int, error) {
				return sessions.Count(), nil
			},
			Compositions: stitchSvc.Count,
			Addr:         apiServer.Addr(),
			Logger:       logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newStore(cfg config.Config, logger *slog.Logger) (media.Store, error) {
	if cfg.Storage() != config.StorageS3 {
		store, err := media.NewLocalStore(cfg.MediaDir(), cfg.BaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to create media dir: %w", err)
		}
		return store, nil
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.S3Region())}
	if cfg.S3Endpoint() != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint())
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := awssession.NewSessionWithOptions(awssession.Options{
		Config:            *awsCfg,
		SharedConfigState: awssession.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	logger.Info("storing media in s3", "bucket", cfg.S3Bucket(), "region", cfg.S3Region())
	return media.NewS3Store(s3.New(sess), media.S3Config{
		Bucket: cfg.S3Bucket(),
		Prefix: cfg.S3Prefix(),
	}, logger), nil
}

func pruneLoop(ctx context.Context, svc *stitch.Service, maxAge time.Duration, logger *slog.Logger) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		if _, err := svc.Prune(ctx, maxAge); err != nil && ctx.Err() == nil {
			logger.Warn("failed to prune compositions", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
