package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxpipe/internal/client/apprise"
	"github.com/voxpipe/internal/config"
	"github.com/voxpipe/internal/executor"
	"github.com/voxpipe/internal/fileops"
	"github.com/voxpipe/internal/handler"
	"github.com/voxpipe/internal/pipeline"
	"github.com/voxpipe/internal/version"
	"github.com/voxpipe/pkg/logger"
)

func main() {
	isDev := os.Getenv("ENV") != "production"
	logger.Init(isDev)
	defer logger.Sync()

	version.PrintBanner(nil)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	logger.Infof("loading config: %s", configPath)
	cfgMgr, err := config.NewManager(configPath)
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	defer cfgMgr.Stop()
	cfg := cfgMgr.Get()

	if err := ensureDirectories(cfg.Paths); err != nil {
		logger.Fatalf("directory setup error: %v", err)
	}

	downloader := executor.NewDownloader(cfg.Downloader)
	processor := executor.NewAudioProcessor(cfg.Audio, cfg.Transcoder)

	// Engines are hard dependencies; refuse to start without them.
	checkCtx, checkCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer checkCancel()
	if err := downloader.VerifyInstalled(checkCtx); err != nil {
		logger.Fatalf("dependency check: %v", err)
	}
	if err := processor.VerifyInstalled(checkCtx); err != nil {
		logger.Fatalf("dependency check: %v", err)
	}

	var notifier pipeline.Notifier
	if cfg.Apprise.Enabled {
		notifier = apprise.NewClient(cfg.Apprise)
		logger.Infof("notifications: enabled (key=%s)", cfg.Apprise.Key)
	} else {
		logger.Info("notifications: disabled")
	}

	orchestrator := pipeline.New(cfg, downloader, processor, notifier)

	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	h := handler.New(orchestrator, downloader, cfg)
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
		// No write timeout: extraction requests stay open for the whole
		// pipeline run.
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	logger.Info("")
	logger.Infof("temp dir:   %s", cfg.Paths.TempDir)
	logger.Infof("output dir: %s", cfg.Paths.OutputDir)
	logger.Infof("audio: %d Hz, %d ch, mp3 %s", cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.MP3Bitrate)
	logger.Infof("max concurrent transcodes: %d", cfg.Transcoder.MaxConcurrent)
	logger.Info("")
	logger.Infof("API server: http://localhost:%d", cfg.Server.Port)
	logger.Infof("  POST /api/v1/extract        - full extraction pipeline")
	logger.Infof("  POST /api/v1/extract/quick  - download + raw WAV only")
	logger.Infof("  GET  /api/v1/video-info     - metadata probe")
	logger.Info("")
	logger.Info("ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
}

func ensureDirectories(paths config.PathsConfig) error {
	for _, dir := range []string{paths.TempDir, paths.OutputDir} {
		if err := fileops.EnsureDir(dir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// requestLogger returns a gin middleware for logging HTTP requests.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if path != "/api/v1/health" || status >= 400 {
			latency := time.Since(start)
			logger.Debugf("HTTP %s %s -> %d (%v)", c.Request.Method, path, status, latency)
		}
	}
}
