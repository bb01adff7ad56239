package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veil-sh/veil/internal/config"
	"github.com/veil-sh/veil/internal/history"
	"github.com/veil-sh/veil/internal/logger"
	"github.com/veil-sh/veil/internal/ocr"
	"github.com/veil-sh/veil/internal/pipeline"
	"github.com/veil-sh/veil/internal/preset"
	"github.com/veil-sh/veil/internal/redact"
	"github.com/veil-sh/veil/internal/server"
	"github.com/veil-sh/veil/internal/vision"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("veil %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting veil",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// Preset store backend
	presetStore, err := newPresetStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize preset store", zap.Error(err))
	}

	// Session history (optional)
	var historyStore *history.Store
	if cfg.History.Enabled {
		historyStore, err = history.NewStore(&history.Config{
			DatabaseURL:     cfg.History.DatabaseURL,
			MaxOpenConns:    cfg.History.MaxOpenConns,
			MaxIdleConns:    cfg.History.MaxIdleConns,
			ConnMaxLifetime: cfg.History.ConnMaxLifetime,
		}, log.WithComponent("history").Logger)
		if err != nil {
			log.Fatal("Failed to initialize history store", zap.Error(err))
		}
		defer historyStore.Close()
	}

	// Vision backend (no-op unless built with the onnx tag and enabled)
	var visionBackend vision.DetectorBackend
	if cfg.Vision.Enabled {
		visionBackend = vision.NewDetectorBackend(log.WithComponent("vision").Logger, &vision.Config{
			Enabled:       cfg.Vision.Enabled,
			ModelPath:     cfg.Vision.ModelPath,
			MinConfidence: cfg.Vision.MinConfidence,
		})
	}

	// Analysis pipeline
	ocrEngine := ocr.NewTesseract(ocr.Config{}, log.WithComponent("ocr").Logger)
	pl, err := pipeline.New(pipeline.Options{
		OCR:           ocrEngine,
		Vision:        visionBackend,
		Redaction:     redactionDefaults(cfg),
		MergeAdjacent: cfg.Detection.MergeAdjacent,
		MergeGapRatio: cfg.Detection.MergeGapRatio,
		JPEGQuality:   cfg.Redaction.JPEGQuality,
	}, log.WithComponent("pipeline"))
	if err != nil {
		log.Fatal("Failed to create pipeline", zap.Error(err))
	}

	// Create HTTP server
	srv, err := server.New(cfg, log, pl, presetStore, historyStore)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	// Hot-reload detection settings for subsequent runs
	if err := config.Watch(cfg, func(updated *config.Config) {
		cfg.Detection = updated.Detection
		cfg.Redaction = updated.Redaction
		cfg.Bulk = updated.Bulk
		log.Info("Configuration reloaded",
			zap.String("active_preset", cfg.Detection.ActivePreset),
			zap.Float64("confidence_threshold", cfg.Detection.ConfidenceThreshold),
		)
	}); err != nil {
		log.Warn("Configuration watching disabled", zap.Error(err))
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// redactionDefaults maps the redaction config section onto the planner's
// bottom resolution layer. The style is already validated at config load.
func redactionDefaults(cfg *config.Config) redact.Defaults {
	style, err := redact.ParseStyle(cfg.Redaction.DefaultStyle)
	if err != nil {
		style = redact.StyleBox
	}
	return redact.Defaults{
		Style:  style,
		Config: redact.Config{
			Color:         cfg.Redaction.Color,
			Opacity:       cfg.Redaction.Opacity,
			Label:         cfg.Redaction.Label,
			PixelateBlock: cfg.Redaction.PixelateBlock,
			BlurRadius:    cfg.Redaction.BlurRadius,
		},
	}
}

// newPresetStore builds the configured preset store backend.
func newPresetStore(cfg *config.Config, log *logger.Logger) (preset.Store, error) {
	switch cfg.Presets.Backend {
	case "redis":
		return preset.NewRedisStore(&preset.RedisConfig{
			URL:            cfg.Presets.Redis.URL,
			MaxConnections: cfg.Presets.Redis.MaxConnections,
			MinIdleConns:   cfg.Presets.Redis.MinIdleConns,
			KeyPrefix:      cfg.Presets.Redis.KeyPrefix,
			DefaultTTL:     cfg.Presets.Redis.DefaultTTL,
		}, log.WithComponent("presets").Logger)
	case "file":
		return preset.NewFileStore(cfg.Presets.Dir)
	default:
		return preset.NewMemoryStore(), nil
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8090/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
