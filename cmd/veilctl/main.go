package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veil-sh/veil/internal/bulk"
	"github.com/veil-sh/veil/internal/config"
	"github.com/veil-sh/veil/internal/detect"
	"github.com/veil-sh/veil/internal/history"
	"github.com/veil-sh/veil/internal/logger"
	"github.com/veil-sh/veil/internal/ocr"
	"github.com/veil-sh/veil/internal/pipeline"
	"github.com/veil-sh/veil/internal/preset"
	"github.com/veil-sh/veil/internal/redact"
	"github.com/veil-sh/veil/internal/report"
	"github.com/veil-sh/veil/internal/vision"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Configuration file path")
		presetID     = flag.String("preset", "", "Detection preset to use (defaults to configured active preset)")
		workers      = flag.Int("workers", 0, "Concurrent file workers (defaults to configured max)")
		outputDir    = flag.String("output", "", "Directory for sanitized outputs (defaults to alongside originals)")
		reportPath   = flag.String("report", "", "Write a per-file report to this path")
		reportFormat = flag.String("report-format", "json", "Report format: json, csv, or parquet")
		analyzeOnly  = flag.Bool("analyze-only", false, "Detect only, do not render redactions")
		stopOnError  = flag.Bool("stop-on-error", false, "Stop scheduling new files after the first failure")
		showStats    = flag.Bool("stats", false, "Show history statistics and exit")
	)
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file>...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --preset strict scans/*.png\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --workers 8 --output sanitized/ invoices/*.jpg\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --report run.parquet --report-format parquet batch/*.png\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting veil bulk run",
		zap.String("version", "0.1.0"),
		zap.Int("files", len(files)))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	// Initialize services
	services, err := initializeServices(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.cleanup()

	if *showStats {
		if err := showHistoryStats(ctx, services); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
		return
	}

	run := &runOptions{
		presetID:     *presetID,
		workers:      *workers,
		outputDir:    *outputDir,
		reportPath:   *reportPath,
		reportFormat: *reportFormat,
		analyzeOnly:  *analyzeOnly,
		stopOnError:  *stopOnError,
	}
	if run.presetID == "" {
		run.presetID = cfg.Detection.ActivePreset
	}
	if run.workers <= 0 {
		run.workers = cfg.Bulk.MaxConcurrency
	}

	if err := processFiles(ctx, cfg, services, run, files, log); err != nil {
		log.Fatal("Bulk processing failed", zap.Error(err))
	}

	log.Info("Bulk run completed")
}

// runOptions carries the flag values of one bulk invocation.
type runOptions struct {
	presetID     string
	workers      int
	outputDir    string
	reportPath   string
	reportFormat string
	analyzeOnly  bool
	stopOnError  bool
}

// services holds all initialized services
type services struct {
	presets  preset.Store
	history  *history.Store
	pipeline *pipeline.Pipeline
}

func (s *services) cleanup() {
	if s.history != nil {
		s.history.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(cfg *config.Config, log *logger.Logger) (*services, error) {
	services := &services{}

	switch cfg.Presets.Backend {
	case "redis":
		store, err := preset.NewRedisStore(&preset.RedisConfig{
			URL:            cfg.Presets.Redis.URL,
			MaxConnections: cfg.Presets.Redis.MaxConnections,
			MinIdleConns:   cfg.Presets.Redis.MinIdleConns,
			KeyPrefix:      cfg.Presets.Redis.KeyPrefix,
			DefaultTTL:     cfg.Presets.Redis.DefaultTTL,
		}, log.WithComponent("presets").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize preset store: %w", err)
		}
		services.presets = store
	case "file":
		store, err := preset.NewFileStore(cfg.Presets.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize preset store: %w", err)
		}
		services.presets = store
	default:
		services.presets = preset.NewMemoryStore()
	}

	if cfg.History.Enabled {
		store, err := history.NewStore(&history.Config{
			DatabaseURL:     cfg.History.DatabaseURL,
			MaxOpenConns:    cfg.History.MaxOpenConns,
			MaxIdleConns:    cfg.History.MaxIdleConns,
			ConnMaxLifetime: cfg.History.ConnMaxLifetime,
		}, log.WithComponent("history").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history store: %w", err)
		}
		services.history = store
	}

	var visionBackend vision.DetectorBackend
	if cfg.Vision.Enabled {
		visionBackend = vision.NewDetectorBackend(log.WithComponent("vision").Logger, &vision.Config{
			Enabled:       cfg.Vision.Enabled,
			ModelPath:     cfg.Vision.ModelPath,
			MinConfidence: cfg.Vision.MinConfidence,
		})
	}

	pl, err := pipeline.New(pipeline.Options{
		OCR:           ocr.NewTesseract(ocr.Config{}, log.WithComponent("ocr").Logger),
		Vision:        visionBackend,
		Redaction:     redactionDefaults(cfg),
		MergeAdjacent: cfg.Detection.MergeAdjacent,
		MergeGapRatio: cfg.Detection.MergeGapRatio,
		JPEGQuality:   cfg.Redaction.JPEGQuality,
	}, log.WithComponent("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	services.pipeline = pl

	return services, nil
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

// processFiles runs the bulk orchestrator over the file list and writes
// outputs, history records, and the optional report.
func processFiles(ctx context.Context, cfg *config.Config, services *services, run *runOptions, files []string, log *logger.Logger) error {
	pr, err := services.presets.Get(ctx, run.presetID)
	if err != nil {
		return fmt.Errorf("unknown preset %q: %w", run.presetID, err)
	}

	for _, file := range files {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", file)
		}
	}

	var session *history.Session
	if services.history != nil {
		session, err = services.history.BeginSession(ctx, pr.ID)
		if err != nil {
			return fmt.Errorf("failed to open history session: %w", err)
		}
		session.TotalFiles = len(files)
	}

	analyze := func(ctx context.Context, file string) (*detect.AnalyzeResult, error) {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, &detect.AnalysisError{File: file, Err: err}
		}
		return services.pipeline.Analyze(ctx, file, data, pr)
	}

	var apply bulk.ApplyFunc
	if !run.analyzeOnly {
		apply = func(ctx context.Context, file string, analysis *detect.AnalyzeResult) (*redact.ApplyResult, error) {
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, &redact.RedactionError{Reason: "failed to reread input", Err: err}
			}
			requests := make([]redact.ActionRequest, 0, len(analysis.Detections))
			for _, d := range analysis.Detections {
				requests = append(requests, redact.ActionRequest{DetectionID: d.ID})
			}
			applied, err := services.pipeline.Apply(ctx, file, data, analysis, pr, requests)
			if err != nil {
				return nil, err
			}
			if err := writeOutput(file, run.outputDir, applied); err != nil {
				return nil, err
			}
			return applied, nil
		}
	}

	var records []*history.Record
	orchestrator := bulk.New(analyze, apply, log.Logger)
	result := orchestrator.Run(ctx, files, bulk.Options{
		MaxConcurrency: run.workers,
		StopOnError:    run.stopOnError,
		OnProgress: func(completed, total int, file string) {
			fmt.Printf("[%d/%d] %s\n", completed, total, filepath.Base(file))
		},
		OnFileComplete: func(file string, res *bulk.FileResult, runErr error) {
			var size int64
			if info, err := os.Stat(file); err == nil {
				size = info.Size()
			}
			records = append(records, report.BuildRecord(sessionID(session), pr.ID, file, size, res, runErr))
		},
	})

	if services.history != nil {
		session.Successful = result.Successful
		session.Failed = result.Failed
		if err := services.history.InsertRecords(ctx, records); err != nil {
			log.Warn("Failed to persist history records", zap.Error(err))
		}
		if err := services.history.FinishSession(ctx, session); err != nil {
			log.Warn("Failed to finish history session", zap.Error(err))
		}
	}

	log.Info("Bulk run finished",
		zap.Int("total", result.Total),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	for i, runErr := range result.Errors {
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "  failed: %s: %v\n", files[i], runErr)
		}
	}

	if run.reportPath != "" {
		if err := writeReport(run.reportPath, run.reportFormat, session, records); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		log.Info("Report written",
			zap.String("path", run.reportPath),
			zap.String("format", run.reportFormat))
	}

	if result.Failed > 0 && result.Successful == 0 {
		return fmt.Errorf("all %d files failed", result.Total)
	}
	return nil
}

// writeOutput stores sanitized bytes next to the original or under dir,
// suffixed so originals are never clobbered.
func writeOutput(file, dir string, applied *redact.ApplyResult) error {
	if dir == "" {
		dir = filepath.Dir(file)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return &redact.RedactionError{Reason: "failed to create output dir", Err: err}
	}

	base := filepath.Base(file)
	ext := filepath.Ext(base)
	out := filepath.Join(dir, base[:len(base)-len(ext)]+".redacted."+applied.Format)
	if err := os.WriteFile(out, applied.Output, 0o644); err != nil {
		return &redact.RedactionError{Reason: "failed to write output", Err: err}
	}
	return nil
}

// writeReport exports the per-file records in the requested format.
func writeReport(path, format string, session *history.Session, records []*history.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(format) {
	case "csv":
		return report.WriteCSV(f, records)
	case "parquet":
		return report.WriteParquet(f, records)
	case "json":
		export := &report.Export{
			Records:    records,
			ExportedAt: time.Now(),
		}
		if session != nil {
			export.Sessions = []*history.Session{session}
		}
		return report.WriteJSON(f, export)
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
}

// showHistoryStats displays aggregate statistics from stored sessions
func showHistoryStats(ctx context.Context, services *services) error {
	if services.history == nil {
		return fmt.Errorf("history is disabled; enable it in the configuration")
	}

	stats, err := services.history.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get history stats: %w", err)
	}

	fmt.Printf("\n=== Veil History Statistics ===\n")
	fmt.Printf("Total Sessions:     %d\n", stats.TotalSessions)
	fmt.Printf("Total Files:        %d\n", stats.TotalFiles)
	fmt.Printf("Total Detections:   %d\n", stats.TotalDetections)
	fmt.Printf("Total Redactions:   %d\n", stats.TotalRedactions)
	fmt.Printf("Avg Detections:     %.2f per file\n", stats.AvgDetections)
	fmt.Printf("Avg Confidence:     %.3f\n", stats.AvgConfidence)
	fmt.Printf("High Confidence:    %d\n", stats.HighConfidence)
	fmt.Printf("Medium Confidence:  %d\n", stats.MedConfidence)
	fmt.Printf("Low Confidence:     %d\n", stats.LowConfidence)

	return nil
}

func sessionID(s *history.Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}
