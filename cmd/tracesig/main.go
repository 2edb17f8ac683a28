package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tracesig/config"
	"tracesig/internal/alerts"
	inputredis "tracesig/internal/input/redis"
	"tracesig/internal/logger"
	"tracesig/internal/metrics"
	"tracesig/internal/output/alertjson"
	"tracesig/internal/output/reporthttp"
	"tracesig/internal/output/reportjson"
	"tracesig/internal/pipeline"
	"tracesig/internal/rules"
	"tracesig/internal/taskstate"
	"tracesig/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("tracesig.yml"); err == nil {
		return "tracesig.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "tracesig.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "tracesig.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.TraceSig.Input.Redis.Addr == "" {
		cfg.TraceSig.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.TraceSig.Input.Redis.Key == "" {
		cfg.TraceSig.Input.Redis.Key = "tracesig_tasks"
	}
	if cfg.TraceSig.Input.Redis.BlockTimeout == 0 {
		cfg.TraceSig.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.TraceSig.Pipeline.Workers <= 0 {
		cfg.TraceSig.Pipeline.Workers = 4
	}
	if cfg.TraceSig.Pipeline.BatchSize <= 0 {
		cfg.TraceSig.Pipeline.BatchSize = 50
	}
	if cfg.TraceSig.Pipeline.FlushInterval <= 0 {
		cfg.TraceSig.Pipeline.FlushInterval = 2 * time.Second
	}

	if cfg.TraceSig.Alerts.Window <= 0 {
		cfg.TraceSig.Alerts.Window = 5 * time.Minute
	}
	if cfg.TraceSig.Alerts.Threshold <= 0 {
		cfg.TraceSig.Alerts.Threshold = 8
	}
	if cfg.TraceSig.Alerts.MaxRows <= 0 {
		cfg.TraceSig.Alerts.MaxRows = 50
	}
	if cfg.TraceSig.Alerts.Cooldown <= 0 {
		cfg.TraceSig.Alerts.Cooldown = 2 * time.Minute
	}
	if cfg.TraceSig.Alerts.File.Path == "" {
		cfg.TraceSig.Alerts.File.Path = "output/alerts.jsonl"
	}

	if cfg.TraceSig.Output.Mode == "" {
		cfg.TraceSig.Output.Mode = "file"
	}
	if cfg.TraceSig.Output.File.Path == "" {
		cfg.TraceSig.Output.File.Path = "output/reports.jsonl"
	}

	if cfg.TraceSig.Metrics.Addr == "" {
		cfg.TraceSig.Metrics.Addr = ":9210"
	}

	if cfg.TraceSig.Logging.Level == "" {
		cfg.TraceSig.Logging.Level = "info"
	}
}

func runServe(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.TraceSig.Logging.Enabled, cfg.TraceSig.Logging.Level, cfg.TraceSig.Logging.File, cfg.TraceSig.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("TraceSig starting")
	logger.Infof("Config loaded from: %s", configPath)

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.TraceSig.Input.Redis.Addr,
		Password:     cfg.TraceSig.Input.Redis.Password,
		DB:           cfg.TraceSig.Input.Redis.DB,
		Key:          cfg.TraceSig.Input.Redis.Key,
		BlockTimeout: cfg.TraceSig.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	var engine rules.Engine
	if strings.TrimSpace(cfg.TraceSig.Signatures.SigmaPath) != "" {
		sigmaEngine, stats, err := rules.NewSigmaEngine(cfg.TraceSig.Signatures.SigmaPath)
		if err != nil {
			logger.Errorf("Failed to load Sigma rules from %s: %v", cfg.TraceSig.Signatures.SigmaPath, err)
			log.Fatalf("Failed to load Sigma rules: %v", err)
		}
		engine = sigmaEngine
		logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
			stats.Loaded,
			stats.SkippedComplex,
			stats.SkippedDatasource,
			stats.SkippedInvalid,
			stats.TotalFiles,
		)
		if stats.Loaded == 0 {
			logger.Warnf("No compatible Sigma rules loaded; built-in signatures still apply")
		}
	}

	var scorer *alerts.Scorer
	var alertWriter pipeline.AlertWriter
	if cfg.TraceSig.Alerts.Enabled {
		scorer = alerts.NewScorer(alerts.Config{
			Window:    cfg.TraceSig.Alerts.Window,
			Threshold: cfg.TraceSig.Alerts.Threshold,
			MaxRows:   cfg.TraceSig.Alerts.MaxRows,
			Cooldown:  cfg.TraceSig.Alerts.Cooldown,
		})
		w, err := alertjson.NewWriter(cfg.TraceSig.Alerts.File.Path)
		if err != nil {
			logger.Errorf("Failed to create alert file writer: %v", err)
			log.Fatalf("Failed to create alert file writer: %v", err)
		}
		alertWriter = w
		logger.Infof("Alert output: file (%s)", cfg.TraceSig.Alerts.File.Path)
	}

	var reportWriter pipeline.ReportWriter
	switch cfg.TraceSig.Output.Mode {
	case "file":
		w, err := reportjson.NewWriter(cfg.TraceSig.Output.File.Path)
		if err != nil {
			logger.Errorf("Failed to create report file writer: %v", err)
			log.Fatalf("Failed to create report file writer: %v", err)
		}
		reportWriter = w
		logger.Infof("Output mode: file (%s)", cfg.TraceSig.Output.File.Path)
	case "http":
		w, err := reporthttp.NewWriter(reporthttp.Config{
			URL:     cfg.TraceSig.Output.HTTP.URL,
			Timeout: cfg.TraceSig.Output.HTTP.Timeout,
			Headers: cfg.TraceSig.Output.HTTP.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create report HTTP writer: %v", err)
			log.Fatalf("Failed to create report HTTP writer: %v", err)
		}
		reportWriter = w
		logger.Infof("Output mode: http (%s)", cfg.TraceSig.Output.HTTP.URL)
	default:
		log.Fatalf("Unknown output mode: %s", cfg.TraceSig.Output.Mode)
	}

	var stateStore *taskstate.RedisStore
	if cfg.TraceSig.TaskState.Enabled {
		stateStore, err = taskstate.NewRedisStore(taskstate.RedisConfig{
			Addr:      cfg.TraceSig.TaskState.Addr,
			Password:  cfg.TraceSig.TaskState.Password,
			DB:        cfg.TraceSig.TaskState.DB,
			KeyPrefix: cfg.TraceSig.TaskState.KeyPrefix,
		})
		if err != nil {
			logger.Errorf("Failed to create task-state store: %v", err)
			log.Fatalf("Failed to create task-state store: %v", err)
		}
		logger.Infof("Task-state persistence enabled")
	}

	if cfg.TraceSig.Metrics.Enabled {
		go metrics.Serve(cfg.TraceSig.Metrics.Addr)
		logger.Infof("Metrics endpoint: %s/metrics", cfg.TraceSig.Metrics.Addr)
	}

	analyzer := pipeline.NewAnalyzer(engine, cfg.TraceSig.Signatures.Builtin)

	pipe := pipeline.NewRedisAnalysisPipeline(
		consumer,
		analyzer,
		reportWriter,
		scorer,
		alertWriter,
		stateStore,
		cfg.TraceSig.Pipeline.Workers,
		cfg.TraceSig.Pipeline.BatchSize,
		cfg.TraceSig.Pipeline.FlushInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}

	logger.Infof("TraceSig stopped")
}

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	trace := fs.String("trace", "", "Path to a captured syscall trace")
	taskID := fs.String("task-id", "", "Task id recorded in the report (defaults to the trace name)")
	sigmaPath := fs.String("sigma-rules", "", "Optional Sigma rule file or directory")
	noBuiltin := fs.Bool("no-builtin", false, "Disable built-in signatures")
	output := fs.String("output", "output/report.jsonl", "Report JSONL output path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*trace) == "" {
		fmt.Fprintln(os.Stderr, "-trace is required")
		return 2
	}

	var engine rules.Engine
	if strings.TrimSpace(*sigmaPath) != "" {
		sigmaEngine, stats, err := rules.NewSigmaEngine(*sigmaPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load sigma rules: %v\n", err)
			return 1
		}
		engine = sigmaEngine
		fmt.Printf("sigma rules loaded=%d files=%d\n", stats.Loaded, stats.TotalFiles)
	}

	id := strings.TrimSpace(*taskID)
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(*trace), filepath.Ext(*trace))
	}

	analyzer := pipeline.NewAnalyzer(engine, !*noBuiltin)
	report, err := analyzer.AnalyzeTask(&models.Task{TaskID: id, TracePath: *trace})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to analyze trace: %v\n", err)
		return 1
	}

	writer, err := reportjson.NewWriter(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create report writer: %v\n", err)
		return 1
	}
	defer writer.Close()
	if err := writer.WriteReports([]*models.Report{report}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
		return 1
	}

	fmt.Printf("analyzed task=%s processes=%d signatures=%d output=%s\n", report.TaskID, len(report.Processes), len(report.Signatures), *output)
	return 0
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "analyze":
			os.Exit(runAnalyze(os.Args[2:]))
		default:
			// Backward-compatible mode: first arg is config path.
			runServe(os.Args[1:])
			return
		}
	}

	runServe(nil)
}
