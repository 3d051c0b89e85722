package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/api"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/config"
	"github.com/soa-checker/backend/internal/history"
	"github.com/soa-checker/backend/internal/jobs"
	"github.com/soa-checker/backend/internal/logging"
	"github.com/soa-checker/backend/internal/rules"
	"github.com/soa-checker/backend/internal/storage"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const configFileName = "SOAChecker.config"

func main() {
	configPath := os.Getenv("SOA_CONFIG")
	if configPath == "" {
		// Resolve the config next to the executable
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(filepath.Dir(exePath), configFileName)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Advanced.LogLevel, cfg.Advanced.LogFormat, "soa-checker")
	if err != nil {
		fmt.Printf("Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("failed to create directories", zap.Error(err))
	}

	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}

	// Rule registry and checker
	engineOpts := []rules.Option{rules.WithLogger(logger.Named("rules"))}
	if cfg.Rules.StrictMode {
		engineOpts = append(engineOpts, rules.WithStrict())
	}
	engine := rules.New(engineOpts...)
	loadDefaultRules(engine, cfg.Rules.DefaultRulesFile, logger)

	checkerOpts := []compliance.Option{compliance.WithLookup(cfg.LookupMode())}
	if cfg.Rules.InterpolatedDisplay {
		checkerOpts = append(checkerOpts, compliance.WithInterpolatedDisplay())
	}
	checker := compliance.NewChecker(engine, checkerOpts...)
	batch := compliance.NewBatch(checker)

	// Report history
	var (
		reportHistory api.ReportHistory
		jobStore      jobs.ReportStore
	)
	if cfg.Storage.PersistReports {
		hist, err := history.Open(cfg.Storage.ReportsDatabase, history.Options{
			Threads:     cfg.Advanced.DuckDBThreads,
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
			Logger:      logger.Named("history"),
		})
		if err != nil {
			logger.Fatal("failed to open report history", zap.Error(err))
		}
		defer hist.Close()
		reportHistory, jobStore = hist, hist
	}

	jobMgr := jobs.NewManager(batch, jobStore, cfg.Processing.MaxConcurrentJobs, logger.Named("jobs"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sweep finished jobs
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := jobMgr.CleanupOldJobs(cfg.JobRetention()); n > 0 {
					logger.Debug("cleaned up jobs", zap.Int("removed", n))
				}
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, api.MiddlewareOptions{
		Logger:           logger.Named("http"),
		RequestLogging:   cfg.Advanced.EnableRequestLogging,
		EnableCORS:       cfg.Server.EnableCORS,
		AllowOrigins:     cfg.Server.AllowOrigins,
		RequestTimeout:   time.Duration(cfg.Server.ReadTimeout) * time.Second,
		EnableGzip:       cfg.Processing.EnableCompression,
		CompressionLevel: cfg.Processing.CompressionLevel,
		BodyLimit:        cfg.Server.BodyLimit,
	})

	handlers := api.NewHandlers(&api.Dependencies{
		Store:        fileStore,
		Engine:       engine,
		Checker:      checker,
		Batch:        batch,
		Jobs:         jobMgr,
		History:      reportHistory,
		Logger:       logger.Named("api"),
		Version:      Version,
		MaxScenarios: cfg.Processing.MaxScenariosPerBatch,
		AllowDelete:  cfg.Security.AllowFileDeletion,
		AllowedTypes: splitTypes(cfg.Security.AllowedFileTypes),
	})
	api.RegisterRoutes(e, handlers)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(configPath, cfg, engine)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	jobMgr.Wait()
}

// loadDefaultRules loads the configured rules file when it exists. A missing file only
// means the server starts with an empty registry.
func loadDefaultRules(engine *rules.Engine, path string, logger *zap.Logger) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		logger.Info("no default rules file", zap.String("path", path))
		return
	}
	if err := engine.LoadFile(path); err != nil {
		logger.Warn("failed to load default rules", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("default rules loaded", zap.String("path", path), zap.Int("devices", engine.Len()))
}

// splitTypes turns the comma separated AllowedFileTypes setting into a list.
func splitTypes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printBanner(configPath string, cfg *config.AppConfig, engine *rules.Engine) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           SOA Rule Engine Server                          ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Lookup:     %-45s║\n", cfg.LookupMode())
	fmt.Printf("║  Devices:    %-45d║\n", engine.Len())
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
