package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/expense-ledger/internal/config"
	"github.com/garyjia/expense-ledger/internal/export"
	"github.com/garyjia/expense-ledger/internal/interfaces/http"
	"github.com/garyjia/expense-ledger/internal/ledger"
	"github.com/garyjia/expense-ledger/pkg/database"
	"github.com/garyjia/expense-ledger/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Local overrides from .env, if present
	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting expense ledger",
		zap.String("database", cfg.Database.Path),
		zap.Int("schema_version", cfg.Database.SchemaVersion))

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("Failed to create data directory", zap.Error(err))
		}
	}

	store, report, err := ledger.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, cfg.Database.SchemaVersion, logger)
	if err != nil {
		logger.Fatal("Failed to open ledger store", zap.Error(err))
	}
	defer store.Close()

	logger.Info("Ledger store opened",
		zap.Int("schema_from", report.From),
		zap.Int("schema_to", report.To),
		zap.Bool("data_loss", report.DataLoss))

	paginator := ledger.NewPaginator(store, logger)
	folders := ledger.NewFolderIndex(store, logger)

	excel := export.NewExcelWriter(cfg.Ledger.Currency, logger)
	handlers := http.NewHandlers(store, paginator, folders, excel, cfg.Ledger.DefaultPageSize, logger)
	server := http.NewServer(http.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
