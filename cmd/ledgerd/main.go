package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bribeirobr25/diboas-sub002/config"
	"github.com/bribeirobr25/diboas-sub002/internal/manager"
	"github.com/bribeirobr25/diboas-sub002/internal/setup"
	"github.com/bribeirobr25/diboas-sub002/internal/storage"
	"github.com/bribeirobr25/diboas-sub002/internal/storage/audit"
	"github.com/bribeirobr25/diboas-sub002/internal/storage/history"
	"github.com/bribeirobr25/diboas-sub002/internal/web"
)

const defaultConfigPath = "ledger.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := setup.RunTUI(defaultConfigPath); err != nil {
			os.Exit(1)
		}
		return
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	kv, err := storage.NewFileStore(filepath.Join(cfg.DataDir, "kv"))
	if err != nil {
		logger.Fatal("failed to open key-value store", zap.Error(err))
	}
	auditStore, err := audit.NewWALStore(filepath.Join(cfg.DataDir, "audit"))
	if err != nil {
		logger.Fatal("failed to open audit log", zap.Error(err))
	}
	journal, err := history.NewWALStore(filepath.Join(cfg.DataDir, "history"))
	if err != nil {
		logger.Fatal("failed to open transaction journal", zap.Error(err))
	}

	ledger, err := manager.New(cfg, logger, kv, auditStore, journal)
	if err != nil {
		logger.Fatal("failed to create ledger manager", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ledger.Init(ctx); err != nil {
		logger.Fatal("failed to initialize ledger", zap.Error(err))
	}
	defer ledger.Dispose()

	server := web.NewServer(cfg.ListenAddr, ledger, ledger.Registry())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	logger.Info("ledgerd started",
		zap.String("user", cfg.UserID),
		zap.String("listen", cfg.ListenAddr))

	if err := g.Wait(); err != nil {
		logger.Error(err.Error())
	}
}
