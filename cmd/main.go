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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantumVector/app-mtla-me/config"
	"github.com/quantumVector/app-mtla-me/db"
	"github.com/quantumVector/app-mtla-me/governance"
	"github.com/quantumVector/app-mtla-me/handlers"
	"github.com/quantumVector/app-mtla-me/logger"
	"github.com/quantumVector/app-mtla-me/metrics"
	"github.com/quantumVector/app-mtla-me/repository"
	"github.com/quantumVector/app-mtla-me/routers"
	"github.com/quantumVector/app-mtla-me/source"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Logger.Sync()

	logger.Logger.Info("Starting delegation resolution server...")

	// Connect to LevelDB
	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()

	// Initialize repository
	snapshotRepo := repository.NewSnapshotRepository(ldb)

	m := metrics.New(prometheus.DefaultRegisterer)

	// Horizon client behind the snapshot cache
	horizon := source.NewClient(cfg.Horizon.URL, cfg.Horizon.Timeout)
	cached := source.NewCached(horizon, snapshotRepo, cfg.Cache.AccountSize, cfg.Cache.TTL, m)

	var opts []governance.Option
	if cfg.DomainMeta.Enabled {
		meta := source.NewDomainMeta(cfg.DomainMeta.URL, cfg.DomainMeta.Timeout, cfg.Cache.AccountSize, cfg.Cache.TTL)
		opts = append(opts, governance.WithDomainMeta(meta))
	}

	svc := governance.NewService(cached, snapshotRepo, governance.Settings{
		MainAccount:    cfg.Governance.MainAccount,
		MemberToken:    cfg.Governance.MemberToken,
		CorporateToken: cfg.Governance.CorporateToken,
		Exclude:        cfg.Governance.Exclude,
		DepthBudget:    cfg.Governance.DepthBudget,
		CouncilSize:    cfg.Governance.CouncilSize,
		BaseFee:        cfg.Transaction.BaseFee,
		Memo:           cfg.Transaction.Memo,

		CheckpointRetention: cfg.Governance.CheckpointRetention,
	}, m, opts...)

	// Initialize HTTP handlers
	h := handlers.NewHandler(svc)

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h, promhttp.Handler())

	// HTTP Server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Error("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Warn("Graceful shutdown failed", zap.Error(err))
	}
}
