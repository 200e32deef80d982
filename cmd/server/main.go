package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/rebalancer/internal/clients/yahoo"
	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/modules/accounts"
	"github.com/aristath/rebalancer/internal/modules/allocation"
	"github.com/aristath/rebalancer/internal/modules/holdings"
	"github.com/aristath/rebalancer/internal/modules/prices"
	"github.com/aristath/rebalancer/internal/modules/prices/jobs"
	"github.com/aristath/rebalancer/internal/modules/rules"
	"github.com/aristath/rebalancer/internal/scheduler"
	"github.com/aristath/rebalancer/internal/server"
	"github.com/aristath/rebalancer/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Rebalancer")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Shared infrastructure
	eventManager := events.NewManager(log)
	yahooClient := yahoo.NewClient(cfg.YahooBaseURL, log)

	// Repositories and services
	accountRepo := accounts.NewRepository(db.Conn(), log)
	holdingRepo := holdings.NewRepository(db.Conn(), log)
	ruleRepo := rules.NewRepository(db.Conn(), log)

	priceMaxAge := time.Duration(cfg.PriceMaxAgeMins) * time.Minute
	priceService := prices.NewService(db.Conn(), yahooClient, priceMaxAge, log)

	holdingService := holdings.NewService(holdingRepo, priceService, log)
	importer := holdings.NewImporter(holdingRepo, log)
	engine := allocation.NewEngine(log)

	// Scheduler and background jobs
	sched := scheduler.New(log)
	priceSync := jobs.NewSyncJob(priceService, eventManager, log)
	if err := sched.AddJob(cfg.PriceSyncSchedule, priceSync); err != nil {
		log.Fatal().Err(err).Msg("Failed to register price sync job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		DB:        db,
		Scheduler: sched,
		DevMode:   cfg.DevMode,

		Accounts:   accounts.NewHandler(accountRepo, eventManager, log),
		Holdings:   holdings.NewHandler(holdingRepo, holdingService, importer, eventManager, log),
		Rules:      rules.NewHandler(ruleRepo, eventManager, log),
		Allocation: allocation.NewHandler(holdingService, ruleRepo, engine, eventManager, log),
		Prices:     prices.NewHandler(priceService, holdingRepo, log),
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
