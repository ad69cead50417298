package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	castquest "github.com/castquest/castquest-backend"
	"github.com/castquest/castquest-backend/internal/api"
	"github.com/castquest/castquest-backend/internal/config"
	"github.com/castquest/castquest-backend/internal/farcaster"
	"github.com/castquest/castquest-backend/internal/ledger"
	"github.com/castquest/castquest-backend/internal/repository"
	"github.com/castquest/castquest-backend/internal/service"
	"github.com/castquest/castquest-backend/internal/sponsorship"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect storage; an unset DATABASE_URL falls back to the in-memory
	// store for local runs
	var store repository.Store
	if cfg.DatabaseURL != "" {
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		migrationsFS, err := fs.Sub(castquest.MigrationsFS, "migrations")
		if err != nil {
			slog.Error("failed to load embedded migrations", "error", err)
			os.Exit(1)
		}
		if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		store = repository.NewPostgres(pool)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		store = repository.NewMemory()
	}

	// Reward ledger client
	ledgerClient, err := ledger.New(cfg.RPCURL, cfg.RewardContract, cfg.AuthorityPrivateKey, cfg.ChainID)
	if err != nil {
		slog.Error("failed to create ledger client", "error", err)
		os.Exit(1)
	}
	defer ledgerClient.Close()

	slog.Info("ledger client ready",
		"contract", ledgerClient.ContractAddress(),
		"authority", ledgerClient.AuthorityAddress(),
		"chain_id", ledgerClient.ChainID(),
	)

	// Identity provider and verification
	fcClient := farcaster.NewClient(cfg.NeynarAPIURL, cfg.NeynarAPIKey)
	verifier := farcaster.NewVerifier(fcClient)

	// Gas sponsorship (optional)
	negotiator := sponsorship.NewNegotiator(cfg.PaymasterURL, cfg.PaymasterPolicyID)

	// Initialize services
	userService := service.NewUserService(store)
	taskService := service.NewTaskService(store, ledgerClient, verifier)
	participantService := service.NewParticipantService(store, ledgerClient, verifier, negotiator)

	// HTTP server
	server := api.NewServer(api.Deps{
		Cfg:          cfg,
		Tasks:        taskService,
		Participants: participantService,
		Users:        userService,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	slog.Info("server stopped gracefully")
}
