package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mindmate.app/companion/internal/api"
	"mindmate.app/companion/internal/auth"
	"mindmate.app/companion/internal/config"
	"mindmate.app/companion/internal/core"
	"mindmate.app/companion/internal/logger"
	"mindmate.app/companion/internal/session"
	"mindmate.app/companion/internal/store"
)

const sessionSweepInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logg.Sync()

	if !cfg.DotEnvLoaded {
		logg.Info("No .env file found, relying on environment variables")
	}

	ctx := context.Background()

	dbStore, err := openStore(ctx, cfg)
	if err != nil {
		logg.Fatal("Failed to initialize store", "backend", cfg.StoreBackend, "error", err)
	}
	defer func() {
		if err := dbStore.Close(context.Background()); err != nil {
			logg.Warn("Error closing store", "error", err)
		}
	}()
	logg.Info("Store ready", "backend", cfg.StoreBackend)

	gemini, err := core.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMTimeout, logg)
	if err != nil {
		logg.Fatal("Failed to initialize Gemini client", "error", err)
	}
	defer gemini.Close()

	authService := core.NewAuthService(dbStore, logg)
	chatService := core.NewChatService(
		dbStore,
		core.NewAnalyzer(gemini, logg),
		core.NewResponder(gemini, logg),
		cfg.RiskEscalationThreshold,
		logg,
	)

	sessions := session.NewManager(cfg.SessionTTL)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sessions.Run(sweepCtx, sessionSweepInterval, func(dropped int) {
		logg.Debug("Expired sessions removed", "count", dropped, "live", sessions.Len())
	})

	apiHandler, err := api.NewAPIHandler(
		authService,
		chatService,
		sessions,
		auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL),
		cfg.AppEnv == "production",
		logg,
	)
	if err != nil {
		logg.Fatal("Failed to initialize HTTP handlers", "error", err)
	}
	router := api.NewRouter(apiHandler, logg)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout*2 + 10*time.Second, // two model calls per chat turn
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logg.Info("Starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("Could not listen", "addr", serverAddr, "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logg.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("Server forced to shutdown", "error", err)
	}
	stopSweep()

	// gemini.Close() and dbStore.Close() run from their defers.
	logg.Info("Server exiting gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		return store.NewSQLiteStore(cfg.DatabaseURL)
	default:
		return store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	}
}
