package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clamm-labs/exerciser/internal/chain"
	"github.com/clamm-labs/exerciser/internal/config"
	"github.com/clamm-labs/exerciser/internal/datafetcher"
	"github.com/clamm-labs/exerciser/internal/engine"
	"github.com/clamm-labs/exerciser/internal/evaluator"
	"github.com/clamm-labs/exerciser/internal/logger"
	"github.com/clamm-labs/exerciser/internal/notifier"
	"github.com/clamm-labs/exerciser/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// main is the entry point for the settlement keeper.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))

	if config.TelegramBotToken != "" && config.TelegramChatID != "" {
		hook := notifier.NewTelegramHook(
			config.TelegramBotToken,
			config.TelegramChatID,
			notifier.ParseLevels(config.NotifyLevels)...,
		)
		logger.AttachHook(hook)
		log.Info().Msg("Telegram notifications enabled")
	}

	log.Info().Msg("Settlement keeper starting...")

	// --- 2. Chain and Signing Setup ---
	registry := chain.NewRegistry()
	defer registry.Close()

	submitter, err := chain.NewSubmitter(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize transaction submitter")
	}
	log.Info().Str("keeper", submitter.From().Hex()).Msg("Keeper account loaded")

	// --- 3. Evaluator and Engine Wiring ---
	eval := evaluator.New(registry, config.ResultCacheTTL)
	fetcher := datafetcher.NewClient(config.IndexerAPI)

	eng, err := engine.New(engine.Config{
		Source:          fetcher,
		Calculator:      eval,
		Submitter:       submitter,
		PollInterval:    config.PollInterval,
		CleanupInterval: config.CacheCleanupInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create settlement engine")
	}

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, eval, eng, config.CalculateTimeout)
	go func() {
		log.Info().Str("port", config.WebPort).Msg("Starting request adapter")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Run Until Signalled ---
	eng.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received, stopping engine")
	eng.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}

	log.Info().Msg("Settlement keeper stopped")
}
