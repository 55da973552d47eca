package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"credit-approval-api/internal/cfg"
	"credit-approval-api/internal/engine"
	"credit-approval-api/internal/features"
	"credit-approval-api/internal/metrics"
	"credit-approval-api/internal/model"
	"credit-approval-api/internal/registry"
	"credit-approval-api/internal/server"
	"credit-approval-api/internal/storage"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	regClient := registry.NewREST(c.RegistryURL, c.ArtifactCache, c.RegistryTimeout)

	// The model service is constructed exactly once here and handed to the
	// HTTP layer by reference.
	service := model.NewService(regClient, c.ModelName, c.ModelStage, m)
	if _, err := service.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial model load failed, serving will return errors until a reload succeeds")
	}

	engineer := features.NewEngineer(c.Features)
	if err := engineer.Load(c.PreprocessorDir); err != nil {
		log.Warn().Err(err).Str("dir", c.PreprocessorDir).Msg("Preprocessor load failed, predictions will fail until artifacts are present")
	}

	eng := engine.New(c.Features, engineer, service)
	srv := server.New(eng, service, regClient, c.ModelName, store, m, c.ListenPort)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("model", c.ModelName).
		Str("stage", c.ModelStage).
		Str("registry", c.RegistryURL).
		Int("port", c.ListenPort).
		Msg("Credit approval service started")

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("server exited")
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}

// initializeStorage opens the audit store if DATA_PATH is configured.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open audit store, continuing without it")
		return nil
	}
	return store
}
