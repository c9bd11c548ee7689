package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codingric/moneyman/classifier"
	"github.com/codingric/moneyman/config"
	"github.com/codingric/moneyman/controllers"
	"github.com/codingric/moneyman/models"
	"github.com/codingric/moneyman/pkg/cache"
	"github.com/codingric/moneyman/pkg/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "predictor"

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("Server Error")
	}
}

func run(args []string) error {
	zerolog.DurationFieldUnit = time.Millisecond

	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())

	shutdown, err := tracing.InitTraceProvider(serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctl, cleanup, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      setupServer(ctl, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Msgf("Server running on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info().Msg("Server exited")
	return nil
}

// setup loads the model and opens the database and optional cache. A model
// or database failure is fatal; a cache failure only disables caching.
func setup(ctx context.Context, cfg *config.Config) (*controllers.Controller, func(), error) {
	model, err := classifier.Load(cfg.Model.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load model: %w", err)
	}
	log.Info().
		Str("path", cfg.Model.Path).
		Str("name", model.Name()).
		Str("version", model.Version()).
		Str("fingerprint", model.Fingerprint()).
		Strs("labels", model.Labels()).
		Msg("Model loaded")

	db, err := models.ConnectDatabase(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	ctl := controllers.New(model, models.NewStore(db))
	ctl.InsertTimeout = cfg.Database.InsertTimeout
	ctl.MaxBatch = cfg.Classify.MaxBatch

	if cfg.Cache.Address != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Cache.Address, cfg.Cache.Password)
		if err != nil {
			log.Warn().Err(err).Msg("Continuing without prediction cache")
		} else {
			log.Info().Str("address", cfg.Cache.Address).Msg("Connected to redis")
			ctl.Redis = client
			ctl.Predictor = cache.NewCachedPredictor(model, client, cfg.Cache.TTL, cfg.Cache.Prefix, model.Fingerprint())
		}
	}

	if !cfg.Transactions.Enabled {
		log.Info().Msg("Transaction listing disabled")
	}

	cleanup := func() {
		if ctl.Redis != nil {
			ctl.Redis.Close()
		}
		models.Close(db)
	}
	return ctl, cleanup, nil
}
