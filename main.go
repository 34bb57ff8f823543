package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tutortoise/image-classification-service/classification"
	"github.com/Tutortoise/image-classification-service/config"
	"github.com/Tutortoise/image-classification-service/logger"
	"github.com/Tutortoise/image-classification-service/modelcache"
	"github.com/Tutortoise/image-classification-service/modelstore"
	"github.com/Tutortoise/image-classification-service/onnxmodel"

	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("service stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.ApplicationLogLevel
	if cfg.Debug {
		level = "DEBUG"
	}
	if err := logger.Init(level, cfg.ApplicationName, cfg.ApplicationEnv); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := onnxmodel.InitEnvironment(cfg.OrtLibraryPath); err != nil {
		return err
	}
	defer onnxmodel.DestroyEnvironment()

	source, err := modelstore.New(ctx, cfg.SourceOptions())
	if err != nil {
		return err
	}
	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}

	settings := cfg.PipelineSettings()
	intraOp := cfg.OrtIntraOpThreads
	if intraOp <= 0 {
		intraOp = onnxmodel.DefaultIntraOpThreads(cfg.OrtSessionPoolSize)
	}
	parser := &onnxmodel.Parser{
		InputName:      cfg.ModelInputName,
		OutputName:     cfg.ModelOutputName,
		Height:         settings.Height,
		Width:          settings.Width,
		NumLabels:      len(settings.Labels),
		PoolSize:       cfg.OrtSessionPoolSize,
		IntraOpThreads: intraOp,
	}

	cache := modelcache.New(source, parser, modelcache.Options{
		ScratchDir:   cfg.ModelScratchDir,
		FetchTimeout: cfg.FetchTimeout(),
	})
	defer cache.Close()

	pipeline := classification.NewPipeline(classification.NewImagePreprocessor(), cache, settings)

	if cfg.ModelPreload {
		go func() {
			if _, err := cache.Get(ctx); err != nil {
				log.Warn().Err(err).Msg("model preload failed, will retry on first request")
			}
		}()
	}

	state := &AppState{
		Classifier:      pipeline,
		Models:          cache,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		CORSAllowOrigin: cfg.CORSAllowOrigin,
		Debug:           cfg.Debug,
	}

	srv := &http.Server{
		Handler:      state.withCORS(newRouter(state)),
		Addr:         cfg.Address(),
		ReadTimeout:  time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("profile", cfg.Profile).
			Str("model_source", source.String()).
			Int("top_k", settings.TopK).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
