package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/likealocal/tips-pipeline/internal/config"
	"github.com/likealocal/tips-pipeline/internal/health"
	"github.com/likealocal/tips-pipeline/internal/logger"
	"github.com/likealocal/tips-pipeline/internal/workerapi"
	"github.com/likealocal/tips-pipeline/internal/workerapi/detect"
	"github.com/likealocal/tips-pipeline/internal/workerapi/embed"
	"github.com/likealocal/tips-pipeline/internal/workerapi/translate"
)

func main() {
	log.Logger = logger.New("processing-worker")

	cfg, err := config.NewWorkerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// Models load once per process (§4.3): constructed here, held for the
	// lifetime of the server, reused sequentially across requests.
	detector := detect.NewWhatlangDetector()
	translator := translate.NewPhraseTableModel()
	embedder := embed.NewHashEmbedder()

	checker := health.NewServiceChecker(log.Logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go checker.Start(ctx, 10*time.Second)

	srv := workerapi.NewServer(detector, translator, embedder, cfg.TargetLanguage, checker, log.Logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: srv.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("worker: graceful shutdown failed")
		}
	}()

	log.Info().Int("port", cfg.HTTPPort).Msg("processing worker starting")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("worker: server exited")
	}
}
