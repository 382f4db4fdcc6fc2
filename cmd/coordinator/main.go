package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/likealocal/tips-pipeline/internal/config"
	"github.com/likealocal/tips-pipeline/internal/coordinatorsvc"
	"github.com/likealocal/tips-pipeline/internal/gateway"
	"github.com/likealocal/tips-pipeline/internal/gateway/postgres"
	"github.com/likealocal/tips-pipeline/internal/health"
	"github.com/likealocal/tips-pipeline/internal/logger"
	"github.com/likealocal/tips-pipeline/internal/promotion"
	"github.com/likealocal/tips-pipeline/internal/wake"
)

var (
	noWake      bool
	noPromotion bool

	rootCmd = &cobra.Command{
		Use:   "coordinator",
		Short: "Drains pending traveler tips, wakes the processing worker, and runs one pipeline invocation to completion",
		RunE:  runCoordinator,
	}
)

func main() {
	rootCmd.Flags().BoolVar(&noWake, "no-wake", false, "disable the wake protocol even if WAKE_ENABLED=true")
	rootCmd.Flags().BoolVar(&noPromotion, "no-promotion", false, "skip the promotion engine after processing")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("coordinator exited with error")
		os.Exit(1)
	}
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	log.Logger = logger.New("coordinator")

	cfg, err := config.NewCoordinatorConfig()
	if err != nil {
		return err
	}

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := bootstrapSchema(cfg.PostgresDSN); err != nil {
		return err
	}

	gw, err := gateway.New(db, cfg.WaviateURL)
	if err != nil {
		return err
	}

	depCheck := health.NewPingChecker("gateway", gw, log.Logger, 5*time.Second)
	if err := depCheck.Probe(context.Background()); err != nil {
		return err
	}

	worker := coordinatorsvc.NewWorkerClient(cfg.WorkerBaseURL, cfg.RequestTimeout(), cfg.MaxAttemptsPerBatch)

	var waker *wake.Driver
	wakeCf := wake.Config{}
	wakeEnabled := cfg.WakeEnabled && !noWake
	if wakeEnabled {
		broadcastAddr, err := wake.BroadcastAddr(cfg.WorkerIP)
		if err != nil {
			return err
		}
		sender, err := wake.NewPacketSender(broadcastAddr)
		if err != nil {
			return err
		}
		defer func() { _ = sender.Close() }()
		wakeCf = wake.DefaultConfig(cfg.WorkerMAC, broadcastAddr)
		prober := wake.NewHTTPProber(nil, cfg.WorkerBaseURL, wakeCf.ProbeTimeout)
		waker = wake.NewDriver(prober, sender, log.Logger)
	} else {
		prober := wake.NewHTTPProber(nil, cfg.WorkerBaseURL, 2*time.Second)
		waker = wake.NewDriver(prober, nil, log.Logger)
	}

	co := coordinatorsvc.New(gw, worker, waker, wakeCf, log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := coordinatorsvc.Params{
		WakeEnabled:         wakeEnabled,
		PromotionEnabled:    !noPromotion,
		BatchSize:           cfg.BatchSize,
		Fanout:              cfg.Fanout,
		PerRunLimit:         cfg.PerRunLimit,
		MaxAttemptsPerBatch: cfg.MaxAttemptsPerBatch,
		ShutdownGrace:       cfg.ShutdownGrace(),
		Promotion: promotion.Config{
			SimilarityThreshold: cfg.SimilarityThreshold,
			MinMentions:         cfg.MinMentions,
		},
	}

	result, err := co.Run(ctx, params)
	if err != nil {
		if errors.Is(err, coordinatorsvc.ErrPipelineAborted) {
			log.Error().Err(err).Msg("pipeline aborted")
			return err
		}
		return err
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("claimed", result.Claimed).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("locations_promoted", result.LocationsPromoted).
		Msg("run finished")
	return nil
}

func bootstrapSchema(dsn string) error {
	return postgres.Bootstrap(context.Background(), dsn)
}
