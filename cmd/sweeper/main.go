package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/turnomed/scheduling-api/internal/config"
	"github.com/turnomed/scheduling-api/internal/repository/postgres"
	"github.com/turnomed/scheduling-api/internal/service/availability"
	"github.com/turnomed/scheduling-api/internal/service/doctor"
	"github.com/turnomed/scheduling-api/internal/worker"
	"github.com/turnomed/scheduling-api/pkg/clock"
	"github.com/turnomed/scheduling-api/pkg/logger"
	"github.com/turnomed/scheduling-api/pkg/metrics"
)

// Standalone sweeper binary. Deployments that scale the API
// horizontally run a single instance of this instead of the in-process
// sweeper, so expired slots are swept exactly once per interval.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Setup(cfg.Logging)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	clk := clock.Real()
	m := metrics.NewMetrics("turnomed", "sweeper")

	doctorSvc := doctor.NewService(postgres.NewDoctorRepository(db))
	availabilitySvc := availability.NewService(postgres.NewSlotRepository(db), doctorSvc, clk)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Dur("interval", cfg.Sweeper.Interval).Msg("sweeper starting")

	sweeper := worker.NewSweeper(availabilitySvc, clk, cfg.Sweeper.Interval, m)
	sweeper.Start(ctx)

	log.Info().Msg("sweeper stopped")
}
