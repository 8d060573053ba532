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

	appointmentHandler "github.com/turnomed/scheduling-api/internal/handler/appointment"
	availabilityHandler "github.com/turnomed/scheduling-api/internal/handler/availability"
	healthHandler "github.com/turnomed/scheduling-api/internal/handler/health"

	"github.com/turnomed/scheduling-api/internal/config"
	"github.com/turnomed/scheduling-api/internal/middleware"
	redisclient "github.com/turnomed/scheduling-api/internal/redis"
	"github.com/turnomed/scheduling-api/internal/repository/postgres"
	"github.com/turnomed/scheduling-api/internal/router"
	"github.com/turnomed/scheduling-api/internal/service/availability"
	"github.com/turnomed/scheduling-api/internal/service/booking"
	"github.com/turnomed/scheduling-api/internal/service/doctor"
	"github.com/turnomed/scheduling-api/internal/service/notification"
	"github.com/turnomed/scheduling-api/internal/service/patient"
	"github.com/turnomed/scheduling-api/internal/worker"
	"github.com/turnomed/scheduling-api/pkg/clock"
	"github.com/turnomed/scheduling-api/pkg/logger"
	"github.com/turnomed/scheduling-api/pkg/metrics"
)

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

	// Redis backs the per-slot booking lock. The service still works
	// without it: the conditional occupy remains the authoritative gate.
	var locker redisclient.Locker = redisclient.NoopLocker{}
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		locker = redisclient.NewSlotLocker(redisClient, cfg.Redis.LockTTL)
	}

	slotRepo := postgres.NewSlotRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	detailRepo := postgres.NewAppointmentDetailRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	patientRepo := postgres.NewPatientRepository(db)

	clk := clock.Real()
	m := metrics.NewMetrics("turnomed", "scheduling")

	doctorSvc := doctor.NewService(doctorRepo)
	patientSvc := patient.NewService(patientRepo)
	availabilitySvc := availability.NewService(slotRepo, doctorSvc, clk)
	notifier := notification.NewService(cfg.SMTP)
	bookingSvc := booking.NewService(
		appointmentRepo,
		detailRepo,
		availabilitySvc,
		doctorSvc,
		patientSvc,
		locker,
		notifier,
		clk,
	)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT)

	r := router.NewRouter(
		authMiddleware,
		availabilityHandler.NewHandler(availabilitySvc, m),
		appointmentHandler.NewHandler(bookingSvc, m),
		healthHandler.NewHandler(db),
		router.Config{
			RateLimit:     cfg.Server.RateLimit,
			RateBurst:     cfg.Server.RateBurst,
			MetricsPrefix: "turnomed_http",
		},
	)
	r.Setup()

	// In-process sweeper. Deployments that run the standalone sweeper
	// binary instead can set the interval to 0 to disable it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sweeper.Interval > 0 {
		sweeper := worker.NewSweeper(availabilitySvc, clk, cfg.Sweeper.Interval, m)
		go sweeper.Start(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}
