package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/turnomed/scheduling-api/internal/service/availability"
	"github.com/turnomed/scheduling-api/pkg/clock"
	"github.com/turnomed/scheduling-api/pkg/metrics"
)

// Sweeper periodically expires unclaimed past-dated availability slots
// so they vanish from listings without ever touching occupied slots.
// Each pass is idempotent: re-running with the same now matches nothing.
type Sweeper struct {
	slots    *availability.Service
	clk      clock.Clock
	interval time.Duration
	metrics  *metrics.Metrics
}

func NewSweeper(slots *availability.Service, clk clock.Clock, interval time.Duration, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		slots:    slots,
		clk:      clk,
		interval: interval,
		metrics:  m,
	}
}

// Start runs one pass immediately, then ticks until the context is
// canceled.
func (s *Sweeper) Start(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single expiration pass. Zero matches is a normal
// outcome, not an error.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := s.clk.Now()

	count, err := s.slots.ExpireStale(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("availability expiration pass failed")
		return
	}

	if s.metrics != nil {
		s.metrics.SweeperRuns.Inc()
		s.metrics.SweeperLastSwept.Set(float64(count))
		s.metrics.SlotsExpired.Add(float64(count))
	}

	log.Info().Int64("expired", count).Time("now", now).Msg("availabilities marked as expired")
}
