package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnomed/scheduling-api/internal/model"
	"github.com/turnomed/scheduling-api/internal/repository/memory"
	"github.com/turnomed/scheduling-api/internal/service/availability"
	"github.com/turnomed/scheduling-api/internal/service/doctor"
	"github.com/turnomed/scheduling-api/internal/worker"
	"github.com/turnomed/scheduling-api/pkg/clock"
)

func TestSweeperRunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	store := memory.NewStore()
	doc := &model.Doctor{Name: "Dr. Vega", Email: "vega@clinic.test", Speciality: "cardiology"}
	store.AddDoctor(doc)

	clk := clock.NewManual(now)
	slots := availability.NewService(store.Slots(), doctor.NewService(store.Doctors()), clk)

	stale, err := slots.Publish(ctx, doc.ID, &model.CreateSlotRequest{Year: 2026, Month: 8, Day: 20, Schedule: 10})
	require.NoError(t, err)
	fresh, err := slots.Publish(ctx, doc.ID, &model.CreateSlotRequest{Year: 2026, Month: 9, Day: 20, Schedule: 10})
	require.NoError(t, err)

	sweeper := worker.NewSweeper(slots, clk, time.Hour, nil)
	sweeper.RunOnce(ctx)

	got, err := store.Slots().Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)

	got, err = store.Slots().Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)

	// The fresh slot expires once the clock passes it.
	clk.Set(time.Date(2026, 9, 20, 11, 0, 0, 0, time.UTC))
	sweeper.RunOnce(ctx)

	got, err = store.Slots().Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)
}

func TestSweeperStartStopsOnCancel(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	store := memory.NewStore()
	clk := clock.NewManual(now)
	slots := availability.NewService(store.Slots(), doctor.NewService(store.Doctors()), clk)

	sweeper := worker.NewSweeper(slots, clk, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
