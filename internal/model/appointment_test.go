package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turnomed/scheduling-api/internal/model"
)

func TestParseAppointmentStatus(t *testing.T) {
	for _, valid := range []string{"scheduled", "completed", "canceled"} {
		status, ok := model.ParseAppointmentStatus(valid)
		assert.True(t, ok)
		assert.Equal(t, model.AppointmentStatus(valid), status)
	}

	for _, invalid := range []string{"", "Scheduled", "cancelled", "done"} {
		_, ok := model.ParseAppointmentStatus(invalid)
		assert.False(t, ok, "expected %q to be rejected", invalid)
	}
}

func TestStatusTransitions(t *testing.T) {
	scheduled := model.AppointmentStatusScheduled
	completed := model.AppointmentStatusCompleted
	canceled := model.AppointmentStatusCanceled

	assert.True(t, scheduled.CanTransitionTo(completed))
	assert.True(t, scheduled.CanTransitionTo(canceled))
	assert.False(t, scheduled.CanTransitionTo(scheduled))

	// Terminal states absorb everything.
	for _, terminal := range []model.AppointmentStatus{completed, canceled} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []model.AppointmentStatus{scheduled, completed, canceled} {
			assert.False(t, terminal.CanTransitionTo(next))
		}
	}
	assert.False(t, scheduled.IsTerminal())
}

func TestComposeDate(t *testing.T) {
	got := model.ComposeDate(2026, 2, 28, 23)
	assert.Equal(t, time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestSlotDate(t *testing.T) {
	slot := model.AvailabilitySlot{Year: 2026, Month: 9, Day: 10, Schedule: 14}
	assert.Equal(t, time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC), slot.Date())
}
