package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnomed/scheduling-api/internal/model"
	redisclient "github.com/turnomed/scheduling-api/internal/redis"
	"github.com/turnomed/scheduling-api/internal/repository"
	"github.com/turnomed/scheduling-api/internal/repository/memory"
	"github.com/turnomed/scheduling-api/internal/service/availability"
	"github.com/turnomed/scheduling-api/internal/service/booking"
	"github.com/turnomed/scheduling-api/internal/service/doctor"
	"github.com/turnomed/scheduling-api/internal/service/notification"
	"github.com/turnomed/scheduling-api/internal/service/patient"
	"github.com/turnomed/scheduling-api/pkg/clock"
	apperrors "github.com/turnomed/scheduling-api/pkg/errors"
)

type fixture struct {
	svc     *booking.Service
	slots   *availability.Service
	store   *memory.Store
	clk     *clock.Manual
	doctor  *model.Doctor
	patient *model.Patient
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	return newFixtureWithLocker(t, now, redisclient.NoopLocker{})
}

func newFixtureWithLocker(t *testing.T, now time.Time, locker redisclient.Locker) *fixture {
	t.Helper()

	store := memory.NewStore()
	clk := clock.NewManual(now)

	doc := &model.Doctor{Name: "Dr. Vega", Email: "vega@clinic.test", Speciality: "cardiology"}
	store.AddDoctor(doc)
	pat := &model.Patient{Name: "Ana Rios", Email: "ana@mail.test"}
	store.AddPatient(pat)

	doctors := doctor.NewService(store.Doctors())
	patients := patient.NewService(store.Patients())
	slots := availability.NewService(store.Slots(), doctors, clk)

	svc := booking.NewService(
		store.Appointments(),
		store.Details(),
		slots,
		doctors,
		patients,
		locker,
		notification.NewNoop(),
		clk,
	)

	return &fixture{
		svc:     svc,
		slots:   slots,
		store:   store,
		clk:     clk,
		doctor:  doc,
		patient: pat,
	}
}

func (f *fixture) publish(t *testing.T, year, month, day, schedule int) *model.AvailabilitySlot {
	t.Helper()
	slot, err := f.slots.Publish(context.Background(), f.doctor.ID, &model.CreateSlotRequest{
		Year: year, Month: month, Day: day, Schedule: schedule,
	})
	require.NoError(t, err)
	return slot
}

func TestBook(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)

	appointment, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "chest pain")
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, appointment.Status)
	assert.Equal(t, model.ActorNone, appointment.UpdatedBy)
	assert.Equal(t, time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC), appointment.AppointmentDate)
	require.NotNil(t, appointment.SlotID)
	assert.Equal(t, slot.ID, *appointment.SlotID)

	detail, err := f.store.Details().GetByAppointment(ctx, appointment.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.ReasonConsultation)
	assert.Equal(t, "chest pain", *detail.ReasonConsultation)
	assert.Nil(t, detail.Notes)

	// The slot is gone from the pool.
	stored, err := f.store.Slots().Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsAvailable)

	_, err = f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestBookUnknownPatientLeavesSlotFree(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)

	_, err := f.svc.Book(ctx, f.doctor.ID, uuid.New(), slot.ID, "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	stored, err := f.store.Slots().Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAvailable)
}

type blockedLocker struct{}

func (blockedLocker) WithSlotLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestBookLockContention(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixtureWithLocker(t, now, blockedLocker{})

	slot := f.publish(t, 2026, 9, 10, 14)

	_, err := f.svc.Book(context.Background(), f.doctor.ID, f.patient.ID, slot.ID, "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

// rendezvousSlots holds every FindAvailableByID caller at a barrier
// until all expected readers have arrived, so concurrent bookings see
// the same free slot before either tries to occupy it.
type rendezvousSlots struct {
	repository.SlotRepository
	readers *sync.WaitGroup
}

func (r *rendezvousSlots) FindAvailableByID(ctx context.Context, id, doctorID uuid.UUID) (*model.AvailabilitySlot, error) {
	slot, err := r.SlotRepository.FindAvailableByID(ctx, id, doctorID)
	r.readers.Done()
	r.readers.Wait()
	return slot, err
}

func TestBookConcurrentWithoutLockKeepsSlotExclusive(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	store := memory.NewStore()
	clk := clock.NewManual(now)

	doc := &model.Doctor{Name: "Dr. Vega", Email: "vega@clinic.test", Speciality: "cardiology"}
	store.AddDoctor(doc)
	patA := &model.Patient{Name: "Ana Rios", Email: "ana@mail.test"}
	store.AddPatient(patA)
	patB := &model.Patient{Name: "Bruno Sol", Email: "bruno@mail.test"}
	store.AddPatient(patB)

	var readers sync.WaitGroup
	readers.Add(2)
	slotRepo := &rendezvousSlots{SlotRepository: store.Slots(), readers: &readers}

	doctors := doctor.NewService(store.Doctors())
	patients := patient.NewService(store.Patients())
	slots := availability.NewService(slotRepo, doctors, clk)
	svc := booking.NewService(
		store.Appointments(),
		store.Details(),
		slots,
		doctors,
		patients,
		redisclient.NoopLocker{},
		notification.NewNoop(),
		clk,
	)

	slot, err := slots.Publish(ctx, doc.ID, &model.CreateSlotRequest{
		Year: 2026, Month: 9, Day: 10, Schedule: 14,
	})
	require.NoError(t, err)

	type outcome struct {
		appointment *model.Appointment
		err         error
	}
	outcomes := make(chan outcome, 2)
	for _, p := range []*model.Patient{patA, patB} {
		go func(p *model.Patient) {
			a, err := svc.Book(ctx, doc.ID, p.ID, slot.ID, "")
			outcomes <- outcome{appointment: a, err: err}
		}(p)
	}

	var winner *model.Appointment
	var loserErr error
	for i := 0; i < 2; i++ {
		o := <-outcomes
		if o.err == nil {
			require.Nil(t, winner, "both bookings won the same slot")
			winner = o.appointment
		} else {
			loserErr = o.err
		}
	}

	require.NotNil(t, winner)
	require.Error(t, loserErr)
	assert.True(t, apperrors.IsCode(loserErr, apperrors.ErrConflict))

	// The loser left nothing behind: one appointment total, scheduled,
	// holding the slot.
	all, err := svc.ListForDoctor(ctx, doc.ID, model.AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, winner.ID, all[0].ID)
	assert.Equal(t, model.AppointmentStatusScheduled, all[0].Status)

	stored, err := store.Slots().Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsAvailable)
}

func TestCancelRestoresSlot(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)
	appointment, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "")
	require.NoError(t, err)

	result, err := f.svc.Cancel(ctx, appointment.ID, f.patient.ID, model.ActorPatient)
	require.NoError(t, err)
	assert.Equal(t, "appointment cancelled successfully", result.Message)
	assert.Equal(t, model.AppointmentStatusCanceled, result.Appointment.Status)
	assert.Equal(t, model.ActorPatient, result.Appointment.UpdatedBy)
	assert.Nil(t, result.Appointment.SlotID)

	stored, err := f.store.Slots().Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAvailable)

	// Absorbing state: a second cancel is refused.
	_, err = f.svc.Cancel(ctx, appointment.ID, f.patient.ID, model.ActorPatient)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestCancelGuards(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)
	appointment, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, appointment.ID, uuid.New(), model.ActorPatient)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	f.clk.Set(time.Date(2026, 9, 10, 15, 0, 0, 0, time.UTC))
	_, err = f.svc.Cancel(ctx, appointment.ID, f.patient.ID, model.ActorPatient)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestReschedule(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	oldSlot := f.publish(t, 2026, 9, 10, 14)
	newSlot := f.publish(t, 2026, 9, 12, 9)

	appointment, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, oldSlot.ID, "")
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(ctx, appointment.ID, f.patient.ID, newSlot.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 12, 9, 0, 0, 0, time.UTC), moved.AppointmentDate)
	require.NotNil(t, moved.SlotID)
	assert.Equal(t, newSlot.ID, *moved.SlotID)

	// Old slot back in the pool, new one taken.
	old, err := f.store.Slots().Get(ctx, oldSlot.ID)
	require.NoError(t, err)
	assert.True(t, old.IsAvailable)

	taken, err := f.store.Slots().Get(ctx, newSlot.ID)
	require.NoError(t, err)
	assert.False(t, taken.IsAvailable)
}

func TestRescheduleGuards(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)
	target := f.publish(t, 2026, 9, 12, 9)

	appointment, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, uuid.New(), f.patient.ID, target.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	// Claiming an occupied target fails and leaves the appointment alone.
	require.NoError(t, f.slots.Occupy(ctx, target.ID))
	_, err = f.svc.Reschedule(ctx, appointment.ID, f.patient.ID, target.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))

	unchanged, err := f.svc.GetForPatient(ctx, appointment.ID, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.AppointmentDate, unchanged.AppointmentDate)

	// Once the appointment has elapsed nothing can move it.
	f.clk.Set(time.Date(2026, 9, 10, 15, 0, 0, 0, time.UTC))
	_, err = f.svc.Reschedule(ctx, appointment.ID, f.patient.ID, target.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestUpdateStatusComplete(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)
	appointment, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "")
	require.NoError(t, err)

	f.clk.Set(time.Date(2026, 9, 10, 15, 0, 0, 0, time.UTC))

	result, err := f.svc.UpdateStatus(ctx, appointment.ID, f.doctor.ID, "completed", "follow up in two weeks")
	require.NoError(t, err)
	assert.Equal(t, "appointment updated successfully", result.Message)
	assert.Equal(t, model.AppointmentStatusCompleted, result.Appointment.Status)
	assert.Equal(t, model.ActorDoctor, result.Appointment.UpdatedBy)

	detail, err := f.store.Details().GetByAppointment(ctx, appointment.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Notes)
	assert.Equal(t, "follow up in two weeks", *detail.Notes)

	// Completion keeps the slot occupied.
	stored, err := f.store.Slots().Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsAvailable)

	_, err = f.svc.UpdateStatus(ctx, appointment.ID, f.doctor.ID, "canceled", "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestUpdateStatusGuards(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)
	appointment, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, appointment.ID, f.doctor.ID, "postponed", "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))

	_, err = f.svc.UpdateStatus(ctx, appointment.ID, f.doctor.ID, "scheduled", "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))

	_, err = f.svc.UpdateStatus(ctx, appointment.ID, uuid.New(), "completed", "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))

	_, err = f.svc.UpdateStatus(ctx, uuid.New(), f.doctor.ID, "completed", "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestUpdateStatusDoctorCancelReleasesSlot(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)
	appointment, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "")
	require.NoError(t, err)

	result, err := f.svc.UpdateStatus(ctx, appointment.ID, f.doctor.ID, "canceled", "doctor unavailable")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCanceled, result.Appointment.Status)

	stored, err := f.store.Slots().Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAvailable)
}

func TestUpdateStatusEmptyNotesKeepsExisting(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)
	appointment, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "chest pain")
	require.NoError(t, err)

	earlier := "preliminary observations"
	require.NoError(t, f.store.Details().UpdateNotes(ctx, appointment.ID, &earlier))

	_, err = f.svc.UpdateStatus(ctx, appointment.ID, f.doctor.ID, "completed", "")
	require.NoError(t, err)

	detail, err := f.store.Details().GetByAppointment(ctx, appointment.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Notes)
	assert.Equal(t, "preliminary observations", *detail.Notes)
	require.NotNil(t, detail.ReasonConsultation)
	assert.Equal(t, "chest pain", *detail.ReasonConsultation)
}

func TestListForPatient(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	first := f.publish(t, 2026, 9, 10, 14)
	second := f.publish(t, 2026, 9, 12, 9)

	a1, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, first.ID, "")
	require.NoError(t, err)
	a2, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, second.ID, "")
	require.NoError(t, err)

	appointments, err := f.svc.ListForPatient(ctx, f.patient.ID, model.AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, appointments, 2)
	assert.Equal(t, a1.ID, appointments[0].ID)
	assert.Equal(t, a2.ID, appointments[1].ID)
	assert.Equal(t, "Dr. Vega", appointments[0].DoctorName)
	assert.Equal(t, "cardiology", appointments[0].DoctorSpeciality)

	year, month, day := 2026, 9, 12
	appointments, err = f.svc.ListForPatient(ctx, f.patient.ID, model.AppointmentFilter{
		Year: &year, Month: &month, Day: &day,
	})
	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.Equal(t, a2.ID, appointments[0].ID)

	speciality := "dermatology"
	_, err = f.svc.ListForPatient(ctx, f.patient.ID, model.AppointmentFilter{Speciality: &speciality})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	_, err = f.svc.ListForPatient(ctx, uuid.New(), model.AppointmentFilter{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestListForDoctor(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	slot := f.publish(t, 2026, 9, 10, 14)
	_, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, slot.ID, "")
	require.NoError(t, err)

	appointments, err := f.svc.ListForDoctor(ctx, f.doctor.ID, model.AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.Equal(t, "Ana Rios", appointments[0].PatientName)

	// Day components default to today when partially given.
	day := 10
	appointments, err = f.svc.ListForDoctor(ctx, f.doctor.ID, model.AppointmentFilter{Day: &day})
	require.NoError(t, err)
	assert.Len(t, appointments, 1)

	day = 11
	_, err = f.svc.ListForDoctor(ctx, f.doctor.ID, model.AppointmentFilter{Day: &day})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
