package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/turnomed/scheduling-api/internal/model"
	redisclient "github.com/turnomed/scheduling-api/internal/redis"
	"github.com/turnomed/scheduling-api/internal/repository"
	"github.com/turnomed/scheduling-api/internal/service/availability"
	"github.com/turnomed/scheduling-api/internal/service/doctor"
	"github.com/turnomed/scheduling-api/internal/service/notification"
	"github.com/turnomed/scheduling-api/internal/service/patient"
	"github.com/turnomed/scheduling-api/pkg/clock"
	apperrors "github.com/turnomed/scheduling-api/pkg/errors"
)

// Service is the booking orchestrator: the only writer spanning the slot
// store, the appointment ledger and the detail store. It sequences their
// calls; the documented step order is a contract because later steps
// depend on earlier side effects.
type Service struct {
	appointments repository.AppointmentRepository
	details      repository.AppointmentDetailRepository
	slots        *availability.Service
	doctors      *doctor.Service
	patients     *patient.Service
	locker       redisclient.Locker
	notifier     notification.Service
	clk          clock.Clock
}

func NewService(
	appointments repository.AppointmentRepository,
	details repository.AppointmentDetailRepository,
	slots *availability.Service,
	doctors *doctor.Service,
	patients *patient.Service,
	locker redisclient.Locker,
	notifier notification.Service,
	clk clock.Clock,
) *Service {
	return &Service{
		appointments: appointments,
		details:      details,
		slots:        slots,
		doctors:      doctors,
		patients:     patients,
		locker:       locker,
		notifier:     notifier,
		clk:          clk,
	}
}

// StatusResult carries the message-plus-appointment payload of cancel
// and status update operations.
type StatusResult struct {
	Message     string             `json:"message"`
	Appointment *model.Appointment `json:"appointment"`
}

// Book claims the slot exclusively for the doctor, verifies both
// identities, then materializes the (appointment, detail, occupied slot)
// triple. The conditional occupy is the claim itself and runs before
// any other write: a lost race leaves nothing behind to clean up, so
// slot exclusivity holds even without the per-slot lock.
func (s *Service) Book(ctx context.Context, doctorID, patientID, slotID uuid.UUID, reason string) (*model.Appointment, error) {
	var appointment *model.Appointment

	err := s.locker.WithSlotLock(ctx, slotID, func(ctx context.Context) error {
		slot, err := s.slots.ClaimForDoctor(ctx, slotID, doctorID)
		if err != nil {
			return err
		}

		pat, err := s.patients.FindByID(ctx, patientID)
		if err != nil {
			return err
		}
		doc, err := s.doctors.FindByID(ctx, doctorID)
		if err != nil {
			return err
		}

		if err := s.slots.Occupy(ctx, slot.ID); err != nil {
			return err
		}

		appointment = &model.Appointment{
			DoctorID:        doctorID,
			PatientID:       patientID,
			SlotID:          &slot.ID,
			AppointmentDate: slot.Date(),
			Status:          model.AppointmentStatusScheduled,
			UpdatedBy:       model.ActorNone,
		}
		if err := s.appointments.Create(ctx, appointment); err != nil {
			s.unwindBooking(ctx, slot.ID, nil)
			return apperrors.Internal(err)
		}

		detail := &model.AppointmentDetail{
			AppointmentID:      appointment.ID,
			ReasonConsultation: optional(reason),
		}
		if err := s.details.Create(ctx, detail); err != nil {
			s.unwindBooking(ctx, slot.ID, appointment)
			return apperrors.Internal(err)
		}

		go s.notifier.AppointmentBooked(appointment, pat, doc)
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, apperrors.Conflict("the slot is being booked by another request", err)
		}
		return nil, err
	}

	return appointment, nil
}

// Reschedule moves a scheduled appointment to a new slot of the same
// doctor. The old slot is released best-effort: it may already have been
// deleted or expired.
func (s *Service) Reschedule(ctx context.Context, appointmentID, patientID, newSlotID uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.appointments.GetForPatient(ctx, appointmentID, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment for this patient", err)
		}
		return nil, apperrors.Internal(err)
	}

	if appointment.AppointmentDate.Before(s.clk.Now().UTC()) {
		return nil, apperrors.Conflict("cannot reschedule an appointment that has already elapsed", nil)
	}

	err = s.locker.WithSlotLock(ctx, newSlotID, func(ctx context.Context) error {
		slot, err := s.slots.ClaimForDoctor(ctx, newSlotID, appointment.DoctorID)
		if err != nil {
			return err
		}

		// Take the new slot before letting go of anything. Losing the
		// race here leaves the appointment exactly as it was.
		if err := s.slots.Occupy(ctx, slot.ID); err != nil {
			return err
		}

		prev := *appointment
		newDate := slot.Date()
		if err := s.appointments.UpdateDate(ctx, appointment.ID, newDate, &slot.ID); err != nil {
			s.unwindBooking(ctx, slot.ID, nil)
			return apperrors.Internal(err)
		}
		appointment.AppointmentDate = newDate
		appointment.SlotID = &slot.ID

		// The reference already points at the new slot, so the old one
		// only needs releasing.
		s.releaseFormerSlot(ctx, &prev)
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, apperrors.Conflict("the slot is being booked by another request", err)
		}
		return nil, err
	}

	return appointment, nil
}

// Cancel moves a scheduled, still-future appointment to canceled and
// gives the slot back.
func (s *Service) Cancel(ctx context.Context, appointmentID, patientID uuid.UUID, actor model.Actor) (*StatusResult, error) {
	appointment, err := s.appointments.GetForPatient(ctx, appointmentID, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment for this patient", err)
		}
		return nil, apperrors.Internal(err)
	}

	if appointment.Status != model.AppointmentStatusScheduled {
		return nil, apperrors.Conflict("only scheduled appointments can be canceled", nil)
	}

	now := s.clk.Now().UTC()
	if appointment.AppointmentDate.Before(now) {
		return nil, apperrors.Conflict("past or ongoing appointments cannot be canceled", nil)
	}

	if err := s.appointments.UpdateStatus(ctx, appointment.ID, model.AppointmentStatusCanceled, actor); err != nil {
		return nil, apperrors.Internal(err)
	}
	appointment.Status = model.AppointmentStatusCanceled
	appointment.UpdatedBy = actor

	if appointment.AppointmentDate.After(now) {
		s.releaseHeldSlot(ctx, appointment)
	}

	if pat, err := s.patients.FindByID(ctx, appointment.PatientID); err == nil {
		go s.notifier.AppointmentCanceled(appointment, pat)
	}

	return &StatusResult{
		Message:     "appointment cancelled successfully",
		Appointment: appointment,
	}, nil
}

// UpdateStatus is the doctor-driven closure path: complete or cancel,
// never (re)schedule. Ownership is checked after fetch.
func (s *Service) UpdateStatus(ctx context.Context, appointmentID, doctorID uuid.UUID, statusInput, notes string) (*StatusResult, error) {
	status, ok := model.ParseAppointmentStatus(statusInput)
	if !ok {
		return nil, apperrors.BadRequest("invalid appointment status", nil)
	}
	if status == model.AppointmentStatusScheduled {
		return nil, apperrors.BadRequest("as a doctor you cannot schedule appointments directly", nil)
	}

	appointment, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, apperrors.Internal(err)
	}

	if appointment.DoctorID != doctorID {
		return nil, apperrors.BadRequest("you are not authorized to update this appointment", nil)
	}

	if !appointment.Status.CanTransitionTo(status) {
		return nil, apperrors.Conflict("only scheduled appointments can be updated", nil)
	}

	if status == model.AppointmentStatusCanceled && appointment.AppointmentDate.After(s.clk.Now().UTC()) {
		s.releaseHeldSlot(ctx, appointment)
	}

	if err := s.appointments.UpdateStatus(ctx, appointment.ID, status, model.ActorDoctor); err != nil {
		return nil, apperrors.Internal(err)
	}
	appointment.Status = status
	appointment.UpdatedBy = model.ActorDoctor

	// An empty submission keeps whatever notes were saved before.
	if notes != "" {
		if err := s.details.UpdateNotes(ctx, appointment.ID, &notes); err != nil {
			return nil, apperrors.Internal(err)
		}
	}

	return &StatusResult{
		Message:     "appointment updated successfully",
		Appointment: appointment,
	}, nil
}

// ListForPatient returns the patient's appointments, chronologically
// ascending, optionally narrowed to one civil day and a speciality.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	onDay := s.resolveDay(filter)
	appointments, err := s.appointments.ListForPatient(ctx, patientID, onDay, filter.Speciality)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(appointments) == 0 {
		return nil, apperrors.NotFound("appointments for this patient", nil)
	}
	return appointments, nil
}

// ListForDoctor returns the doctor's appointments, chronologically
// ascending.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	onDay := s.resolveDay(filter)
	appointments, err := s.appointments.ListForDoctor(ctx, doctorID, onDay)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(appointments) == 0 {
		return nil, apperrors.NotFound("appointments for this doctor", nil)
	}
	return appointments, nil
}

// GetForPatient is a scoped single lookup: both id and owner must match.
func (s *Service) GetForPatient(ctx context.Context, appointmentID, patientID uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.appointments.GetForPatient(ctx, appointmentID, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment for this patient", err)
		}
		return nil, apperrors.Internal(err)
	}
	return appointment, nil
}

// GetForDoctor is the doctor-scoped single lookup.
func (s *Service) GetForDoctor(ctx context.Context, appointmentID, doctorID uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.appointments.GetForDoctor(ctx, appointmentID, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment for this doctor", err)
		}
		return nil, apperrors.Internal(err)
	}
	return appointment, nil
}

// releaseHeldSlot gives an appointment's slot back to the pool and
// clears the reference, best-effort. Failures are logged, never fatal:
// the slot may legitimately be gone.
func (s *Service) releaseHeldSlot(ctx context.Context, appointment *model.Appointment) {
	if !s.releaseFormerSlot(ctx, appointment) {
		return
	}

	if err := s.appointments.SetSlotRef(ctx, appointment.ID, nil); err != nil {
		log.Error().Err(err).
			Str("appointment_id", appointment.ID.String()).
			Msg("failed to clear slot reference")
		return
	}
	appointment.SlotID = nil
}

// releaseFormerSlot returns the slot an appointment held without
// touching its reference. The direct reference is tried first;
// reconstruction by recorded date covers appointments that predate the
// reference or whose slot was swapped underneath them.
func (s *Service) releaseFormerSlot(ctx context.Context, appointment *model.Appointment) bool {
	slotID := appointment.SlotID
	if slotID == nil {
		slot, err := s.slots.FindOccupiedAt(ctx, appointment.DoctorID, appointment.AppointmentDate)
		if err != nil || slot == nil {
			return false
		}
		slotID = &slot.ID
	}

	if err := s.slots.Release(ctx, *slotID); err != nil {
		log.Error().Err(err).
			Str("appointment_id", appointment.ID.String()).
			Str("slot_id", slotID.String()).
			Msg("failed to release slot")
		return false
	}
	return true
}

// unwindBooking undoes a half-materialized booking after a write
// failure behind a won occupy: the slot goes back to the pool and the
// appointment, when one was already created, is voided. Best-effort,
// failures are logged.
func (s *Service) unwindBooking(ctx context.Context, slotID uuid.UUID, appointment *model.Appointment) {
	if err := s.slots.Release(ctx, slotID); err != nil {
		log.Error().Err(err).
			Str("slot_id", slotID.String()).
			Msg("failed to release slot while unwinding booking")
	}
	if appointment == nil {
		return
	}
	if err := s.appointments.SetSlotRef(ctx, appointment.ID, nil); err != nil {
		log.Error().Err(err).
			Str("appointment_id", appointment.ID.String()).
			Msg("failed to clear slot reference while unwinding booking")
	}
	if err := s.appointments.UpdateStatus(ctx, appointment.ID, model.AppointmentStatusCanceled, model.ActorNone); err != nil {
		log.Error().Err(err).
			Str("appointment_id", appointment.ID.String()).
			Msg("failed to void appointment while unwinding booking")
	}
}

// resolveDay composes the civil day an appointment listing filters on;
// components the caller omits default to the current ones.
func (s *Service) resolveDay(filter model.AppointmentFilter) *time.Time {
	if filter.Year == nil && filter.Month == nil && filter.Day == nil {
		return nil
	}

	now := s.clk.Now().UTC()
	year := now.Year()
	month := int(now.Month())
	day := now.Day()

	if filter.Year != nil {
		year = *filter.Year
	}
	if filter.Month != nil {
		month = *filter.Month
	}
	if filter.Day != nil {
		day = *filter.Day
	}

	onDay := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &onDay
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
