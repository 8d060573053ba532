package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/turnomed/scheduling-api/internal/model"
)

// Sentinel errors repositories translate low-level failures into.
var (
	// ErrNotFound means no row matched the queried scope.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateSlot means the (doctor, year, month, day, schedule)
	// tuple already exists.
	ErrDuplicateSlot = errors.New("availability slot already exists")
	// ErrSlotUnavailable means a conditional occupy found the slot
	// already taken or gone.
	ErrSlotUnavailable = errors.New("availability slot is not available")
	// ErrNoRowsAffected means an update that should have touched exactly
	// one row touched none.
	ErrNoRowsAffected = errors.New("no rows affected")
)

// All repository interfaces in one file
type (
	// SlotRepository owns availability slot records.
	SlotRepository interface {
		Create(ctx context.Context, slot *model.AvailabilitySlot) error
		Get(ctx context.Context, id uuid.UUID) (*model.AvailabilitySlot, error)
		// FindAvailableByID returns the slot only if it belongs to the
		// doctor and is still available.
		FindAvailableByID(ctx context.Context, id, doctorID uuid.UUID) (*model.AvailabilitySlot, error)
		List(ctx context.Context, q model.SlotQuery) ([]*model.AvailabilitySlot, error)
		// FindOccupiedAt reconstructs the slot matching an appointment's
		// recorded date when no direct reference survives.
		FindOccupiedAt(ctx context.Context, doctorID uuid.UUID, year, month, day, schedule int) (*model.AvailabilitySlot, error)
		// Occupy flips is_available to false only when it is currently
		// true; ErrSlotUnavailable otherwise.
		Occupy(ctx context.Context, id uuid.UUID) error
		Release(ctx context.Context, id uuid.UUID) error
		Delete(ctx context.Context, id, doctorID uuid.UUID) error
		// ExpireBefore flips every available slot whose composed date is
		// strictly before now to unavailable, returning the count.
		ExpireBefore(ctx context.Context, now time.Time) (int64, error)
	}

	// AppointmentRepository owns appointment records and their lifecycle.
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*model.Appointment, error)
		GetForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*model.Appointment, error)
		// onDay, when set, restricts to appointments on that civil day.
		ListForPatient(ctx context.Context, patientID uuid.UUID, onDay *time.Time, speciality *string) ([]*model.Appointment, error)
		ListForDoctor(ctx context.Context, doctorID uuid.UUID, onDay *time.Time) ([]*model.Appointment, error)
		UpdateDate(ctx context.Context, id uuid.UUID, date time.Time, slotID *uuid.UUID) error
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, updatedBy model.Actor) error
		SetSlotRef(ctx context.Context, id uuid.UUID, slotID *uuid.UUID) error
	}

	// AppointmentDetailRepository owns the 1:1 consultation metadata.
	AppointmentDetailRepository interface {
		Create(ctx context.Context, detail *model.AppointmentDetail) error
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.AppointmentDetail, error)
		UpdateNotes(ctx context.Context, appointmentID uuid.UUID, notes *string) error
	}

	DoctorRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		GetByEmail(ctx context.Context, email string) (*model.Doctor, error)
	}

	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByEmail(ctx context.Context, email string) (*model.Patient, error)
	}
)
