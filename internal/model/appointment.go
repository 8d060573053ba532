package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCanceled  AppointmentStatus = "canceled"
)

// ParseAppointmentStatus validates a caller-supplied status string.
func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	switch AppointmentStatus(s) {
	case AppointmentStatusScheduled, AppointmentStatusCompleted, AppointmentStatusCanceled:
		return AppointmentStatus(s), true
	}
	return "", false
}

// IsTerminal reports whether no transition may leave the status.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCanceled
}

// CanTransitionTo reports whether the status machine permits s -> next.
// Scheduled is the only non-terminal state; completed and canceled are
// absorbing.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	if s != AppointmentStatusScheduled {
		return false
	}
	return next == AppointmentStatusCompleted || next == AppointmentStatusCanceled
}

// Actor identifies who last mutated an appointment.
type Actor string

const (
	ActorNone    Actor = "none"
	ActorPatient Actor = "patient"
	ActorDoctor  Actor = "doctor"
)

type Appointment struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	DoctorID        uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	AppointmentDate time.Time         `db:"appointment_date" json:"appointment_date"`
	Status          AppointmentStatus `db:"status" json:"status"`
	UpdatedBy       Actor             `db:"updated_by" json:"updated_by"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`

	// SlotID references the availability slot the appointment currently
	// occupies; nulled when the slot is released.
	SlotID *uuid.UUID `db:"slot_id" json:"slot_id,omitempty"`

	// Joined display fields, populated on list/get queries.
	DoctorName       string `db:"doctor_name" json:"doctor_name,omitempty"`
	DoctorSpeciality string `db:"doctor_speciality" json:"doctor_speciality,omitempty"`
	PatientName      string `db:"patient_name" json:"patient_name,omitempty"`
}

// AppointmentDetail is the free-text consultation record attached 1:1 to
// an appointment. Created with it, mutated only on doctor status updates.
type AppointmentDetail struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	AppointmentID      uuid.UUID `db:"appointment_id" json:"appointment_id"`
	ReasonConsultation *string   `db:"reason_consultation" json:"reason_consultation,omitempty"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// AppointmentFilter narrows role-scoped appointment listings. Speciality
// only applies to patient listings.
type AppointmentFilter struct {
	Year       *int
	Month      *int
	Day        *int
	Speciality *string
}

type BookAppointmentRequest struct {
	DoctorID           uuid.UUID `json:"doctor_id" binding:"required"`
	AvailabilityID     uuid.UUID `json:"availability_id" binding:"required"`
	ReasonConsultation string    `json:"reason_consultation" binding:"max=500"`
}

type RescheduleAppointmentRequest struct {
	AvailabilityID uuid.UUID `json:"availability_id" binding:"required"`
}

type UpdateAppointmentStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes" binding:"max=2000"`
}
