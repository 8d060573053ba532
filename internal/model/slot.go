package model

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilitySlot is a doctor-published, hour-granular, claimable time
// unit. The tuple (doctor_id, year, month, day, schedule) is unique.
type AvailabilitySlot struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Year        int       `db:"year" json:"year"`
	Month       int       `db:"month" json:"month"`
	Day         int       `db:"day" json:"day"`
	Schedule    int       `db:"schedule" json:"schedule"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// DoctorName is populated on cross-doctor searches only.
	DoctorName string `db:"doctor_name" json:"doctor_name,omitempty"`
}

// Date composes the slot's calendar fields into its timestamp.
func (s *AvailabilitySlot) Date() time.Time {
	return ComposeDate(s.Year, s.Month, s.Day, s.Schedule)
}

// ComposeDate builds the timestamp implied by calendar components at
// one-hour granularity.
func ComposeDate(year, month, day, schedule int) time.Time {
	return time.Date(year, time.Month(month), day, schedule, 0, 0, 0, time.UTC)
}

type CreateSlotRequest struct {
	Year     int `json:"year" binding:"required,min=2000,max=2200"`
	Month    int `json:"month" binding:"required,min=1,max=12"`
	Day      int `json:"day" binding:"required,min=1,max=31"`
	Schedule int `json:"schedule" binding:"min=0,max=23"`
}

// SlotQuery is the resolved filter a slot listing runs with. Exact
// components win over lower bounds; a nil field is unconstrained.
type SlotQuery struct {
	DoctorID   *uuid.UUID
	Speciality *string
	Year       *int
	Month      *int
	Day        *int
	YearGte    *int
	MonthGte   *int

	// OrderByDoctor sorts by doctor display name before slot date.
	OrderByDoctor bool
}

// SlotDateFilter carries the caller-supplied, possibly partial date
// components of an availability search.
type SlotDateFilter struct {
	Year  *int
	Month *int
	Day   *int
}
