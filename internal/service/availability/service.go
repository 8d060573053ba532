package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/turnomed/scheduling-api/internal/model"
	"github.com/turnomed/scheduling-api/internal/repository"
	"github.com/turnomed/scheduling-api/internal/service/doctor"
	"github.com/turnomed/scheduling-api/pkg/clock"
	apperrors "github.com/turnomed/scheduling-api/pkg/errors"
)

// Service owns availability slot records: publication, lookup with
// partial date filters, exclusive claiming, release and expiration.
type Service struct {
	repo    repository.SlotRepository
	doctors *doctor.Service
	clk     clock.Clock
}

func NewService(repo repository.SlotRepository, doctors *doctor.Service, clk clock.Clock) *Service {
	return &Service{
		repo:    repo,
		doctors: doctors,
		clk:     clk,
	}
}

// Publish creates a slot for the doctor. The (doctor, date, hour) tuple
// must be unique regardless of the availability flag.
func (s *Service) Publish(ctx context.Context, doctorID uuid.UUID, req *model.CreateSlotRequest) (*model.AvailabilitySlot, error) {
	if _, err := s.doctors.FindByID(ctx, doctorID); err != nil {
		return nil, err
	}

	slot := &model.AvailabilitySlot{
		DoctorID: doctorID,
		Year:     req.Year,
		Month:    req.Month,
		Day:      req.Day,
		Schedule: req.Schedule,
	}

	if err := s.repo.Create(ctx, slot); err != nil {
		if errors.Is(err, repository.ErrDuplicateSlot) {
			return nil, apperrors.Conflict("this availability already exists", err)
		}
		return nil, apperrors.Internal(err)
	}
	return slot, nil
}

// FindForDoctor lists a doctor's own available slots under the partial
// date filter policy.
func (s *Service) FindForDoctor(ctx context.Context, doctorID uuid.UUID, filter model.SlotDateFilter) ([]*model.AvailabilitySlot, error) {
	query := s.resolveDateFilter(filter)
	query.DoctorID = &doctorID

	slots, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(slots) == 0 {
		return nil, apperrors.NotFound("schedules of availability of doctors", nil)
	}
	return slots, nil
}

// FindForPatients lists available slots across all doctors of a
// speciality, sorted by doctor display name then slot date.
func (s *Service) FindForPatients(ctx context.Context, speciality *string, filter model.SlotDateFilter) ([]*model.AvailabilitySlot, error) {
	query := s.resolveDateFilter(filter)
	query.Speciality = speciality
	query.OrderByDoctor = true

	slots, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(slots) == 0 {
		return nil, apperrors.NotFound("schedules of availability of doctors", nil)
	}
	return slots, nil
}

// ClaimForDoctor returns the slot only when it belongs to the doctor and
// is still available. The ambiguity between "absent", "foreign" and
// "taken" is deliberate: a single Conflict avoids leaking another
// doctor's slot ids.
func (s *Service) ClaimForDoctor(ctx context.Context, slotID, doctorID uuid.UUID) (*model.AvailabilitySlot, error) {
	slot, err := s.repo.FindAvailableByID(ctx, slotID, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrSlotUnavailable) {
			return nil, apperrors.Conflict("the doctor is not available at the selected time or is already scheduled", err)
		}
		return nil, apperrors.Internal(err)
	}
	return slot, nil
}

// Occupy marks the slot taken. The conditional update is the race gate:
// losing it means another booking already owns the slot.
func (s *Service) Occupy(ctx context.Context, slotID uuid.UUID) error {
	if err := s.repo.Occupy(ctx, slotID); err != nil {
		if errors.Is(err, repository.ErrSlotUnavailable) {
			return apperrors.Conflict("the doctor is not available at the selected time or is already scheduled", err)
		}
		return apperrors.Internal(err)
	}
	return nil
}

// Release flips the slot back to available.
func (s *Service) Release(ctx context.Context, slotID uuid.UUID) error {
	if err := s.repo.Release(ctx, slotID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// FindOccupiedAt reconstructs the occupied slot matching a recorded
// appointment date. Returns (nil, nil) when no slot matches; callers
// treat the release as best-effort.
func (s *Service) FindOccupiedAt(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.AvailabilitySlot, error) {
	d := date.UTC()
	slot, err := s.repo.FindOccupiedAt(ctx, doctorID, d.Year(), int(d.Month()), d.Day(), d.Hour())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.Internal(err)
	}
	return slot, nil
}

// Delete removes a slot: only the owner may delete, only future slots,
// only while still unclaimed.
func (s *Service) Delete(ctx context.Context, slotID, doctorID uuid.UUID) error {
	slot, err := s.repo.Get(ctx, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("availability for the doctor", err)
		}
		return apperrors.Internal(err)
	}
	if slot.DoctorID != doctorID {
		return apperrors.NotFound("availability for the doctor", nil)
	}

	if slot.Date().Before(s.clk.Now().UTC()) {
		return apperrors.BadRequest("cannot delete past availabilities", nil)
	}
	if !slot.IsAvailable {
		return apperrors.Conflict("cannot delete a scheduled availability", nil)
	}

	if err := s.repo.Delete(ctx, slotID, doctorID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// ExpireStale flips every unclaimed slot dated strictly before now.
// Idempotent: a second pass with the same now matches nothing.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpireBefore(ctx, now)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	return count, nil
}

// resolveDateFilter applies the partial-specificity policy: omitted
// year/month default to lower bounds at the current period so past
// availability never leaks in, and day pins to today only when the
// filter targets the current year and month exactly.
func (s *Service) resolveDateFilter(filter model.SlotDateFilter) model.SlotQuery {
	now := s.clk.Now().UTC()
	currentYear := now.Year()
	currentMonth := int(now.Month())
	currentDay := now.Day()

	query := model.SlotQuery{
		Year:  filter.Year,
		Month: filter.Month,
		Day:   filter.Day,
	}

	if filter.Year == nil {
		query.YearGte = &currentYear
	}
	if filter.Month == nil && filter.Year != nil && *filter.Year == currentYear {
		query.MonthGte = &currentMonth
	}
	if filter.Day == nil &&
		filter.Year != nil && *filter.Year == currentYear &&
		filter.Month != nil && *filter.Month == currentMonth {
		query.Day = &currentDay
	}

	return query
}
