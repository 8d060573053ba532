package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/turnomed/scheduling-api/internal/model"
	"github.com/turnomed/scheduling-api/internal/repository"
)

const uniqueViolation = "23505"

func (r *slotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	query := `
		INSERT INTO availability_slots (
			id, doctor_id, year, month, day, schedule,
			is_available, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	slot.ID = uuid.New()
	slot.IsAvailable = true
	slot.CreatedAt = time.Now()
	slot.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		slot.ID,
		slot.DoctorID,
		slot.Year,
		slot.Month,
		slot.Day,
		slot.Schedule,
		slot.IsAvailable,
		slot.CreatedAt,
		slot.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrDuplicateSlot
		}
		return fmt.Errorf("failed to create availability slot: %w", err)
	}
	return nil
}

func (r *slotRepository) Get(ctx context.Context, id uuid.UUID) (*model.AvailabilitySlot, error) {
	query := `
		SELECT id, doctor_id, year, month, day, schedule,
			   is_available, created_at, updated_at
		FROM availability_slots
		WHERE id = $1
	`
	var slot model.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get availability slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) FindAvailableByID(ctx context.Context, id, doctorID uuid.UUID) (*model.AvailabilitySlot, error) {
	query := `
		SELECT id, doctor_id, year, month, day, schedule,
			   is_available, created_at, updated_at
		FROM availability_slots
		WHERE id = $1 AND doctor_id = $2 AND is_available = true
	`
	var slot model.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id, doctorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrSlotUnavailable
		}
		return nil, fmt.Errorf("failed to find available slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) List(ctx context.Context, q model.SlotQuery) ([]*model.AvailabilitySlot, error) {
	query := `
		SELECT s.id, s.doctor_id, s.year, s.month, s.day, s.schedule,
			   s.is_available, s.created_at, s.updated_at, d.name AS doctor_name
		FROM availability_slots s
		JOIN doctors d ON d.id = s.doctor_id
		WHERE s.is_available = true
	`
	args := []interface{}{}
	argCount := 1

	add := func(clause string, value interface{}) {
		query += fmt.Sprintf(" AND "+clause, argCount)
		args = append(args, value)
		argCount++
	}

	if q.DoctorID != nil {
		add("s.doctor_id = $%d", *q.DoctorID)
	}
	if q.Speciality != nil {
		add("d.speciality = $%d", *q.Speciality)
	}
	if q.Year != nil {
		add("s.year = $%d", *q.Year)
	} else if q.YearGte != nil {
		add("s.year >= $%d", *q.YearGte)
	}
	if q.Month != nil {
		add("s.month = $%d", *q.Month)
	} else if q.MonthGte != nil {
		add("s.month >= $%d", *q.MonthGte)
	}
	if q.Day != nil {
		add("s.day = $%d", *q.Day)
	}

	if q.OrderByDoctor {
		query += " ORDER BY d.name ASC, s.year ASC, s.month ASC, s.day ASC, s.schedule ASC"
	} else {
		query += " ORDER BY s.year ASC, s.month ASC, s.day ASC, s.schedule ASC"
	}

	var slots []*model.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list availability slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) FindOccupiedAt(ctx context.Context, doctorID uuid.UUID, year, month, day, schedule int) (*model.AvailabilitySlot, error) {
	query := `
		SELECT id, doctor_id, year, month, day, schedule,
			   is_available, created_at, updated_at
		FROM availability_slots
		WHERE doctor_id = $1 AND year = $2 AND month = $3
		  AND day = $4 AND schedule = $5 AND is_available = false
	`
	var slot model.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, doctorID, year, month, day, schedule); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find occupied slot: %w", err)
	}
	return &slot, nil
}

// Occupy is the authoritative claim gate: the flip only succeeds when the
// slot is still available, so two concurrent bookings cannot both win.
func (r *slotRepository) Occupy(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE availability_slots
		SET is_available = false, updated_at = $1
		WHERE id = $2 AND is_available = true
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to occupy slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrSlotUnavailable
	}
	return nil
}

func (r *slotRepository) Release(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE availability_slots
		SET is_available = true, updated_at = $1
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNoRowsAffected
	}
	return nil
}

func (r *slotRepository) Delete(ctx context.Context, id, doctorID uuid.UUID) error {
	query := `
		DELETE FROM availability_slots
		WHERE id = $1 AND doctor_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, doctorID)
	if err != nil {
		return fmt.Errorf("failed to delete availability slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNoRowsAffected
	}
	return nil
}

// ExpireBefore never touches occupied slots; those belong to an
// appointment and are not unclaimed. Slot date components are UTC
// civil time, so the comparison is pinned to UTC regardless of the
// session timezone.
func (r *slotRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE availability_slots
		SET is_available = false, updated_at = $1
		WHERE is_available = true
		  AND make_timestamptz(year, month, day, schedule, 0, 0.0, 'UTC') < $2
	`
	result, err := r.db.ExecContext(ctx, query, now, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale slots: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
