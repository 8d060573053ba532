package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/turnomed/scheduling-api/internal/model"
	"github.com/turnomed/scheduling-api/internal/repository"
)

func (r *appointmentDetailRepository) Create(ctx context.Context, detail *model.AppointmentDetail) error {
	query := `
		INSERT INTO appointment_details (
			id, appointment_id, reason_consultation, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	detail.ID = uuid.New()
	detail.CreatedAt = time.Now()
	detail.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		detail.ID,
		detail.AppointmentID,
		detail.ReasonConsultation,
		detail.Notes,
		detail.CreatedAt,
		detail.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment detail: %w", err)
	}
	return nil
}

func (r *appointmentDetailRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.AppointmentDetail, error) {
	query := `
		SELECT id, appointment_id, reason_consultation, notes,
			   created_at, updated_at
		FROM appointment_details
		WHERE appointment_id = $1
	`
	var detail model.AppointmentDetail
	if err := r.db.GetContext(ctx, &detail, query, appointmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment detail: %w", err)
	}
	return &detail, nil
}

// UpdateNotes leaves reason_consultation untouched.
func (r *appointmentDetailRepository) UpdateNotes(ctx context.Context, appointmentID uuid.UUID, notes *string) error {
	query := `
		UPDATE appointment_details
		SET notes = $1, updated_at = $2
		WHERE appointment_id = $3
	`
	result, err := r.db.ExecContext(ctx, query, notes, time.Now(), appointmentID)
	if err != nil {
		return fmt.Errorf("failed to update appointment notes: %w", err)
	}
	return checkOneRow(result)
}
