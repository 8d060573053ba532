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

const appointmentColumns = `
	a.id, a.doctor_id, a.patient_id, a.slot_id, a.appointment_date,
	a.status, a.updated_by, a.created_at, a.updated_at,
	d.name AS doctor_name, d.speciality AS doctor_speciality,
	p.name AS patient_name
`

const appointmentJoins = `
	FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	JOIN patients p ON p.id = a.patient_id
`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, doctor_id, patient_id, slot_id, appointment_date,
			status, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	appointment.ID = uuid.New()
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.DoctorID,
		appointment.PatientID,
		appointment.SlotID,
		appointment.AppointmentDate,
		appointment.Status,
		appointment.UpdatedBy,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := "SELECT " + appointmentColumns + appointmentJoins + " WHERE a.id = $1"

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*model.Appointment, error) {
	query := "SELECT " + appointmentColumns + appointmentJoins + " WHERE a.id = $1 AND a.patient_id = $2"

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id, patientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) GetForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*model.Appointment, error) {
	query := "SELECT " + appointmentColumns + appointmentJoins + " WHERE a.id = $1 AND a.doctor_id = $2"

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id, doctorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get doctor appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) ListForPatient(ctx context.Context, patientID uuid.UUID, onDay *time.Time, speciality *string) ([]*model.Appointment, error) {
	query := "SELECT " + appointmentColumns + appointmentJoins + " WHERE a.patient_id = $1"
	args := []interface{}{patientID}
	argCount := 2

	if onDay != nil {
		query += fmt.Sprintf(" AND a.appointment_date >= $%d AND a.appointment_date < $%d + interval '1 day'", argCount, argCount)
		args = append(args, *onDay)
		argCount++
	}
	if speciality != nil {
		query += fmt.Sprintf(" AND d.speciality = $%d", argCount)
		args = append(args, *speciality)
		argCount++
	}

	query += " ORDER BY a.appointment_date ASC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patient appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID, onDay *time.Time) ([]*model.Appointment, error) {
	query := "SELECT " + appointmentColumns + appointmentJoins + " WHERE a.doctor_id = $1"
	args := []interface{}{doctorID}

	if onDay != nil {
		query += " AND a.appointment_date >= $2 AND a.appointment_date < $2 + interval '1 day'"
		args = append(args, *onDay)
	}

	query += " ORDER BY a.appointment_date ASC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list doctor appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) UpdateDate(ctx context.Context, id uuid.UUID, date time.Time, slotID *uuid.UUID) error {
	query := `
		UPDATE appointments
		SET appointment_date = $1, slot_id = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, date, slotID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment date: %w", err)
	}
	return checkOneRow(result)
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, updatedBy model.Actor) error {
	query := `
		UPDATE appointments
		SET status = $1, updated_by = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, status, updatedBy, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return checkOneRow(result)
}

func (r *appointmentRepository) SetSlotRef(ctx context.Context, id uuid.UUID, slotID *uuid.UUID) error {
	query := `
		UPDATE appointments
		SET slot_id = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, slotID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment slot reference: %w", err)
	}
	return checkOneRow(result)
}

func checkOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNoRowsAffected
	}
	return nil
}
