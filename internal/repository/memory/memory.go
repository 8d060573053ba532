// Package memory provides in-memory implementations of the repository
// interfaces, mirroring the conditional-update semantics of the postgres
// implementations. They back unit tests and local development without a
// database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turnomed/scheduling-api/internal/model"
	"github.com/turnomed/scheduling-api/internal/repository"
)

// Store is the shared backing state of all in-memory repositories.
type Store struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*model.Doctor
	patients     map[uuid.UUID]*model.Patient
	slots        map[uuid.UUID]*model.AvailabilitySlot
	appointments map[uuid.UUID]*model.Appointment
	details      map[uuid.UUID]*model.AppointmentDetail
}

func NewStore() *Store {
	return &Store{
		doctors:      make(map[uuid.UUID]*model.Doctor),
		patients:     make(map[uuid.UUID]*model.Patient),
		slots:        make(map[uuid.UUID]*model.AvailabilitySlot),
		appointments: make(map[uuid.UUID]*model.Appointment),
		details:      make(map[uuid.UUID]*model.AppointmentDetail),
	}
}

func (s *Store) AddDoctor(d *model.Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.doctors[d.ID] = d
}

func (s *Store) AddPatient(p *model.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.patients[p.ID] = p
}

func (s *Store) Slots() repository.SlotRepository               { return &slotRepo{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepo{s} }
func (s *Store) Details() repository.AppointmentDetailRepository {
	return &detailRepo{s}
}
func (s *Store) Doctors() repository.DoctorRepository   { return &doctorRepo{s} }
func (s *Store) Patients() repository.PatientRepository { return &patientRepo{s} }

type slotRepo struct{ s *Store }

func (r *slotRepo) Create(_ context.Context, slot *model.AvailabilitySlot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.slots {
		if existing.DoctorID == slot.DoctorID &&
			existing.Year == slot.Year && existing.Month == slot.Month &&
			existing.Day == slot.Day && existing.Schedule == slot.Schedule {
			return repository.ErrDuplicateSlot
		}
	}

	slot.ID = uuid.New()
	slot.IsAvailable = true
	slot.CreatedAt = time.Now()
	slot.UpdatedAt = slot.CreatedAt

	stored := *slot
	r.s.slots[slot.ID] = &stored
	return nil
}

func (r *slotRepo) Get(_ context.Context, id uuid.UUID) (*model.AvailabilitySlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot, ok := r.s.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *slot
	return &out, nil
}

func (r *slotRepo) FindAvailableByID(_ context.Context, id, doctorID uuid.UUID) (*model.AvailabilitySlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot, ok := r.s.slots[id]
	if !ok || slot.DoctorID != doctorID || !slot.IsAvailable {
		return nil, repository.ErrSlotUnavailable
	}
	out := *slot
	return &out, nil
}

func (r *slotRepo) List(_ context.Context, q model.SlotQuery) ([]*model.AvailabilitySlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.AvailabilitySlot
	for _, slot := range r.s.slots {
		if !slot.IsAvailable {
			continue
		}
		if q.DoctorID != nil && slot.DoctorID != *q.DoctorID {
			continue
		}
		doc := r.s.doctors[slot.DoctorID]
		if q.Speciality != nil && (doc == nil || doc.Speciality != *q.Speciality) {
			continue
		}
		if q.Year != nil && slot.Year != *q.Year {
			continue
		}
		if q.Year == nil && q.YearGte != nil && slot.Year < *q.YearGte {
			continue
		}
		if q.Month != nil && slot.Month != *q.Month {
			continue
		}
		if q.Month == nil && q.MonthGte != nil && slot.Month < *q.MonthGte {
			continue
		}
		if q.Day != nil && slot.Day != *q.Day {
			continue
		}

		copied := *slot
		if doc != nil {
			copied.DoctorName = doc.Name
		}
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if q.OrderByDoctor && a.DoctorName != b.DoctorName {
			return a.DoctorName < b.DoctorName
		}
		return a.Date().Before(b.Date())
	})
	return out, nil
}

func (r *slotRepo) FindOccupiedAt(_ context.Context, doctorID uuid.UUID, year, month, day, schedule int) (*model.AvailabilitySlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, slot := range r.s.slots {
		if slot.DoctorID == doctorID && !slot.IsAvailable &&
			slot.Year == year && slot.Month == month &&
			slot.Day == day && slot.Schedule == schedule {
			out := *slot
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *slotRepo) Occupy(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot, ok := r.s.slots[id]
	if !ok || !slot.IsAvailable {
		return repository.ErrSlotUnavailable
	}
	slot.IsAvailable = false
	slot.UpdatedAt = time.Now()
	return nil
}

func (r *slotRepo) Release(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot, ok := r.s.slots[id]
	if !ok {
		return repository.ErrNoRowsAffected
	}
	slot.IsAvailable = true
	slot.UpdatedAt = time.Now()
	return nil
}

func (r *slotRepo) Delete(_ context.Context, id, doctorID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot, ok := r.s.slots[id]
	if !ok || slot.DoctorID != doctorID {
		return repository.ErrNoRowsAffected
	}
	delete(r.s.slots, id)
	return nil
}

func (r *slotRepo) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var count int64
	for _, slot := range r.s.slots {
		if slot.IsAvailable && slot.Date().Before(now.UTC()) {
			slot.IsAvailable = false
			slot.UpdatedAt = time.Now()
			count++
		}
	}
	return count, nil
}

type appointmentRepo struct{ s *Store }

func (r *appointmentRepo) Create(_ context.Context, appointment *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	appointment.ID = uuid.New()
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = appointment.CreatedAt

	stored := *appointment
	r.s.appointments[appointment.ID] = &stored
	return nil
}

func (r *appointmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

func (r *appointmentRepo) GetForPatient(_ context.Context, id, patientID uuid.UUID) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	appointment, err := r.get(id)
	if err != nil || appointment.PatientID != patientID {
		return nil, repository.ErrNotFound
	}
	return appointment, nil
}

func (r *appointmentRepo) GetForDoctor(_ context.Context, id, doctorID uuid.UUID) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	appointment, err := r.get(id)
	if err != nil || appointment.DoctorID != doctorID {
		return nil, repository.ErrNotFound
	}
	return appointment, nil
}

func (r *appointmentRepo) ListForPatient(_ context.Context, patientID uuid.UUID, onDay *time.Time, speciality *string) ([]*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.Appointment
	for _, appointment := range r.s.appointments {
		if appointment.PatientID != patientID {
			continue
		}
		if !matchesDay(appointment, onDay) {
			continue
		}
		if speciality != nil {
			doc := r.s.doctors[appointment.DoctorID]
			if doc == nil || doc.Speciality != *speciality {
				continue
			}
		}
		out = append(out, r.decorate(appointment))
	}
	sortByDate(out)
	return out, nil
}

func (r *appointmentRepo) ListForDoctor(_ context.Context, doctorID uuid.UUID, onDay *time.Time) ([]*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.Appointment
	for _, appointment := range r.s.appointments {
		if appointment.DoctorID != doctorID {
			continue
		}
		if !matchesDay(appointment, onDay) {
			continue
		}
		out = append(out, r.decorate(appointment))
	}
	sortByDate(out)
	return out, nil
}

func (r *appointmentRepo) UpdateDate(_ context.Context, id uuid.UUID, date time.Time, slotID *uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	appointment, ok := r.s.appointments[id]
	if !ok {
		return repository.ErrNoRowsAffected
	}
	appointment.AppointmentDate = date
	appointment.SlotID = slotID
	appointment.UpdatedAt = time.Now()
	return nil
}

func (r *appointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.AppointmentStatus, updatedBy model.Actor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	appointment, ok := r.s.appointments[id]
	if !ok {
		return repository.ErrNoRowsAffected
	}
	appointment.Status = status
	appointment.UpdatedBy = updatedBy
	appointment.UpdatedAt = time.Now()
	return nil
}

func (r *appointmentRepo) SetSlotRef(_ context.Context, id uuid.UUID, slotID *uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	appointment, ok := r.s.appointments[id]
	if !ok {
		return repository.ErrNoRowsAffected
	}
	appointment.SlotID = slotID
	appointment.UpdatedAt = time.Now()
	return nil
}

func (r *appointmentRepo) get(id uuid.UUID) (*model.Appointment, error) {
	appointment, ok := r.s.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.decorate(appointment), nil
}

func (r *appointmentRepo) decorate(appointment *model.Appointment) *model.Appointment {
	out := *appointment
	if doc := r.s.doctors[appointment.DoctorID]; doc != nil {
		out.DoctorName = doc.Name
		out.DoctorSpeciality = doc.Speciality
	}
	if pat := r.s.patients[appointment.PatientID]; pat != nil {
		out.PatientName = pat.Name
	}
	return &out
}

func matchesDay(appointment *model.Appointment, onDay *time.Time) bool {
	if onDay == nil {
		return true
	}
	start := onDay.UTC()
	end := start.Add(24 * time.Hour)
	d := appointment.AppointmentDate.UTC()
	return !d.Before(start) && d.Before(end)
}

func sortByDate(appointments []*model.Appointment) {
	sort.Slice(appointments, func(i, j int) bool {
		return appointments[i].AppointmentDate.Before(appointments[j].AppointmentDate)
	})
}

type detailRepo struct{ s *Store }

func (r *detailRepo) Create(_ context.Context, detail *model.AppointmentDetail) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	detail.ID = uuid.New()
	detail.CreatedAt = time.Now()
	detail.UpdatedAt = detail.CreatedAt

	stored := *detail
	r.s.details[detail.AppointmentID] = &stored
	return nil
}

func (r *detailRepo) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*model.AppointmentDetail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	detail, ok := r.s.details[appointmentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *detail
	return &out, nil
}

func (r *detailRepo) UpdateNotes(_ context.Context, appointmentID uuid.UUID, notes *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	detail, ok := r.s.details[appointmentID]
	if !ok {
		return repository.ErrNoRowsAffected
	}
	detail.Notes = notes
	detail.UpdatedAt = time.Now()
	return nil
}

type doctorRepo struct{ s *Store }

func (r *doctorRepo) Get(_ context.Context, id uuid.UUID) (*model.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	doc, ok := r.s.doctors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *doc
	return &out, nil
}

func (r *doctorRepo) GetByEmail(_ context.Context, email string) (*model.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, doc := range r.s.doctors {
		if doc.Email == email {
			out := *doc
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

type patientRepo struct{ s *Store }

func (r *patientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pat, ok := r.s.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *pat
	return &out, nil
}

func (r *patientRepo) GetByEmail(_ context.Context, email string) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, pat := range r.s.patients {
		if pat.Email == email {
			out := *pat
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}
