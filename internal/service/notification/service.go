package notification

import (
	"fmt"

	"github.com/rs/zerolog/log"
	gomail "gopkg.in/gomail.v2"

	"github.com/turnomed/scheduling-api/internal/config"
	"github.com/turnomed/scheduling-api/internal/model"
)

// Service sends appointment lifecycle emails. Every send is best-effort:
// failures are logged, never surfaced to the booking path.
type Service interface {
	AppointmentBooked(appointment *model.Appointment, patient *model.Patient, doctor *model.Doctor)
	AppointmentCanceled(appointment *model.Appointment, patient *model.Patient)
}

func NewService(cfg config.SMTPConfig) Service {
	if !cfg.Enabled {
		return noopService{}
	}
	return &emailService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

func (s *emailService) AppointmentBooked(appointment *model.Appointment, patient *model.Patient, doctor *model.Doctor) {
	subject := "Appointment confirmed"
	body := fmt.Sprintf(
		"Hello %s,\n\nYour appointment with Dr. %s (%s) is confirmed for %s.\n",
		patient.Name,
		doctor.Name,
		doctor.Speciality,
		appointment.AppointmentDate.Format("Mon, 02 Jan 2006 15:04"),
	)
	s.send(patient.Email, subject, body)
}

func (s *emailService) AppointmentCanceled(appointment *model.Appointment, patient *model.Patient) {
	subject := "Appointment canceled"
	body := fmt.Sprintf(
		"Hello %s,\n\nYour appointment on %s has been canceled.\n",
		patient.Name,
		appointment.AppointmentDate.Format("Mon, 02 Jan 2006 15:04"),
	)
	s.send(patient.Email, subject, body)
}

func (s *emailService) send(to, subject, body string) {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		log.Error().Err(err).Str("to", to).Msg("failed to send notification email")
	}
}

type noopService struct{}

func (noopService) AppointmentBooked(*model.Appointment, *model.Patient, *model.Doctor) {}
func (noopService) AppointmentCanceled(*model.Appointment, *model.Patient)              {}

// NewNoop returns a Service that sends nothing. Used in tests and when
// SMTP is disabled.
func NewNoop() Service { return noopService{} }
