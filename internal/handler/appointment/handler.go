package appointment

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turnomed/scheduling-api/internal/middleware"
	"github.com/turnomed/scheduling-api/internal/model"
	"github.com/turnomed/scheduling-api/internal/service/booking"
	apperrors "github.com/turnomed/scheduling-api/pkg/errors"
	"github.com/turnomed/scheduling-api/pkg/httputil"
	"github.com/turnomed/scheduling-api/pkg/metrics"
)

type Handler struct {
	service *booking.Service
	metrics *metrics.Metrics
}

func NewHandler(service *booking.Service, m *metrics.Metrics) *Handler {
	return &Handler{service: service, metrics: m}
}

// RegisterRoutes mounts the read endpoints shared by both roles; the
// handlers scope results by the caller's role.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/appointments", h.List)
	rg.GET("/appointments/:id", h.Get)
}

// RegisterPatientRoutes mounts the booking lifecycle endpoints owned by
// the patient role.
func (h *Handler) RegisterPatientRoutes(rg *gin.RouterGroup) {
	rg.POST("/appointments", h.Book)
	rg.PATCH("/appointments/:id/reschedule", h.Reschedule)
	rg.PATCH("/appointments/:id/cancel", h.Cancel)
}

// RegisterDoctorRoutes mounts the status endpoint owned by the doctor role.
func (h *Handler) RegisterDoctorRoutes(rg *gin.RouterGroup) {
	rg.PATCH("/appointments/:id/status", h.UpdateStatus)
}

func (h *Handler) Book(c *gin.Context) {
	patientID, ok := middleware.Subject(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	var req model.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	start := time.Now()
	appointment, err := h.service.Book(c.Request.Context(), req.DoctorID, patientID, req.AvailabilityID, req.ReasonConsultation)
	h.observeBooking(start, err)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, appointment)
}

func (h *Handler) List(c *gin.Context) {
	subjectID, ok := middleware.Subject(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	filter, err := appointmentFilterFromQuery(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var appointments []*model.Appointment
	if middleware.Role(c) == middleware.RoleDoctor {
		appointments, err = h.service.ListForDoctor(c.Request.Context(), subjectID, filter)
	} else {
		appointments, err = h.service.ListForPatient(c.Request.Context(), subjectID, filter)
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) Get(c *gin.Context) {
	subjectID, ok := middleware.Subject(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid appointment ID", err))
		return
	}

	var appointment *model.Appointment
	if middleware.Role(c) == middleware.RoleDoctor {
		appointment, err = h.service.GetForDoctor(c.Request.Context(), appointmentID, subjectID)
	} else {
		appointment, err = h.service.GetForPatient(c.Request.Context(), appointmentID, subjectID)
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) Reschedule(c *gin.Context) {
	patientID, ok := middleware.Subject(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid appointment ID", err))
		return
	}

	var req model.RescheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	appointment, err := h.service.Reschedule(c.Request.Context(), appointmentID, patientID, req.AvailabilityID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.Reschedules.Inc()
	}
	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) Cancel(c *gin.Context) {
	patientID, ok := middleware.Subject(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid appointment ID", err))
		return
	}

	actor := middleware.ActorFromRole(middleware.Role(c))
	result, err := h.service.Cancel(c.Request.Context(), appointmentID, patientID, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.Cancellations.WithLabelValues(string(actor)).Inc()
	}
	httputil.RespondWithMessage(c, result.Message, result.Appointment)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	doctorID, ok := middleware.Subject(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid appointment ID", err))
		return
	}

	var req model.UpdateAppointmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	result, err := h.service.UpdateStatus(c.Request.Context(), appointmentID, doctorID, req.Status, req.Notes)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, result.Message, result.Appointment)
}

func (h *Handler) observeBooking(start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.BookingLatency.Observe(time.Since(start).Seconds())
	if err == nil {
		h.metrics.BookingsTotal.Inc()
	} else if apperrors.IsCode(err, apperrors.ErrConflict) {
		h.metrics.BookingConflicts.Inc()
	}
}

func appointmentFilterFromQuery(c *gin.Context) (model.AppointmentFilter, error) {
	var filter model.AppointmentFilter
	var err error

	if filter.Year, err = queryInt(c, "year"); err != nil {
		return filter, err
	}
	if filter.Month, err = queryInt(c, "month"); err != nil {
		return filter, err
	}
	if filter.Day, err = queryInt(c, "day"); err != nil {
		return filter, err
	}
	if s := c.Query("speciality"); s != "" {
		filter.Speciality = &s
	}

	return filter, nil
}

func queryInt(c *gin.Context, name string) (*int, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid "+name+" parameter", err)
	}
	return &v, nil
}
