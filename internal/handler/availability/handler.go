package availability

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turnomed/scheduling-api/internal/middleware"
	"github.com/turnomed/scheduling-api/internal/model"
	"github.com/turnomed/scheduling-api/internal/service/availability"
	apperrors "github.com/turnomed/scheduling-api/pkg/errors"
	"github.com/turnomed/scheduling-api/pkg/httputil"
	"github.com/turnomed/scheduling-api/pkg/metrics"
)

type Handler struct {
	service *availability.Service
	metrics *metrics.Metrics
}

func NewHandler(service *availability.Service, m *metrics.Metrics) *Handler {
	return &Handler{service: service, metrics: m}
}

// RegisterDoctorRoutes mounts the slot management endpoints on a
// doctor-gated group.
func (h *Handler) RegisterDoctorRoutes(rg *gin.RouterGroup) {
	rg.POST("/availabilities", h.Publish)
	rg.GET("/availabilities/mine", h.ListMine)
	rg.DELETE("/availabilities/:id", h.Delete)
}

// RegisterPatientRoutes mounts the search endpoint on a patient-gated group.
func (h *Handler) RegisterPatientRoutes(rg *gin.RouterGroup) {
	rg.GET("/availabilities", h.Search)
}

func (h *Handler) Publish(c *gin.Context) {
	doctorID, ok := middleware.Subject(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	var req model.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	slot, err := h.service.Publish(c.Request.Context(), doctorID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SlotsPublished.Inc()
	}
	httputil.RespondWithCreated(c, slot)
}

func (h *Handler) ListMine(c *gin.Context) {
	doctorID, ok := middleware.Subject(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	filter, err := dateFilterFromQuery(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	slots, err := h.service.FindForDoctor(c.Request.Context(), doctorID, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, slots)
}

func (h *Handler) Search(c *gin.Context) {
	filter, err := dateFilterFromQuery(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var speciality *string
	if s := c.Query("speciality"); s != "" {
		speciality = &s
	}

	slots, err := h.service.FindForPatients(c.Request.Context(), speciality, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, slots)
}

func (h *Handler) Delete(c *gin.Context) {
	doctorID, ok := middleware.Subject(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid availability ID", err))
		return
	}

	if err := h.service.Delete(c.Request.Context(), slotID, doctorID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, "availability deleted successfully", nil)
}

// dateFilterFromQuery parses the optional year/month/day query parameters.
func dateFilterFromQuery(c *gin.Context) (model.SlotDateFilter, error) {
	var filter model.SlotDateFilter
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
