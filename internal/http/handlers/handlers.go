package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/service"
)

type Handler struct {
	Store     service.Store
	Directory *service.Directory
	Incidents *service.Incidents
	Scheduler *service.Scheduler
	Engine    *service.Engine
	Escalator *service.Escalator
	Aging     *service.Aging
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List technicians
// @Tags technicians
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/technicians [get]
func (h *Handler) TechniciansList(c *gin.Context) {
	items, err := h.Directory.List(c.Request.Context())
	if err != nil {
		writeAppError(c, "Failed to list technicians", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Technician details
// @Tags technicians
// @Produce json
// @Param id path string true "Technician ID"
// @Success 200 {object} models.Technician
// @Router /api/technicians/{id} [get]
func (h *Handler) TechnicianDetails(c *gin.Context) {
	tech, err := h.Directory.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAppError(c, "Technician not found", err)
		return
	}
	c.JSON(http.StatusOK, tech)
}

type AvailabilityRequest struct {
	Active    *bool `json:"active" validate:"required"`
	Available *bool `json:"available" validate:"required"`
}

// @Summary Set technician availability
// @Tags technicians
// @Accept json
// @Produce json
// @Param id path string true "Technician ID"
// @Param body body AvailabilityRequest true "Flags"
// @Success 200 {object} models.Technician
// @Router /api/technicians/{id}/availability [patch]
func (h *Handler) TechnicianAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if !h.bind(c, &req) {
		return
	}
	tech, err := h.Directory.SetAvailability(c.Request.Context(), c.Param("id"), *req.Active, *req.Available)
	if err != nil {
		writeAppError(c, "Failed to update technician", err)
		return
	}
	c.JSON(http.StatusOK, tech)
}

type AssignmentsRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// @Summary Correct technician load
// @Description Moves current assignments by delta; increments stop at the cap, decrements clamp at zero
// @Tags technicians
// @Accept json
// @Produce json
// @Param id path string true "Technician ID"
// @Param body body AssignmentsRequest true "Delta"
// @Success 200 {object} models.Technician
// @Router /api/technicians/{id}/assignments [patch]
func (h *Handler) TechnicianAssignments(c *gin.Context) {
	var req AssignmentsRequest
	if !h.bind(c, &req) {
		return
	}
	tech, err := h.Directory.AdjustAssignmentCount(c.Request.Context(), c.Param("id"), req.Delta)
	if err != nil {
		writeAppError(c, "Failed to adjust technician load", err)
		return
	}
	h.Logger.Info().
		Str("technician_id", tech.ID).
		Int("delta", req.Delta).
		Int("current_assignments", tech.CurrentAssignments).
		Msg("technician load adjusted")
	c.JSON(http.StatusOK, tech)
}

// @Summary Technician daily limit
// @Description Today's auto-assignment counts for the technician and the system, without reserving a slot
// @Tags technicians
// @Produce json
// @Param id path string true "Technician ID"
// @Success 200 {object} ratelimit.Decision
// @Router /api/technicians/{id}/rate-limit [get]
func (h *Handler) TechnicianRateLimit(c *gin.Context) {
	ctx := c.Request.Context()
	tech, err := h.Directory.Get(ctx, c.Param("id"))
	if err != nil {
		writeAppError(c, "Technician not found", err)
		return
	}
	d, err := h.Engine.Limiter.Check(ctx, tech.ID)
	if err != nil {
		writeAppError(c, "Failed to read rate limit", apperr.Wrap(apperr.KindStore, "ratelimit.check", err))
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary Incident details
// @Tags incidents
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} models.Incident
// @Router /api/incidents/{id} [get]
func (h *Handler) IncidentDetails(c *gin.Context) {
	inc, err := h.Incidents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAppError(c, "Incident not found", err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// @Summary Update incident status
// @Tags incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Param body body StatusRequest true "New status"
// @Success 200 {object} models.Incident
// @Router /api/incidents/{id}/status [patch]
func (h *Handler) IncidentStatus(c *gin.Context) {
	var req StatusRequest
	if !h.bind(c, &req) {
		return
	}
	inc, err := h.Incidents.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeAppError(c, "Failed to update incident", err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// @Summary List schedules
// @Tags schedules
// @Produce json
// @Param technician_id query string false "Technician ID"
// @Param incident_id query string false "Incident ID"
// @Param status query string false "Comma separated statuses"
// @Param from query string false "RFC3339 lower bound on scheduled_time"
// @Success 200 {object} map[string]any
// @Router /api/schedules [get]
func (h *Handler) SchedulesList(c *gin.Context) {
	f := models.ScheduleFilter{
		TechnicianID: strings.TrimSpace(c.Query("technician_id")),
		IncidentID:   strings.TrimSpace(c.Query("incident_id")),
	}
	for _, raw := range splitList(c.Query("status")) {
		st, err := models.ParseScheduleStatus(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, string(apperr.KindValidation), "Invalid status filter", err.Error())
			return
		}
		f.Statuses = append(f.Statuses, st)
	}
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	f.From = from

	items, err := h.Scheduler.ListSchedules(c.Request.Context(), f)
	if err != nil {
		writeAppError(c, "Failed to list schedules", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Create schedule
// @Description Books a work slot that holds one unit of technician capacity
// @Tags schedules
// @Accept json
// @Produce json
// @Param body body models.ScheduleRequest true "Slot"
// @Success 201 {object} models.Schedule
// @Router /api/schedules [post]
func (h *Handler) ScheduleCreate(c *gin.Context) {
	var req models.ScheduleRequest
	if !h.bind(c, &req) {
		return
	}
	req.HoldCapacity = true
	sc, err := h.Scheduler.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		writeAppError(c, "Failed to create schedule", err)
		return
	}
	c.JSON(http.StatusCreated, sc)
}

// @Summary Update schedule status
// @Tags schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param body body StatusRequest true "New status"
// @Success 200 {object} models.Schedule
// @Router /api/schedules/{id}/status [patch]
func (h *Handler) ScheduleStatus(c *gin.Context) {
	var req StatusRequest
	if !h.bind(c, &req) {
		return
	}
	sc, err := h.Scheduler.UpdateScheduleStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeAppError(c, "Failed to update schedule", err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(dst); err != nil {
		writeError(c, http.StatusBadRequest, string(apperr.KindValidation), "Validation failed", err.Error())
		return false
	}
	return true
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeAppError maps a typed service error onto the envelope. Untyped
// errors are reported as internal failures.
func writeAppError(c *gin.Context, message string, err error) {
	kind := apperr.KindOf(err)
	code := string(kind)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	writeError(c, statusFor(kind), code, message, err.Error())
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindCapacityExceeded, apperr.KindOverlap, apperr.KindUnavailable, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, string(apperr.KindValidation), name+" must be RFC3339", err.Error())
		return nil, false
	}
	t = t.UTC()
	return &t, true
}
