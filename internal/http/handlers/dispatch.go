package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/service"
)

// @Summary Submit alert
// @Description Runs one predicted failure through the quality gate, the duplicate guard and assignment
// @Tags alerts
// @Accept json
// @Produce json
// @Param body body models.Alert true "Alert"
// @Success 200 {object} service.Outcome
// @Success 201 {object} service.Outcome
// @Router /api/alerts [post]
func (h *Handler) AlertSubmit(c *gin.Context) {
	var a models.Alert
	if err := c.ShouldBindJSON(&a); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	out, err := h.Engine.SubmitAlert(c.Request.Context(), a)
	if err != nil {
		writeAppError(c, "Failed to submit alert", err)
		return
	}
	writeOutcome(c, out)
}

type BatchRequest struct {
	Alerts []models.Alert `json:"alerts" validate:"required,min=1,max=500"`
}

// @Summary Submit alert batch
// @Tags alerts
// @Accept json
// @Produce json
// @Param body body BatchRequest true "Alerts"
// @Success 200 {object} service.BatchSummary
// @Router /api/alerts/batch [post]
func (h *Handler) AlertBatch(c *gin.Context) {
	var req BatchRequest
	if !h.bind(c, &req) {
		return
	}
	summary := h.Engine.ProcessAlerts(c.Request.Context(), req.Alerts)
	c.JSON(http.StatusOK, summary)
}

// @Summary Report incident
// @Description Human report; priority comes from the classifier
// @Tags incidents
// @Accept json
// @Produce json
// @Param body body models.Report true "Report"
// @Success 200 {object} service.Outcome
// @Success 201 {object} service.Outcome
// @Router /api/reports [post]
func (h *Handler) ReportCreate(c *gin.Context) {
	var r models.Report
	if err := c.ShouldBindJSON(&r); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	out, err := h.Engine.ReportIncident(c.Request.Context(), r)
	if err != nil {
		writeAppError(c, "Failed to report incident", err)
		return
	}
	writeOutcome(c, out)
}

// @Summary Run escalation sweep
// @Tags escalations
// @Produce json
// @Success 200 {object} service.SweepResult
// @Router /api/escalations/sweep [post]
func (h *Handler) EscalationSweep(c *gin.Context) {
	res, err := h.Escalator.RunEscalationSweep(c.Request.Context())
	if err != nil {
		writeAppError(c, "Escalation sweep failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Incident aging
// @Tags analytics
// @Produce json
// @Param status query string false "Comma separated statuses, defaults to open"
// @Param category query string false "Category"
// @Param technician_id query string false "Assigned technician"
// @Param created_from query string false "RFC3339"
// @Param created_to query string false "RFC3339"
// @Success 200 {object} service.AgingAnalysis
// @Router /api/analytics/aging [get]
func (h *Handler) AgingAnalysis(c *gin.Context) {
	f := models.IncidentFilter{
		Category:     strings.TrimSpace(c.Query("category")),
		TechnicianID: strings.TrimSpace(c.Query("technician_id")),
	}
	for _, raw := range splitList(c.Query("status")) {
		st, err := models.ParseIncidentStatus(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, string(apperr.KindValidation), "Invalid status filter", err.Error())
			return
		}
		f.Statuses = append(f.Statuses, st)
	}
	var ok bool
	if f.CreatedFrom, ok = parseTimeQuery(c, "created_from"); !ok {
		return
	}
	if f.CreatedTo, ok = parseTimeQuery(c, "created_to"); !ok {
		return
	}

	res, err := h.Aging.Analyze(c.Request.Context(), f)
	if err != nil {
		writeAppError(c, "Failed to analyze incidents", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func writeOutcome(c *gin.Context, out service.Outcome) {
	status := http.StatusOK
	if out.Accepted() {
		status = http.StatusCreated
	}
	c.JSON(status, out)
}
