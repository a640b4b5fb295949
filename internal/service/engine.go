package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/classifier"
	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/metrics"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/notify"
	"github.com/fixflow/backend/internal/ratelimit"
)

const assignedPriority = 5

// Engine turns alerts and reports into assigned, SLA-tracked incidents.
type Engine struct {
	Store      Store
	Directory  *Directory
	Scheduler  *Scheduler
	Gate       QualityGate
	Guard      *Guard
	Limiter    ratelimit.Limiter
	Classifier classifier.Classifier
	Notifier   *notify.Dispatcher
	Metrics    *metrics.Metrics
	Config     config.Dispatch
	Logger     zerolog.Logger
	Now        Clock
}

// SubmitAlert runs one alert through the gate, the guard, incident creation
// and assignment. Refusals come back as a non-accepted Outcome; only
// validation and store failures are errors.
func (e *Engine) SubmitAlert(ctx context.Context, a models.Alert) (Outcome, error) {
	out, err := e.submit(ctx, a)
	if err != nil {
		recordStoreError(e.Metrics, err)
		e.Logger.Error().Err(err).
			Str("location", a.Location).
			Str("category", a.Category).
			Msg("alert submission failed")
		return Outcome{}, err
	}

	e.Metrics.AlertOutcome(string(out.Kind))
	ev := e.Logger.Info()
	ev.Str("outcome", string(out.Kind)).
		Str("location", a.Location).
		Str("category", a.Category)
	if out.Reason != "" {
		ev.Str("reason", out.Reason)
	}
	if out.IncidentID != "" {
		ev.Str("incident_id", out.IncidentID)
	}
	if out.TechnicianID != "" {
		ev.Str("technician_id", out.TechnicianID)
	}
	ev.Msg("alert processed")
	return out, nil
}

func (e *Engine) submit(ctx context.Context, a models.Alert) (Outcome, error) {
	a.Location = strings.TrimSpace(a.Location)
	a.Category = strings.TrimSpace(a.Category)
	if a.Source == "" {
		a.Source = models.SourcePrediction
	}
	if err := validate.Struct(a); err != nil {
		return Outcome{}, apperr.Validation("alerts.submit", err.Error())
	}
	if a.Source == models.SourcePrediction && a.DaysToFailure == nil {
		return Outcome{}, apperr.Validation("alerts.submit", "days_to_failure is required for prediction alerts")
	}

	if ok, reason := e.Gate.Check(a); !ok {
		return rejected(OutcomeQualityGate, reason), nil
	}

	release, held, err := e.Guard.Lock(ctx, a.Location, a.Category)
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.KindStore, "guard.lock", err)
	}
	if held != nil {
		return *held, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			e.Logger.Warn().Err(err).Str("location", a.Location).Msg("failed to release guard lock")
		}
	}()

	now := e.Now.now()
	blocked, err := e.Guard.Check(ctx, a.Location, a.Category, now)
	if err != nil {
		return Outcome{}, err
	}
	if blocked != nil {
		return *blocked, nil
	}

	inc, err := e.Store.CreateIncident(ctx, newIncident(a, now))
	if err != nil {
		return Outcome{}, err
	}

	mode := ModeCritical
	if a.Source == models.SourceReport {
		mode = ModeGeneral
	}
	return e.assign(ctx, inc, mode)
}

func newIncident(a models.Alert, now time.Time) models.Incident {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		title = fmt.Sprintf("Predicted %s failure at %s", strings.ToLower(a.Category), a.Location)
	}
	priority := a.Priority
	if priority == 0 {
		priority = classifier.DefaultPriority
	}
	inc := models.Incident{
		ID:          uuid.NewString(),
		Title:       title,
		Description: a.Description,
		Location:    a.Location,
		Category:    strings.ToLower(a.Category),
		Status:      models.IncidentNew,
		Priority:    classifier.Clamp(priority),
		Source:      a.Source,
		CreatedAt:   now,
	}
	if _, err := uuid.Parse(a.ReportedBy); err == nil {
		reporter := a.ReportedBy
		inc.ReportedBy = &reporter
	}
	return inc
}

// assign walks the ranked candidates until one accepts. Each attempt
// reserves a rate-limit slot first and gives it back if the capacity
// precondition then fails.
func (e *Engine) assign(ctx context.Context, inc models.Incident, mode SelectionMode) (Outcome, error) {
	techs, err := e.Directory.List(ctx)
	if err != nil {
		return Outcome{}, err
	}
	elig := FilterEligibleTechnicians(techs, inc.Category, mode, nil)
	e.Logger.Debug().
		Str("incident_id", inc.ID).
		Str("mode", mode.String()).
		Interface("stages", elig.StageCounts()).
		Msg("technician selection")

	noTech := Outcome{Kind: OutcomeNoTechnician, Reason: "no technician available", IncidentID: inc.ID}
	if len(elig.Ranked) == 0 {
		return noTech, nil
	}

	var limited *ratelimit.Decision
	for _, cand := range elig.Ranked {
		decision, err := e.Limiter.Reserve(ctx, cand.ID)
		if err != nil {
			return Outcome{}, apperr.Wrap(apperr.KindStore, "ratelimit.reserve", err)
		}
		if !decision.Allowed {
			limited = &decision
			if decision.Reason == ratelimit.ReasonSystemLimit {
				break
			}
			continue
		}

		now := e.Now.now()
		deadline := now.Add(e.Config.SLA())
		assigned, err := e.Store.AssignIncident(ctx, models.AssignRequest{
			IncidentID:   inc.ID,
			TechnicianID: cand.ID,
			Priority:     assignedPriority,
			SLAStartedAt: now,
			SLADeadline:  deadline,
		})
		if err != nil {
			if relErr := e.Limiter.Release(ctx, cand.ID); relErr != nil {
				e.Logger.Warn().Err(relErr).Str("technician_id", cand.ID).Msg("failed to release rate limit reservation")
			}
			if apperr.Is(err, apperr.KindCapacityExceeded) || apperr.Is(err, apperr.KindUnavailable) {
				// a later candidate got past the limiter
				limited = nil
				e.Logger.Info().Err(err).Str("technician_id", cand.ID).Msg("candidate lost capacity, trying next")
				continue
			}
			return Outcome{}, err
		}

		out := Outcome{
			Kind:         OutcomeAssigned,
			IncidentID:   assigned.ID,
			TechnicianID: cand.ID,
			SLADeadline:  &deadline,
		}
		if sc, err := e.Scheduler.CreateSchedule(ctx, models.ScheduleRequest{
			TechnicianID:    cand.ID,
			IncidentID:      assigned.ID,
			ScheduledTime:   now.Add(e.Config.ScheduleLead()),
			DurationMinutes: e.Config.DefaultDurationMinutes,
		}); err != nil {
			e.Logger.Warn().Err(err).
				Str("incident_id", assigned.ID).
				Str("technician_id", cand.ID).
				Msg("work slot not created, assignment kept")
		} else {
			out.ScheduleID = sc.ID
		}

		e.Notifier.Send(ctx, notify.Notification{
			UserID:  cand.ID,
			Type:    notify.TypeAssignment,
			Message: fmt.Sprintf("New incident assigned: %s", assigned.Title),
			Metadata: map[string]string{
				"incident_id":  assigned.ID,
				"location":     assigned.Location,
				"category":     assigned.Category,
				"sla_deadline": deadline.Format(time.RFC3339),
			},
		})
		return out, nil
	}

	if limited != nil {
		return Outcome{Kind: OutcomeRateLimited, Reason: limited.Reason, IncidentID: inc.ID}, nil
	}
	return noTech, nil
}

// ProcessAlerts submits each alert in turn and keeps going past failures.
func (e *Engine) ProcessAlerts(ctx context.Context, alerts []models.Alert) BatchSummary {
	summary := BatchSummary{
		Reasons: map[OutcomeKind]int{},
		Results: make([]BatchResult, 0, len(alerts)),
	}
	for i, a := range alerts {
		out, err := e.SubmitAlert(ctx, a)
		if err != nil {
			summary.Failed++
			summary.Errors++
			summary.Results = append(summary.Results, BatchResult{Index: i, Error: err.Error()})
			continue
		}
		o := out
		summary.Reasons[out.Kind]++
		if out.Accepted() {
			summary.Assigned++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, BatchResult{Index: i, Outcome: &o})
	}
	e.Logger.Info().
		Int("alerts", len(alerts)).
		Int("assigned", summary.Assigned).
		Int("failed", summary.Failed).
		Int("errors", summary.Errors).
		Msg("alert batch processed")
	return summary
}

// ReportIncident handles a human report: the classifier sets the starting
// priority, then the report follows the alert path in general mode.
func (e *Engine) ReportIncident(ctx context.Context, r models.Report) (Outcome, error) {
	if err := validate.Struct(r); err != nil {
		return Outcome{}, apperr.Validation("reports.create", err.Error())
	}
	priority := classifier.DefaultPriority
	if e.Classifier != nil {
		p, err := e.Classifier.Classify(ctx, r)
		if err != nil {
			e.Logger.Warn().Err(err).Str("location", r.Location).Msg("classifier failed, using default priority")
		} else {
			priority = classifier.Clamp(p)
		}
	}
	return e.SubmitAlert(ctx, models.Alert{
		Location:    r.Location,
		Category:    r.Category,
		Source:      models.SourceReport,
		Title:       r.Title,
		Description: r.Description,
		Priority:    priority,
		ReportedBy:  r.ReportedBy,
	})
}
