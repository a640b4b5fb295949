package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/metrics"
	"github.com/fixflow/backend/internal/models"
)

type Incidents struct {
	Store   Store
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Now     Clock
}

func (s *Incidents) Get(ctx context.Context, id string) (models.Incident, error) {
	if err := validID("incidents.get", "incident", id); err != nil {
		return models.Incident{}, err
	}
	inc, err := s.Store.GetIncident(ctx, id)
	recordStoreError(s.Metrics, err)
	return inc, err
}

// UpdateStatus applies an operator status change. Closing an incident
// cancels its open schedules and releases the capacity it held.
func (s *Incidents) UpdateStatus(ctx context.Context, id, raw string) (models.Incident, error) {
	to, err := models.ParseIncidentStatus(raw)
	if err != nil {
		return models.Incident{}, apperr.Validation("incidents.status", err.Error())
	}
	inc, err := s.Get(ctx, id)
	if err != nil {
		return models.Incident{}, err
	}
	now := s.Now.now()
	patch := models.IncidentPatch{At: now}
	if to == models.IncidentResolved {
		patch.ResolvedAt = &now
	}
	updated, err := s.transition(ctx, inc, to, patch)
	if err != nil {
		return models.Incident{}, err
	}
	if to.Terminal() {
		s.cancelOpenSchedules(ctx, updated.ID, now)
	}
	return updated, nil
}

// transition moves an incident along the status table and releases the
// assignment's capacity unit when it reaches a terminal state.
func (s *Incidents) transition(ctx context.Context, inc models.Incident, to models.IncidentStatus, patch models.IncidentPatch) (models.Incident, error) {
	if !inc.Status.CanTransition(to) {
		return models.Incident{}, apperr.New(apperr.KindConflict, "incidents.status",
			"cannot move incident from "+string(inc.Status)+" to "+string(to))
	}
	updated, err := s.Store.TransitionIncident(ctx, inc.ID, inc.Status, to, patch)
	if err != nil {
		recordStoreError(s.Metrics, err)
		return models.Incident{}, err
	}
	if to.Terminal() && updated.AssignedTo != nil {
		if _, err := s.Store.AdjustAssignmentCount(ctx, *updated.AssignedTo, -1); err != nil {
			recordStoreError(s.Metrics, err)
			s.Logger.Error().Err(err).
				Str("incident_id", inc.ID).
				Str("technician_id", *updated.AssignedTo).
				Msg("failed to release technician capacity")
		}
	}
	return updated, nil
}

func (s *Incidents) cancelOpenSchedules(ctx context.Context, incidentID string, now time.Time) {
	open, err := s.Store.ListSchedules(ctx, models.ScheduleFilter{IncidentID: incidentID, Statuses: models.ActiveScheduleStatuses})
	if err != nil {
		recordStoreError(s.Metrics, err)
		s.Logger.Error().Err(err).Str("incident_id", incidentID).Msg("failed to list schedules for closed incident")
		return
	}
	for _, sc := range open {
		if _, err := s.Store.TransitionSchedule(ctx, sc.ID, sc.Status, models.ScheduleCancelled, now); err != nil {
			s.Logger.Warn().Err(err).Str("schedule_id", sc.ID).Msg("failed to cancel schedule of closed incident")
			continue
		}
		if sc.HoldsCapacity {
			if _, err := s.Store.AdjustAssignmentCount(ctx, sc.TechnicianID, -1); err != nil {
				s.Logger.Error().Err(err).Str("schedule_id", sc.ID).Msg("failed to release schedule capacity")
			}
		}
	}
}
