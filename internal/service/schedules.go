package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/metrics"
	"github.com/fixflow/backend/internal/models"
)

type Scheduler struct {
	Store           Store
	Incidents       *Incidents
	DefaultDuration int
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
	Now             Clock
}

func (s *Scheduler) HasOverlap(ctx context.Context, technicianID string, start time.Time, durationMinutes int) (bool, error) {
	if err := validID("schedules.overlap", "technician", technicianID); err != nil {
		return false, err
	}
	overlap, err := s.Store.HasOverlap(ctx, technicianID, start, s.duration(durationMinutes))
	recordStoreError(s.Metrics, err)
	return overlap, err
}

// CreateSchedule books a work slot. The store rejects overlaps and
// unavailable technicians without writing anything; with HoldCapacity the
// slot also takes one unit of the technician's capacity.
func (s *Scheduler) CreateSchedule(ctx context.Context, req models.ScheduleRequest) (models.Schedule, error) {
	if err := validate.Struct(req); err != nil {
		return models.Schedule{}, apperr.Validation("schedules.create", err.Error())
	}
	if _, err := s.Store.GetIncident(ctx, req.IncidentID); err != nil {
		recordStoreError(s.Metrics, err)
		return models.Schedule{}, err
	}

	now := s.Now.now()
	sc := models.Schedule{
		ID:              uuid.NewString(),
		TechnicianID:    req.TechnicianID,
		IncidentID:      req.IncidentID,
		ScheduledTime:   req.ScheduledTime.UTC(),
		DurationMinutes: s.duration(req.DurationMinutes),
		Status:          models.ScheduleScheduled,
		HoldsCapacity:   req.HoldCapacity,
		CreatedAt:       now,
	}
	created, err := s.Store.CreateSchedule(ctx, sc)
	if err != nil {
		recordStoreError(s.Metrics, err)
		return models.Schedule{}, err
	}
	return created, nil
}

func (s *Scheduler) ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error) {
	if f.TechnicianID != "" {
		if err := validID("schedules.list", "technician", f.TechnicianID); err != nil {
			return nil, err
		}
	}
	out, err := s.Store.ListSchedules(ctx, f)
	recordStoreError(s.Metrics, err)
	return out, err
}

// UpdateScheduleStatus moves a schedule along its status table and mirrors
// the change onto the incident: starting work starts the incident,
// completing work resolves it.
func (s *Scheduler) UpdateScheduleStatus(ctx context.Context, id, raw string) (models.Schedule, error) {
	to, err := models.ParseScheduleStatus(raw)
	if err != nil {
		return models.Schedule{}, apperr.Validation("schedules.status", err.Error())
	}
	if err := validID("schedules.status", "schedule", id); err != nil {
		return models.Schedule{}, err
	}
	sc, err := s.Store.GetSchedule(ctx, id)
	if err != nil {
		recordStoreError(s.Metrics, err)
		return models.Schedule{}, err
	}
	if !sc.Status.CanTransition(to) {
		return models.Schedule{}, apperr.New(apperr.KindConflict, "schedules.status",
			"cannot move schedule from "+string(sc.Status)+" to "+string(to))
	}

	now := s.Now.now()
	updated, err := s.Store.TransitionSchedule(ctx, id, sc.Status, to, now)
	if err != nil {
		recordStoreError(s.Metrics, err)
		return models.Schedule{}, err
	}

	if !to.Active() && sc.HoldsCapacity {
		if _, err := s.Store.AdjustAssignmentCount(ctx, sc.TechnicianID, -1); err != nil {
			recordStoreError(s.Metrics, err)
			s.Logger.Error().Err(err).Str("schedule_id", id).Msg("failed to release schedule capacity")
		}
	}

	s.mirror(ctx, updated, now)
	return updated, nil
}

func (s *Scheduler) mirror(ctx context.Context, sc models.Schedule, now time.Time) {
	var (
		target models.IncidentStatus
		patch  = models.IncidentPatch{At: now}
	)
	switch sc.Status {
	case models.ScheduleInProgress:
		target = models.IncidentInProgress
	case models.ScheduleCompleted:
		target = models.IncidentResolved
		tech := sc.TechnicianID
		patch.ResolvedAt = &now
		patch.CompletedAt = &now
		patch.CompletedBy = &tech
	default:
		return
	}

	inc, err := s.Store.GetIncident(ctx, sc.IncidentID)
	if err != nil {
		s.Logger.Error().Err(err).Str("incident_id", sc.IncidentID).Msg("failed to load incident for schedule update")
		return
	}
	if inc.Status == target || !inc.Status.CanTransition(target) {
		return
	}
	if _, err := s.Incidents.transition(ctx, inc, target, patch); err != nil {
		s.Logger.Error().Err(err).
			Str("incident_id", inc.ID).
			Str("schedule_id", sc.ID).
			Msg("failed to mirror schedule status onto incident")
	}
}

func (s *Scheduler) duration(minutes int) int {
	if minutes > 0 {
		return minutes
	}
	if s.DefaultDuration > 0 {
		return s.DefaultDuration
	}
	return 30
}
