package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/locks"
	"github.com/fixflow/backend/internal/metrics"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/notify"
)

const sweepLockKey = "sweep:escalation"

type SweepResult struct {
	Escalated   int  `json:"escalated"`
	Rescheduled int  `json:"rescheduled"`
	Skipped     int  `json:"skipped"`
	LockHeld    bool `json:"lock_held,omitempty"`
}

// Escalator flags SLA breaches and moves future work off technicians who
// went unavailable. Both scans only act through conditional updates, so a
// rerun never repeats work already done.
type Escalator struct {
	Store     Store
	Directory *Directory
	Scheduler *Scheduler
	Locker    locks.Locker
	Notifier  *notify.Dispatcher
	Metrics   *metrics.Metrics
	Config    config.Dispatch
	Logger    zerolog.Logger
	Now       Clock
	LockTTL   time.Duration

	group singleflight.Group
}

func (e *Escalator) RunEscalationSweep(ctx context.Context) (SweepResult, error) {
	v, err, shared := e.group.Do("sweep", func() (any, error) {
		return e.sweepLocked(ctx)
	})
	if err != nil {
		return SweepResult{}, err
	}
	res := v.(SweepResult)
	if shared {
		e.Logger.Debug().Msg("joined in-flight escalation sweep")
	}
	return res, nil
}

func (e *Escalator) sweepLocked(ctx context.Context) (SweepResult, error) {
	ttl := e.LockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	release, err := e.Locker.Acquire(ctx, sweepLockKey, ttl)
	if errors.Is(err, locks.ErrHeld) {
		e.Logger.Info().Msg("escalation sweep already running elsewhere")
		return SweepResult{LockHeld: true}, nil
	}
	if err != nil {
		return SweepResult{}, apperr.Wrap(apperr.KindStore, "sweep.lock", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			e.Logger.Warn().Err(err).Msg("failed to release sweep lock")
		}
	}()

	start := time.Now()
	defer func() { e.Metrics.ObserveSweep(time.Since(start)) }()

	var res SweepResult
	escalated, err := e.escalateBreaches(ctx)
	if err != nil {
		recordStoreError(e.Metrics, err)
		return SweepResult{}, err
	}
	res.Escalated = escalated

	rescheduled, skipped, err := e.rescheduleStale(ctx)
	if err != nil {
		recordStoreError(e.Metrics, err)
		return SweepResult{}, err
	}
	res.Rescheduled = rescheduled
	res.Skipped = skipped

	e.Logger.Info().
		Int("escalated", res.Escalated).
		Int("rescheduled", res.Rescheduled).
		Int("skipped", res.Skipped).
		Dur("elapsed", time.Since(start)).
		Msg("escalation sweep finished")
	return res, nil
}

func (e *Escalator) escalateBreaches(ctx context.Context) (int, error) {
	now := e.Now.now()
	sla := e.Config.SLA()
	cutoff := now.Add(-sla)
	candidates, err := e.Store.ListIncidents(ctx, models.IncidentFilter{
		Statuses:        models.OpenIncidentStatuses,
		CreatedTo:       &cutoff,
		OnlyUnescalated: true,
	})
	if err != nil {
		return 0, err
	}

	var (
		admins      []models.User
		adminsReady bool
		count       int
	)
	for _, inc := range candidates {
		if inc.Escalated || now.Sub(inc.CreatedAt) <= sla {
			continue
		}
		flipped, err := e.Store.MarkEscalated(ctx, inc.ID, now)
		if err != nil {
			return count, err
		}
		if !flipped {
			continue
		}
		count++
		e.Metrics.Escalated(1)

		if !adminsReady {
			admins, err = e.Store.ListUsersByRole(ctx, models.RoleAdmin)
			if err != nil {
				e.Logger.Error().Err(err).Msg("failed to load administrators for escalation notice")
			}
			adminsReady = true
		}
		e.notifyEscalation(ctx, inc, now, admins)
	}
	return count, nil
}

func (e *Escalator) notifyEscalation(ctx context.Context, inc models.Incident, now time.Time, admins []models.User) {
	age := now.Sub(inc.CreatedAt).Round(time.Minute)
	meta := map[string]string{
		"incident_id":  inc.ID,
		"location":     inc.Location,
		"category":     inc.Category,
		"escalated_at": now.Format(time.RFC3339),
	}
	if inc.ReportedBy != nil {
		e.Notifier.Send(ctx, notify.Notification{
			UserID:   *inc.ReportedBy,
			Type:     notify.TypeEscalation,
			Message:  fmt.Sprintf("Your report %q has been escalated after %s without resolution", inc.Title, age),
			Metadata: meta,
		})
	}
	for _, admin := range admins {
		e.Notifier.Send(ctx, notify.Notification{
			UserID:   admin.ID,
			Type:     notify.TypeEscalation,
			Message:  fmt.Sprintf("SLA breached: %s at %s open for %s", inc.Title, inc.Location, age),
			Metadata: meta,
		})
	}
}

// rescheduleStale moves future scheduled work off technicians that are no
// longer active or available. A schedule with no free replacement is left
// for the next sweep.
func (e *Escalator) rescheduleStale(ctx context.Context) (int, int, error) {
	now := e.Now.now()
	pending, err := e.Store.ListSchedules(ctx, models.ScheduleFilter{
		Statuses: []models.ScheduleStatus{models.ScheduleScheduled},
		From:     &now,
	})
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	techs, err := e.Directory.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	byID := make(map[string]models.Technician, len(techs))
	for _, t := range techs {
		byID[t.ID] = t
	}

	var moved, skipped int
	for _, sc := range pending {
		current, ok := byID[sc.TechnicianID]
		if ok && current.Active && current.Available {
			continue
		}
		newTech, err := e.moveSchedule(ctx, sc, techs)
		if err != nil {
			return moved, skipped, err
		}
		if newTech == "" {
			skipped++
			e.Metrics.Rescheduled("skipped")
			continue
		}
		moved++
		e.Metrics.Rescheduled("moved")

		// keep the in-memory view in step so later schedules see the new load
		for i := range techs {
			if techs[i].ID == newTech {
				techs[i].CurrentAssignments++
			}
		}
	}
	return moved, skipped, nil
}

func (e *Escalator) moveSchedule(ctx context.Context, sc models.Schedule, techs []models.Technician) (string, error) {
	inc, err := e.Store.GetIncident(ctx, sc.IncidentID)
	if err != nil {
		return "", err
	}
	log := e.Logger.With().Str("schedule_id", sc.ID).Str("incident_id", inc.ID).Logger()

	elig := FilterEligibleTechnicians(techs, inc.Category, ModeGeneral, map[string]bool{sc.TechnicianID: true})
	var free []models.Technician
	for _, cand := range elig.Ranked {
		overlap, err := e.Scheduler.HasOverlap(ctx, cand.ID, sc.ScheduledTime, sc.DurationMinutes)
		if err != nil {
			return "", err
		}
		if !overlap {
			free = append(free, cand)
		}
	}
	if len(free) == 0 {
		log.Info().Interface("stages", elig.StageCounts()).Msg("no replacement technician, leaving schedule")
		return "", nil
	}

	ownsAssignment := inc.AssignedTo != nil && *inc.AssignedTo == sc.TechnicianID && inc.Open()
	for _, cand := range free {
		created, err := e.Scheduler.CreateSchedule(ctx, models.ScheduleRequest{
			TechnicianID:    cand.ID,
			IncidentID:      inc.ID,
			ScheduledTime:   sc.ScheduledTime,
			DurationMinutes: sc.DurationMinutes,
			HoldCapacity:    sc.HoldsCapacity,
		})
		if err != nil {
			if replacementRejected(err) {
				continue
			}
			return "", err
		}

		now := e.Now.now()
		if ownsAssignment {
			if _, err := e.Store.ReassignIncident(ctx, inc.ID, sc.TechnicianID, cand.ID, now); err != nil {
				e.dropReplacement(ctx, created, now)
				if replacementRejected(err) {
					continue
				}
				if apperr.Is(err, apperr.KindConflict) {
					log.Info().Msg("incident changed hands during sweep, leaving schedule")
					return "", nil
				}
				return "", err
			}
		}

		// the replacement is in place; only now retire the stale slot
		if _, err := e.Store.TransitionSchedule(ctx, sc.ID, models.ScheduleScheduled, models.ScheduleCancelled, now); err != nil {
			log.Warn().Err(err).Msg("stale schedule not cancelled after move")
		} else if sc.HoldsCapacity {
			if _, err := e.Store.AdjustAssignmentCount(ctx, sc.TechnicianID, -1); err != nil {
				log.Error().Err(err).Msg("failed to release stale schedule capacity")
			}
		}

		e.Notifier.Send(ctx, notify.Notification{
			UserID:  cand.ID,
			Type:    notify.TypeReschedule,
			Message: fmt.Sprintf("Work on %q at %s has been reassigned to you", inc.Title, inc.Location),
			Metadata: map[string]string{
				"incident_id":    inc.ID,
				"schedule_id":    created.ID,
				"scheduled_time": sc.ScheduledTime.Format(time.RFC3339),
				"replaces":       sc.TechnicianID,
			},
		})
		log.Info().Str("from", sc.TechnicianID).Str("to", cand.ID).Msg("schedule moved")
		return cand.ID, nil
	}

	log.Info().Msg("every replacement was rejected, leaving schedule")
	return "", nil
}

func replacementRejected(err error) bool {
	return apperr.Is(err, apperr.KindCapacityExceeded) ||
		apperr.Is(err, apperr.KindOverlap) ||
		apperr.Is(err, apperr.KindUnavailable)
}

// dropReplacement undoes a replacement slot whose reassignment failed.
func (e *Escalator) dropReplacement(ctx context.Context, created models.Schedule, now time.Time) {
	if _, err := e.Store.TransitionSchedule(ctx, created.ID, models.ScheduleScheduled, models.ScheduleCancelled, now); err != nil {
		e.Logger.Error().Err(err).Str("schedule_id", created.ID).Msg("failed to cancel replacement schedule")
		return
	}
	if created.HoldsCapacity {
		if _, err := e.Store.AdjustAssignmentCount(ctx, created.TechnicianID, -1); err != nil {
			e.Logger.Error().Err(err).Str("technician_id", created.TechnicianID).Msg("failed to release replacement capacity")
		}
	}
}

// Sweeper runs the escalation sweep on a fixed interval until ctx ends.
type Sweeper struct {
	Escalator *Escalator
	Interval  time.Duration
	Logger    zerolog.Logger
}

func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Logger.Info().Dur("interval", interval).Msg("escalation sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info().Msg("escalation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Escalator.RunEscalationSweep(ctx); err != nil {
				s.Logger.Error().Err(err).Msg("escalation sweep failed")
			}
		}
	}
}
