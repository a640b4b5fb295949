package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/metrics"
	"github.com/fixflow/backend/internal/models"
)

// Store is the persistence contract shared by the Postgres and in-memory
// implementations in internal/db.
type Store interface {
	Ping(ctx context.Context) error

	ListTechnicians(ctx context.Context) ([]models.Technician, error)
	GetTechnician(ctx context.Context, id string) (models.Technician, error)
	CreateTechnician(ctx context.Context, t models.Technician) (models.Technician, error)
	AdjustAssignmentCount(ctx context.Context, id string, delta int) (models.Technician, error)
	SetAvailability(ctx context.Context, id string, active, available bool) (models.Technician, error)

	ListUsersByRole(ctx context.Context, role string) ([]models.User, error)

	CreateIncident(ctx context.Context, i models.Incident) (models.Incident, error)
	GetIncident(ctx context.Context, id string) (models.Incident, error)
	ListIncidents(ctx context.Context, f models.IncidentFilter) ([]models.Incident, error)
	HasRecentAssignment(ctx context.Context, location, category string, since time.Time) (bool, error)
	FindOpenIncident(ctx context.Context, location, category string, since time.Time) (*models.Incident, error)
	AssignIncident(ctx context.Context, req models.AssignRequest) (models.Incident, error)
	ReassignIncident(ctx context.Context, incidentID, fromTechnician, toTechnician string, at time.Time) (models.Incident, error)
	MarkEscalated(ctx context.Context, id string, at time.Time) (bool, error)
	TransitionIncident(ctx context.Context, id string, from, to models.IncidentStatus, patch models.IncidentPatch) (models.Incident, error)

	HasOverlap(ctx context.Context, technicianID string, start time.Time, durationMinutes int) (bool, error)
	CreateSchedule(ctx context.Context, sc models.Schedule) (models.Schedule, error)
	GetSchedule(ctx context.Context, id string) (models.Schedule, error)
	ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error)
	TransitionSchedule(ctx context.Context, id string, from, to models.ScheduleStatus, at time.Time) (models.Schedule, error)
}

// Clock returns the current time; nil means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

var validate = validator.New()

func validID(op, kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound(op, kind+" not found")
	}
	return nil
}

// recordStoreError counts store failures by operation so timeouts show up
// separately from gate rejections.
func recordStoreError(m *metrics.Metrics, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindStore {
		m.StoreError(ae.Op)
	}
}
