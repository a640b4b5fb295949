package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/models"
)

// MemoryStore keeps everything in process. It backs local runs without
// DATABASE_URL and the service tests; one mutex serializes every mutation
// so the conditional updates behave like their SQL counterparts.
type MemoryStore struct {
	mu          sync.Mutex
	technicians map[string]*models.Technician
	techOrder   []string
	users       map[string]models.User
	incidents   map[string]*models.Incident
	schedules   map[string]*models.Schedule
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		technicians: map[string]*models.Technician{},
		users:       map[string]models.User{},
		incidents:   map[string]*models.Incident{},
		schedules:   map[string]*models.Schedule{},
		now:         time.Now,
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryStore) ListTechnicians(_ context.Context) ([]models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Technician, 0, len(m.techOrder))
	for _, id := range m.techOrder {
		out = append(out, *m.technicians[id])
	}
	return out, nil
}

func (m *MemoryStore) GetTechnician(_ context.Context, id string) (models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.technicians[id]
	if !ok {
		return models.Technician{}, apperr.NotFound("technicians.get", "record not found")
	}
	return *t, nil
}

func (m *MemoryStore) CreateTechnician(_ context.Context, t models.Technician) (models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.technicians[t.ID]; ok {
		return models.Technician{}, apperr.New(apperr.KindConflict, "technicians.create", "technician already exists")
	}
	t.UpdatedAt = m.now().UTC()
	cp := t
	m.technicians[t.ID] = &cp
	m.techOrder = append(m.techOrder, t.ID)
	return t, nil
}

func (m *MemoryStore) AdjustAssignmentCount(_ context.Context, id string, delta int) (models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.adjustLocked(id, delta, false)
	if err != nil {
		return models.Technician{}, err
	}
	return *t, nil
}

func (m *MemoryStore) adjustLocked(id string, delta int, requireAvailable bool) (*models.Technician, error) {
	t, ok := m.technicians[id]
	if !ok {
		return nil, apperr.NotFound("technicians.adjust", "record not found")
	}
	if delta < 0 {
		t.CurrentAssignments += delta
		if t.CurrentAssignments < 0 {
			t.CurrentAssignments = 0
		}
		t.UpdatedAt = m.now().UTC()
		return t, nil
	}
	if requireAvailable && (!t.Active || !t.Available) {
		return nil, apperr.New(apperr.KindUnavailable, "technicians.adjust", "technician is not available")
	}
	if t.CurrentAssignments+delta > t.MaxConcurrent {
		return nil, apperr.New(apperr.KindCapacityExceeded, "technicians.adjust",
			fmt.Sprintf("technician at capacity (%d/%d)", t.CurrentAssignments, t.MaxConcurrent))
	}
	t.CurrentAssignments += delta
	t.UpdatedAt = m.now().UTC()
	return t, nil
}

func (m *MemoryStore) SetAvailability(_ context.Context, id string, active, available bool) (models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.technicians[id]
	if !ok {
		return models.Technician{}, apperr.NotFound("technicians.availability", "record not found")
	}
	t.Active = active
	t.Available = available
	t.UpdatedAt = m.now().UTC()
	return *t, nil
}

func (m *MemoryStore) ListUsersByRole(_ context.Context, role string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateIncident(_ context.Context, i models.Incident) (models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.incidents[i.ID]; ok {
		return models.Incident{}, apperr.New(apperr.KindConflict, "incidents.create", "incident already exists")
	}
	i.UpdatedAt = i.CreatedAt
	cp := i
	m.incidents[i.ID] = &cp
	return i, nil
}

func (m *MemoryStore) GetIncident(_ context.Context, id string) (models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.incidents[id]
	if !ok {
		return models.Incident{}, apperr.NotFound("incidents.get", "record not found")
	}
	return *i, nil
}

func (m *MemoryStore) ListIncidents(_ context.Context, f models.IncidentFilter) ([]models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Incident
	for _, i := range m.incidents {
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, i.Status) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(f.Category, i.Category) {
			continue
		}
		if f.TechnicianID != "" && (i.AssignedTo == nil || *i.AssignedTo != f.TechnicianID) {
			continue
		}
		if f.CreatedFrom != nil && i.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && i.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		if f.OnlyUnescalated && i.Escalated {
			continue
		}
		out = append(out, *i)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func containsStatus(statuses []models.IncidentStatus, s models.IncidentStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (m *MemoryStore) HasRecentAssignment(_ context.Context, location, category string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, i := range m.incidents {
		if !strings.EqualFold(i.Location, location) || !strings.EqualFold(i.Category, category) {
			continue
		}
		if i.AssignedTo != nil && i.SLAStartedAt != nil && !i.SLAStartedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) FindOpenIncident(_ context.Context, location, category string, since time.Time) (*models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *models.Incident
	for _, i := range m.incidents {
		if !i.Open() || i.CreatedAt.Before(since) {
			continue
		}
		if !strings.EqualFold(i.Location, location) || !strings.EqualFold(i.Category, category) {
			continue
		}
		if found == nil || i.CreatedAt.After(found.CreatedAt) {
			found = i
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (m *MemoryStore) AssignIncident(_ context.Context, req models.AssignRequest) (models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.incidents[req.IncidentID]
	if !ok || i.AssignedTo != nil {
		return models.Incident{}, apperr.New(apperr.KindConflict, "incidents.assign", "incident missing or already assigned")
	}
	if _, err := m.adjustLocked(req.TechnicianID, 1, true); err != nil {
		return models.Incident{}, err
	}

	tech := req.TechnicianID
	started := req.SLAStartedAt
	deadline := req.SLADeadline
	i.AssignedTo = &tech
	i.Priority = req.Priority
	i.SLAStartedAt = &started
	i.SLADeadline = &deadline
	if !i.Status.Terminal() {
		i.Status = models.IncidentInProgress
	}
	i.UpdatedAt = started
	return *i, nil
}

func (m *MemoryStore) ReassignIncident(_ context.Context, incidentID, fromTechnician, toTechnician string, at time.Time) (models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.incidents[incidentID]
	if !ok {
		return models.Incident{}, apperr.NotFound("incidents.reassign", "record not found")
	}
	if i.AssignedTo == nil || *i.AssignedTo != fromTechnician {
		return models.Incident{}, apperr.New(apperr.KindConflict, "incidents.reassign", "incident no longer assigned to previous technician")
	}
	if _, err := m.adjustLocked(toTechnician, 1, true); err != nil {
		return models.Incident{}, err
	}
	if _, err := m.adjustLocked(fromTechnician, -1, false); err != nil {
		return models.Incident{}, err
	}
	to := toTechnician
	i.AssignedTo = &to
	i.UpdatedAt = at
	return *i, nil
}

func (m *MemoryStore) MarkEscalated(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.incidents[id]
	if !ok || i.Escalated || !i.Open() {
		return false, nil
	}
	escalatedAt := at
	i.Escalated = true
	i.EscalatedAt = &escalatedAt
	i.UpdatedAt = at
	return true, nil
}

func (m *MemoryStore) TransitionIncident(_ context.Context, id string, from, to models.IncidentStatus, patch models.IncidentPatch) (models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.incidents[id]
	if !ok {
		return models.Incident{}, apperr.NotFound("incidents.transition", "record not found")
	}
	if i.Status != from {
		return models.Incident{}, apperr.New(apperr.KindConflict, "incidents.transition", "incident status changed concurrently")
	}
	i.Status = to
	if patch.ResolvedAt != nil {
		v := *patch.ResolvedAt
		i.ResolvedAt = &v
	}
	if patch.CompletedBy != nil {
		v := *patch.CompletedBy
		i.CompletedBy = &v
	}
	if patch.CompletedAt != nil {
		v := *patch.CompletedAt
		i.CompletedAt = &v
	}
	i.UpdatedAt = patch.At
	return *i, nil
}

func (m *MemoryStore) HasOverlap(_ context.Context, technicianID string, start time.Time, durationMinutes int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapLocked(technicianID, start, durationMinutes), nil
}

func (m *MemoryStore) overlapLocked(technicianID string, start time.Time, durationMinutes int) bool {
	for _, sc := range m.schedules {
		if sc.TechnicianID != technicianID || !sc.Status.Active() {
			continue
		}
		if sc.Overlaps(start, durationMinutes) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreateSchedule(_ context.Context, sc models.Schedule) (models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.technicians[sc.TechnicianID]
	if !ok {
		return models.Schedule{}, apperr.NotFound("schedules.create", "technician not found")
	}
	if _, ok := m.incidents[sc.IncidentID]; !ok {
		return models.Schedule{}, apperr.NotFound("schedules.create", "incident not found")
	}
	if m.overlapLocked(sc.TechnicianID, sc.ScheduledTime, sc.DurationMinutes) {
		return models.Schedule{}, apperr.New(apperr.KindOverlap, "schedules.create", "technician already booked for this slot")
	}
	if !t.Active || !t.Available {
		return models.Schedule{}, apperr.New(apperr.KindUnavailable, "schedules.create", "technician is not available")
	}
	if sc.HoldsCapacity {
		if _, err := m.adjustLocked(sc.TechnicianID, 1, true); err != nil {
			return models.Schedule{}, err
		}
	}
	sc.UpdatedAt = sc.CreatedAt
	cp := sc
	m.schedules[sc.ID] = &cp
	return sc, nil
}

func (m *MemoryStore) GetSchedule(_ context.Context, id string) (models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.schedules[id]
	if !ok {
		return models.Schedule{}, apperr.NotFound("schedules.get", "record not found")
	}
	return *sc, nil
}

func (m *MemoryStore) ListSchedules(_ context.Context, f models.ScheduleFilter) ([]models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Schedule
	for _, sc := range m.schedules {
		if f.TechnicianID != "" && sc.TechnicianID != f.TechnicianID {
			continue
		}
		if f.IncidentID != "" && sc.IncidentID != f.IncidentID {
			continue
		}
		if len(f.Statuses) > 0 {
			match := false
			for _, st := range f.Statuses {
				if st == sc.Status {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if f.From != nil && !sc.ScheduledTime.After(*f.From) {
			continue
		}
		out = append(out, *sc)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].ScheduledTime.Equal(out[b].ScheduledTime) {
			return out[a].ScheduledTime.Before(out[b].ScheduledTime)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (m *MemoryStore) TransitionSchedule(_ context.Context, id string, from, to models.ScheduleStatus, at time.Time) (models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.schedules[id]
	if !ok {
		return models.Schedule{}, apperr.NotFound("schedules.transition", "record not found")
	}
	if sc.Status != from {
		return models.Schedule{}, apperr.New(apperr.KindConflict, "schedules.transition", "schedule status changed concurrently")
	}
	sc.Status = to
	sc.UpdatedAt = at
	return *sc, nil
}
