package models

import "time"

type Incident struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Location     string         `json:"location"`
	Category     string         `json:"category"`
	Status       IncidentStatus `json:"status"`
	Priority     int            `json:"priority"`
	Source       AlertSource    `json:"source"`
	ReportedBy   *string        `json:"reported_by"`
	AssignedTo   *string        `json:"assigned_to"`
	SLADeadline  *time.Time     `json:"sla_deadline"`
	SLAStartedAt *time.Time     `json:"sla_started_at"`
	Escalated    bool           `json:"escalated"`
	EscalatedAt  *time.Time     `json:"escalated_at"`
	ResolvedAt   *time.Time     `json:"resolved_at"`
	CompletedBy  *string        `json:"completed_by"`
	CompletedAt  *time.Time     `json:"completed_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Open reports whether the incident still needs work.
func (i Incident) Open() bool {
	return i.Status == IncidentNew || i.Status == IncidentInProgress
}

type Technician struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Specialization     string    `json:"specialization"`
	Active             bool      `json:"active"`
	Available          bool      `json:"available"`
	CurrentAssignments int       `json:"current_assignments"`
	MaxConcurrent      int       `json:"max_concurrent"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Schedulable reports whether the technician may take one more assignment.
func (t Technician) Schedulable() bool {
	return t.Active && t.Available && t.CurrentAssignments < t.MaxConcurrent
}

type Schedule struct {
	ID              string         `json:"id"`
	TechnicianID    string         `json:"technician_id"`
	IncidentID      string         `json:"incident_id"`
	ScheduledTime   time.Time      `json:"scheduled_time"`
	DurationMinutes int            `json:"duration_minutes"`
	Status          ScheduleStatus `json:"status"`
	HoldsCapacity   bool           `json:"holds_capacity"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (s Schedule) End() time.Time {
	return s.ScheduledTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Overlaps applies half-open interval intersection against [start, start+duration).
func (s Schedule) Overlaps(start time.Time, durationMinutes int) bool {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return start.Before(s.End()) && end.After(s.ScheduledTime)
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

const (
	RoleAdmin      = "admin"
	RoleReporter   = "reporter"
	RoleTechnician = "technician"
)

type AlertSource string

const (
	SourceReport     AlertSource = "report"
	SourcePrediction AlertSource = "prediction"
)

// Alert is a candidate failure signal considered for auto-assignment.
type Alert struct {
	Location      string      `json:"location" validate:"required"`
	Category      string      `json:"category" validate:"required"`
	DaysToFailure *float64    `json:"days_to_failure,omitempty" validate:"omitempty,gte=0"`
	Confidence    *float64    `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=100"`
	ModelR2       *float64    `json:"model_r2,omitempty" validate:"omitempty,lte=1"`
	Source        AlertSource `json:"source,omitempty" validate:"omitempty,oneof=report prediction"`
	Title         string      `json:"title,omitempty"`
	Description   string      `json:"description,omitempty"`
	Priority      int         `json:"priority,omitempty" validate:"omitempty,gte=1,lte=5"`
	ReportedBy    string      `json:"reported_by,omitempty"`
}

// Report is a human-submitted incident before classification.
type Report struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Location    string `json:"location" validate:"required"`
	Category    string `json:"category" validate:"required"`
	ReportedBy  string `json:"reported_by" validate:"omitempty,uuid"`
}

type IncidentFilter struct {
	Statuses        []IncidentStatus
	Category        string
	TechnicianID    string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	OnlyUnescalated bool
}

// IncidentPatch holds the optional fields written alongside a status change.
// At is the update timestamp.
type IncidentPatch struct {
	At          time.Time
	ResolvedAt  *time.Time
	CompletedBy *string
	CompletedAt *time.Time
}

type ScheduleFilter struct {
	TechnicianID string
	IncidentID   string
	Statuses     []ScheduleStatus
	From         *time.Time
}

// AssignRequest carries everything the store writes when an incident is
// handed to a technician.
type AssignRequest struct {
	IncidentID   string
	TechnicianID string
	Priority     int
	SLAStartedAt time.Time
	SLADeadline  time.Time
}

// ScheduleRequest creates a time-boxed work slot.
type ScheduleRequest struct {
	TechnicianID    string    `json:"technician_id" validate:"required,uuid"`
	IncidentID      string    `json:"incident_id" validate:"required,uuid"`
	ScheduledTime   time.Time `json:"scheduled_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,gte=1,lte=1440"`

	// HoldCapacity makes the schedule own one unit of the technician's
	// capacity; the assignment engine passes false because the incident
	// assignment already holds it.
	HoldCapacity bool `json:"-"`
}
