package service

import "time"

type OutcomeKind string

const (
	OutcomeAssigned     OutcomeKind = "assigned"
	OutcomeQualityGate  OutcomeKind = "quality_gate"
	OutcomeCooldown     OutcomeKind = "cooldown"
	OutcomeDuplicate    OutcomeKind = "duplicate_window"
	OutcomeRateLimited  OutcomeKind = "rate_limited"
	OutcomeNoTechnician OutcomeKind = "no_technician"
)

// Outcome is the result of one alert submission. Anything other than
// OutcomeAssigned is a deliberate refusal, not a failure.
type Outcome struct {
	Kind               OutcomeKind `json:"outcome"`
	Reason             string      `json:"reason,omitempty"`
	IncidentID         string      `json:"incident_id,omitempty"`
	TechnicianID       string      `json:"technician_id,omitempty"`
	SLADeadline        *time.Time  `json:"sla_deadline,omitempty"`
	ExistingIncidentID string      `json:"existing_incident_id,omitempty"`
	ScheduleID         string      `json:"schedule_id,omitempty"`
}

func (o Outcome) Accepted() bool {
	return o.Kind == OutcomeAssigned
}

func rejected(kind OutcomeKind, reason string) Outcome {
	return Outcome{Kind: kind, Reason: reason}
}

type BatchResult struct {
	Index   int      `json:"index"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// BatchSummary reports a ProcessAlerts run. Failed counts every alert that
// did not end assigned; Errors is the subset that failed with an error.
type BatchSummary struct {
	Assigned int                 `json:"assigned"`
	Failed   int                 `json:"failed"`
	Errors   int                 `json:"errors"`
	Reasons  map[OutcomeKind]int `json:"reasons"`
	Results  []BatchResult       `json:"results"`
}
