package models

import (
	"fmt"
	"strings"
)

type IncidentStatus string

const (
	IncidentNew        IncidentStatus = "new"
	IncidentInProgress IncidentStatus = "in-progress"
	IncidentResolved   IncidentStatus = "resolved"
	IncidentCancelled  IncidentStatus = "cancelled"
)

var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentNew:        {IncidentInProgress, IncidentResolved, IncidentCancelled},
	IncidentInProgress: {IncidentResolved, IncidentCancelled},
}

// OpenIncidentStatuses are the states the dedup window and the sweep look at.
var OpenIncidentStatuses = []IncidentStatus{IncidentNew, IncidentInProgress}

// ParseIncidentStatus accepts the stored spellings, including the legacy
// "pending" and "in_progress" forms.
func ParseIncidentStatus(raw string) (IncidentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "new", "pending", "open":
		return IncidentNew, nil
	case "in-progress", "in_progress", "inprogress":
		return IncidentInProgress, nil
	case "resolved", "closed":
		return IncidentResolved, nil
	case "cancelled", "canceled":
		return IncidentCancelled, nil
	}
	return "", fmt.Errorf("unknown incident status %q", raw)
}

func (s IncidentStatus) Terminal() bool {
	return s == IncidentResolved || s == IncidentCancelled
}

func (s IncidentStatus) CanTransition(to IncidentStatus) bool {
	for _, next := range incidentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type ScheduleStatus string

const (
	ScheduleScheduled  ScheduleStatus = "scheduled"
	ScheduleInProgress ScheduleStatus = "in-progress"
	ScheduleCompleted  ScheduleStatus = "completed"
	ScheduleCancelled  ScheduleStatus = "cancelled"
)

var scheduleTransitions = map[ScheduleStatus][]ScheduleStatus{
	ScheduleScheduled:  {ScheduleInProgress, ScheduleCancelled},
	ScheduleInProgress: {ScheduleCompleted, ScheduleCancelled},
}

// ActiveScheduleStatuses occupy a technician's time slot.
var ActiveScheduleStatuses = []ScheduleStatus{ScheduleScheduled, ScheduleInProgress}

func ParseScheduleStatus(raw string) (ScheduleStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "scheduled":
		return ScheduleScheduled, nil
	case "in-progress", "in_progress", "inprogress":
		return ScheduleInProgress, nil
	case "completed", "done":
		return ScheduleCompleted, nil
	case "cancelled", "canceled":
		return ScheduleCancelled, nil
	}
	return "", fmt.Errorf("unknown schedule status %q", raw)
}

func (s ScheduleStatus) Active() bool {
	return s == ScheduleScheduled || s == ScheduleInProgress
}

func (s ScheduleStatus) CanTransition(to ScheduleStatus) bool {
	for _, next := range scheduleTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
