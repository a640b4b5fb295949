package ratelimit

import (
	"context"
	"time"
)

const (
	ReasonTechnicianLimit = "technician daily limit reached"
	ReasonSystemLimit     = "system daily limit reached"
)

// Decision is the result of checking the daily caps for one technician.
type Decision struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	TechnicianCount int    `json:"technician_count"`
	SystemCount     int    `json:"system_count"`
}

type Limits struct {
	PerTechnician int
	SystemWide    int
}

// Limiter counts auto-assignments per UTC day.
type Limiter interface {
	Check(ctx context.Context, technicianID string) (Decision, error)
	Reserve(ctx context.Context, technicianID string) (Decision, error)
	Release(ctx context.Context, technicianID string) error
}

func dayStamp(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// nextMidnight returns the start of the next UTC day.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

func technicianKey(technicianID string, now time.Time) string {
	return "ratelimit:" + technicianID + ":" + dayStamp(now)
}

func systemKey(now time.Time) string {
	return "ratelimit:system:" + dayStamp(now)
}

func decide(limits Limits, techCount, systemCount int) Decision {
	d := Decision{Allowed: true, TechnicianCount: techCount, SystemCount: systemCount}
	switch {
	case techCount >= limits.PerTechnician:
		d.Allowed = false
		d.Reason = ReasonTechnicianLimit
	case systemCount >= limits.SystemWide:
		d.Allowed = false
		d.Reason = ReasonSystemLimit
	}
	return d
}
