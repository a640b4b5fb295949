package service

import (
	"context"
	"time"

	"github.com/fixflow/backend/internal/models"
)

type AgingBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type AgingAnalysis struct {
	Total             int           `json:"total"`
	Buckets           []AgingBucket `json:"buckets"`
	AverageAgeMinutes float64       `json:"average_age_minutes"`
	OldestAgeMinutes  float64       `json:"oldest_age_minutes"`
	Breached          int           `json:"breached"`
	AtRisk            int           `json:"at_risk"`
	SLAMinutes        int           `json:"sla_minutes"`
	GeneratedAt       time.Time     `json:"generated_at"`
}

var agingBounds = []struct {
	label string
	upper time.Duration
}{
	{"0-5m", 5 * time.Minute},
	{"5-10m", 10 * time.Minute},
	{"10-15m", 15 * time.Minute},
	{"15-30m", 30 * time.Minute},
	{"30-60m", time.Hour},
	{"1-2h", 2 * time.Hour},
	{"2-4h", 4 * time.Hour},
	{"4h+", 0},
}

type Aging struct {
	Store      Store
	SLAMinutes int
	Now        Clock
}

// Analyze reads incidents matching f (open ones when no status is given)
// and summarises their age.
func (a *Aging) Analyze(ctx context.Context, f models.IncidentFilter) (AgingAnalysis, error) {
	if len(f.Statuses) == 0 {
		f.Statuses = models.OpenIncidentStatuses
	}
	if f.TechnicianID != "" {
		if err := validID("analytics.aging", "technician", f.TechnicianID); err != nil {
			return AgingAnalysis{}, err
		}
	}
	incidents, err := a.Store.ListIncidents(ctx, f)
	if err != nil {
		return AgingAnalysis{}, err
	}
	return ComputeAging(incidents, a.Now.now(), a.SLAMinutes), nil
}

func ComputeAging(incidents []models.Incident, now time.Time, slaMinutes int) AgingAnalysis {
	out := AgingAnalysis{
		Total:       len(incidents),
		Buckets:     make([]AgingBucket, len(agingBounds)),
		SLAMinutes:  slaMinutes,
		GeneratedAt: now,
	}
	for i, b := range agingBounds {
		out.Buckets[i].Label = b.label
	}
	if len(incidents) == 0 {
		return out
	}

	sla := time.Duration(slaMinutes) * time.Minute
	riskFrom := time.Duration(float64(sla) * 0.8)
	var total, oldest time.Duration
	for _, inc := range incidents {
		age := now.Sub(inc.CreatedAt)
		if age < 0 {
			age = 0
		}
		total += age
		if age > oldest {
			oldest = age
		}
		out.Buckets[bucketFor(age)].Count++

		switch {
		case age > sla:
			out.Breached++
		case age >= riskFrom:
			out.AtRisk++
		}
	}
	out.AverageAgeMinutes = total.Minutes() / float64(len(incidents))
	out.OldestAgeMinutes = oldest.Minutes()
	return out
}

func bucketFor(age time.Duration) int {
	for i, b := range agingBounds {
		if b.upper == 0 || age < b.upper {
			return i
		}
	}
	return len(agingBounds) - 1
}
