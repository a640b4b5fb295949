package service

import (
	"sort"
	"strings"

	"github.com/fixflow/backend/internal/models"
)

type SelectionMode int

const (
	// ModeCritical takes the first match in directory order.
	ModeCritical SelectionMode = iota
	// ModeGeneral prefers the least loaded candidate.
	ModeGeneral
)

func (m SelectionMode) String() string {
	if m == ModeCritical {
		return "critical"
	}
	return "general"
}

const ReasonNoTechnician = "NO_TECHNICIAN_AVAILABLE"

var categorySpecializations = map[string][]string{
	"electrical": {"Electrical"},
	"water":      {"Plumbing"},
	"plumbing":   {"Plumbing"},
	"it":         {"IT"},
	"hostel":     {"General", "HVAC"},
	"hvac":       {"HVAC"},
	"garbage":    {"General"},
}

// SpecializationsFor maps an incident category onto the specialization tags
// that can work it, falling back to General.
func SpecializationsFor(category string) []string {
	if specs, ok := categorySpecializations[strings.ToLower(strings.TrimSpace(category))]; ok {
		return specs
	}
	return []string{"General"}
}

type EligibilityResult struct {
	// Ranked lists every schedulable technician in the order they should be
	// tried: specialists first, then the fallback pool.
	Ranked          []models.Technician
	ReasonCode      string
	ReasonText      string
	Stages          []EligibilityStage
	Specializations []string
}

type EligibilityStage struct {
	Name       string
	Candidates []models.Technician
}

// StageCounts flattens the stages for logging.
func (r EligibilityResult) StageCounts() map[string]int {
	out := make(map[string]int, len(r.Stages))
	for _, s := range r.Stages {
		out[s.Name] = len(s.Candidates)
	}
	return out
}

func FilterEligibleTechnicians(techs []models.Technician, category string, mode SelectionMode, exclude map[string]bool) EligibilityResult {
	specs := SpecializationsFor(category)
	result := EligibilityResult{Specializations: specs}

	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "directory",
		Candidates: techs,
	})

	schedulable := filterTechnicians(techs, func(t models.Technician) bool {
		return t.Schedulable() && !exclude[t.ID]
	})
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "schedulable",
		Candidates: schedulable,
	})
	if len(schedulable) == 0 {
		result.ReasonCode = ReasonNoTechnician
		result.ReasonText = "No active, available technician under capacity"
		return result
	}

	var specialists []models.Technician
	seen := map[string]bool{}
	for _, spec := range specs {
		for _, t := range schedulable {
			if !seen[t.ID] && strings.EqualFold(strings.TrimSpace(t.Specialization), spec) {
				specialists = append(specialists, t)
				seen[t.ID] = true
			}
		}
	}
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "specialization",
		Candidates: specialists,
	})

	fallback := filterTechnicians(schedulable, func(t models.Technician) bool {
		return !seen[t.ID]
	})
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "fallback",
		Candidates: fallback,
	})

	if mode == ModeGeneral {
		rankByLoad(specialists)
		rankByLoad(fallback)
	}
	result.Ranked = append(append([]models.Technician{}, specialists...), fallback...)
	return result
}

// rankByLoad orders by current assignments, keeping directory order for ties.
func rankByLoad(techs []models.Technician) {
	sort.SliceStable(techs, func(i, j int) bool {
		return techs[i].CurrentAssignments < techs[j].CurrentAssignments
	})
}

func filterTechnicians(techs []models.Technician, keep func(models.Technician) bool) []models.Technician {
	out := make([]models.Technician, 0, len(techs))
	for _, t := range techs {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
