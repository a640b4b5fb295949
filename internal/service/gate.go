package service

import (
	"fmt"

	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/models"
)

// QualityGate drops prediction alerts too weak to act on.
type QualityGate struct {
	MinConfidence    float64
	MaxDaysToFailure float64
	MinModelR2       float64
}

func NewQualityGate(cfg config.Dispatch) QualityGate {
	return QualityGate{
		MinConfidence:    cfg.MinConfidence,
		MaxDaysToFailure: cfg.MaxDaysToFailure,
		MinModelR2:       cfg.MinModelR2,
	}
}

// Check returns false and the first failing rule when the alert must be
// dropped. Absent confidence or R² values are not checked.
func (g QualityGate) Check(a models.Alert) (bool, string) {
	if a.Confidence != nil && *a.Confidence < g.MinConfidence {
		return false, fmt.Sprintf("confidence %.1f below %.1f", *a.Confidence, g.MinConfidence)
	}
	if a.DaysToFailure != nil && *a.DaysToFailure > g.MaxDaysToFailure {
		return false, fmt.Sprintf("days to failure %.1f above %.1f", *a.DaysToFailure, g.MaxDaysToFailure)
	}
	if a.ModelR2 != nil && *a.ModelR2 < g.MinModelR2 {
		return false, fmt.Sprintf("model r2 %.2f below %.2f", *a.ModelR2, g.MinModelR2)
	}
	return true, ""
}
