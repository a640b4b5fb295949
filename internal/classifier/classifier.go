package classifier

import (
	"context"

	"github.com/fixflow/backend/internal/models"
)

const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 3
)

// Classifier scores a human report from 1 (low) to 5 (critical).
type Classifier interface {
	Classify(ctx context.Context, r models.Report) (int, error)
}

// Clamp forces a classifier score into the valid priority range.
func Clamp(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}
