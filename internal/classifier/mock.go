package classifier

import (
	"context"
	"strings"

	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/utils"
)

// MockClassifier gives a stable score per report text so local runs and
// tests see repeatable priorities without the model service.
type MockClassifier struct{}

func (MockClassifier) Classify(_ context.Context, r models.Report) (int, error) {
	key := strings.ToLower(strings.TrimSpace(r.Title + "|" + r.Description + "|" + r.Category))
	return MinPriority + utils.Bucket(key, MaxPriority), nil
}
