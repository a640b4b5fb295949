package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fixflow/backend/internal/models"
)

type HTTPClassifier struct {
	client *resty.Client
}

type classifyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Category    string `json:"category"`
}

type classifyResponse struct {
	Priority int    `json:"priority"`
	Label    string `json:"label"`
}

func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPClassifier{client: client}
}

func (h *HTTPClassifier) Classify(ctx context.Context, r models.Report) (int, error) {
	var out classifyResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(classifyRequest{
			Title:       r.Title,
			Description: r.Description,
			Location:    r.Location,
			Category:    r.Category,
		}).
		SetResult(&out).
		Post("/classify")
	if err != nil {
		return 0, fmt.Errorf("classifier request failed: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("classifier returned status %d", resp.StatusCode())
	}
	return Clamp(out.Priority), nil
}
