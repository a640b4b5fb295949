package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/metrics"
)

const (
	TypeAssignment = "assignment"
	TypeEscalation = "escalation"
	TypeReschedule = "reschedule"
)

type Notification struct {
	UserID    string            `json:"user_id"`
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi delivers to every sink and joins the failures.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the service log. It is the sink used when
// neither Redis nor NATS is configured.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Notify(_ context.Context, n Notification) error {
	s.Logger.Info().
		Str("user_id", n.UserID).
		Str("type", n.Type).
		Interface("metadata", n.Metadata).
		Msg(n.Message)
	return nil
}

// Dispatcher is the fire-and-forget front of a Sink: failures are logged and
// counted, never returned to the caller.
type Dispatcher struct {
	Sink    Sink
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Timeout time.Duration
	Now     func() time.Time
}

func (d *Dispatcher) Send(ctx context.Context, n Notification) {
	if d == nil || d.Sink == nil {
		return
	}
	if n.CreatedAt.IsZero() {
		now := time.Now
		if d.Now != nil {
			now = d.Now
		}
		n.CreatedAt = now().UTC()
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := d.Sink.Notify(ctx, n); err != nil {
		d.Metrics.NotificationFailed(n.Type)
		d.Logger.Error().Err(err).
			Str("user_id", n.UserID).
			Str("type", n.Type).
			Msg("notification delivery failed")
	}
}
