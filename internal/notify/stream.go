package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StreamSink appends notifications to a Redis stream for downstream
// consumers (push, email, in-app feed).
type StreamSink struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

func (s StreamSink) Notify(ctx context.Context, n Notification) error {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.Stream,
		Values: map[string]interface{}{
			"user_id":    n.UserID,
			"type":       n.Type,
			"message":    n.Message,
			"metadata":   string(meta),
			"created_at": n.CreatedAt.Unix(),
		},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	if err := s.Client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.Stream, err)
	}
	return nil
}
