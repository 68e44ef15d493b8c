package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStreamMaxLen bounds each stream; trimming is approximate.
const DefaultStreamMaxLen = 100_000

// Publisher appends events to Redis streams as a single JSON "event" field.
type Publisher struct {
	client *redis.Client
	maxLen int64
	now    func() time.Time
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, maxLen: DefaultStreamMaxLen, now: time.Now}
}

// WithMaxLen sets the approximate stream length kept on publish; 0 disables trimming.
func (p *Publisher) WithMaxLen(n int64) *Publisher {
	p.maxLen = n
	return p
}

// Publish appends an event to stream. actor is the username that caused it,
// empty for system actions.
func (p *Publisher) Publish(ctx context.Context, stream, eventType, actor string, data any) error {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: p.now().UTC(),
		Actor:     actor,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"event": payload},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, stream, err)
	}
	return nil
}
