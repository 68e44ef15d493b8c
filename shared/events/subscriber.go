package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	newMessages     = ">"
	pendingMessages = "0"
)

type Handler func(ctx context.Context, event Event) error

// Subscriber consumes one stream as a member of a consumer group. A message
// is acked once its handler succeeds; failed messages stay pending and are
// retried every RetryInterval until MaxAttempts deliveries, then dropped.
type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
	retryInterval time.Duration
	maxAttempts   int64
	logger        *slog.Logger
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	RetryInterval time.Duration
	MaxAttempts   int64
	Logger        *slog.Logger
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = 30 * time.Second
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 5
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		retryInterval: config.RetryInterval,
		maxAttempts:   config.MaxAttempts,
		logger:        config.Logger.With("stream", config.Stream, "group", config.Group, "consumer", config.Consumer),
	}
}

// Start consumes until ctx is cancelled and then returns ctx.Err().
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	s.logger.Info("subscriber started")

	var lastRetry time.Time
	for {
		if ctx.Err() != nil {
			s.logger.Info("subscriber stopping")
			return ctx.Err()
		}

		if time.Since(lastRetry) >= s.retryInterval {
			if err := s.retryPending(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("error retrying pending messages", "error", err)
			}
			lastRetry = time.Now()
		}

		if err := s.readMessages(ctx, newMessages); err != nil && ctx.Err() == nil {
			s.logger.Error("error reading messages", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// readMessages reads a batch starting at id: newMessages blocks for fresh
// entries, pendingMessages returns this consumer's unacked history at once.
func (s *Subscriber) readMessages(ctx context.Context, id string) error {
	block := s.blockDuration
	if id != newMessages {
		block = -1
	}
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, id},
		Count:    s.batchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := s.processMessage(ctx, message); err != nil {
				s.logger.Error("failed to process message", "id", message.ID, "error", err)
				continue
			}
			s.ack(ctx, message.ID)
		}
	}
	return nil
}

// retryPending drops entries that exhausted their attempts and redelivers
// the rest of this consumer's pending entries.
func (s *Subscriber) retryPending(ctx context.Context) error {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		Start:    "-",
		End:      "+",
		Count:    s.batchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to list pending messages: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	for _, p := range pending {
		if p.RetryCount >= s.maxAttempts {
			s.logger.Warn("dropping message after repeated failures", "id", p.ID, "attempts", p.RetryCount)
			s.ack(ctx, p.ID)
		}
	}
	return s.readMessages(ctx, pendingMessages)
}

func (s *Subscriber) ack(ctx context.Context, id string) {
	if err := s.client.XAck(ctx, s.stream, s.group, id).Err(); err != nil {
		s.logger.Error("failed to ack message", "id", id, "error", err)
	}
}

func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) error {
	eventData, ok := message.Values["event"].(string)
	if !ok {
		return fmt.Errorf("message %s has no event field", message.ID)
	}

	var event Event
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return s.handler(ctx, event)
}
