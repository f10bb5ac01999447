package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/domain"
)

// DefaultMaxLen caps each execution stream (approximate trimming)
const DefaultMaxLen = 1000

// StreamsMirror copies published events into one Redis stream per execution
// so consumers outside the process can follow progress
type StreamsMirror struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
	maxLen int64
	ttl    time.Duration
}

// NewStreamsMirror creates a new Redis Streams event mirror. A zero ttl keeps
// streams until they are trimmed.
func NewStreamsMirror(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *StreamsMirror {
	if prefix == "" {
		prefix = "pipewright"
	}
	return &StreamsMirror{
		client: client,
		logger: logger,
		prefix: prefix,
		maxLen: DefaultMaxLen,
		ttl:    ttl,
	}
}

// Mirror appends an event to its execution stream
func (m *StreamsMirror) Mirror(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	streamKey := m.streamKey(event.ExecutionID)
	pipe := m.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: m.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type": string(event.Type),
			"data": string(data),
		},
	})
	if m.ttl > 0 {
		pipe.Expire(ctx, streamKey, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	m.logger.Debug("event mirrored",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("stream", streamKey))

	return nil
}

// History returns the events currently held in an execution stream
func (m *StreamsMirror) History(ctx context.Context, executionID string) ([]domain.Event, error) {
	messages, err := m.client.XRange(ctx, m.streamKey(executionID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	events := make([]domain.Event, 0, len(messages))
	for _, message := range messages {
		event, err := decodeMessage(message)
		if err != nil {
			m.logger.Error("skipping malformed stream entry",
				zap.String("message_id", message.ID),
				zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Tail calls handler for every event of an execution, starting from the
// beginning of the stream, until ctx is done, handler returns an error or a
// terminal execution event is seen
func (m *StreamsMirror) Tail(ctx context.Context, executionID string, handler func(domain.Event) error) error {
	streamKey := m.streamKey(executionID)
	lastID := "0"

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := m.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, lastID},
			Count:   100,
			Block:   time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("failed to read from stream",
				zap.String("stream", streamKey),
				zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				lastID = message.ID
				event, err := decodeMessage(message)
				if err != nil {
					m.logger.Error("skipping malformed stream entry",
						zap.String("message_id", message.ID),
						zap.Error(err))
					continue
				}
				if err := handler(event); err != nil {
					return err
				}
				if event.Type.IsTerminal() {
					return nil
				}
			}
		}
	}
}

func decodeMessage(message redis.XMessage) (domain.Event, error) {
	var event domain.Event
	data, ok := message.Values["data"].(string)
	if !ok {
		return event, fmt.Errorf("invalid message format")
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}

func (m *StreamsMirror) streamKey(executionID string) string {
	return fmt.Sprintf("%s:events:%s", m.prefix, executionID)
}
