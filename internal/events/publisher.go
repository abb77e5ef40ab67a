// Package events publishes research pipeline events to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/research/internal/config"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
)

const (
	asyncPublishTimeout = 5 * time.Second
	connectTimeout      = 5 * time.Second
)

// EventType names a pipeline event.
type EventType string

const (
	QueryRunCompleted EventType = "QUERY_RUN_COMPLETED"
	SourceCrawled     EventType = "SOURCE_CRAWLED"
)

// Event is the JSON envelope written under the "event" field of each stream entry.
type Event struct {
	EventID   uuid.UUID      `json:"event_id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	QueryID   string         `json:"query_id,omitempty"`
	SourceID  string         `json:"source_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Publisher appends events to a stream. A nil *Publisher is a valid no-op.
type Publisher struct {
	client *redis.Client
	stream string
	log    infralogger.Logger
}

// NewPublisher returns nil when client is nil.
func NewPublisher(client *redis.Client, stream string, log infralogger.Logger) *Publisher {
	if client == nil {
		return nil
	}
	return &Publisher{client: client, stream: stream, log: log}
}

var errEmptyAddress = errors.New("redis address is required")

// Connect builds a publisher from cfg. Disabled or unreachable Redis yields a
// nil publisher and a warning; events are best effort.
func Connect(cfg config.RedisConfig, log infralogger.Logger) *Publisher {
	if !cfg.Enabled {
		return nil
	}
	client, err := dial(cfg)
	if err != nil {
		log.Warn("Redis not available, events disabled", infralogger.Error(err))
		return nil
	}
	log.Info("Event publisher initialized",
		infralogger.String("redis_address", cfg.Address),
		infralogger.String("stream", cfg.Stream),
	)
	return NewPublisher(client, cfg.Stream, log)
}

func dial(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, errEmptyAddress
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Ping reports Redis health; nil publishers are healthy.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}

// Publish appends event, filling the id and timestamp when unset.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{"event": string(payload)},
	})
	if publishErr := result.Err(); publishErr != nil {
		return fmt.Errorf("publish to stream: %w", publishErr)
	}

	p.log.Debug("Published research event",
		infralogger.String("event_type", string(event.EventType)),
		infralogger.String("stream_id", result.Val()),
	)
	return nil
}

// PublishAsync publishes in the background with its own timeout and logs failures.
func (p *Publisher) PublishAsync(event Event) {
	if p == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncPublishTimeout)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil {
			p.log.Error("Async publish failed",
				infralogger.String("event_type", string(event.EventType)),
				infralogger.Error(err),
			)
		}
	}()
}
