package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/research/internal/config"
	"github.com/jonesrussell/north-cloud/research/internal/events"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
)

func TestPublisher_NilIsNoOp(t *testing.T) {
	t.Parallel()

	var pub *events.Publisher
	require.NoError(t, pub.Publish(context.Background(), events.Event{EventType: events.SourceCrawled}))
	require.NoError(t, pub.Ping(context.Background()))
	require.NoError(t, pub.Close())
	pub.PublishAsync(events.Event{})

	assert.Nil(t, events.NewPublisher(nil, "s", infralogger.NewNop()))
}

func TestPublisher_PublishAppendsToStream(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pub := events.NewPublisher(client, "research-events", infralogger.NewNop())
	err := pub.Publish(context.Background(), events.Event{
		EventType: events.QueryRunCompleted,
		QueryID:   "q-1",
		Payload:   map[string]any{"results_count": 3},
	})
	require.NoError(t, err)

	entries, err := client.XRange(context.Background(), "research-events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, ok := entries[0].Values["event"].(string)
	require.True(t, ok)

	var got events.Event
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, events.QueryRunCompleted, got.EventType)
	assert.Equal(t, "q-1", got.QueryID)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", got.EventID.String())
	assert.False(t, got.Timestamp.IsZero())
}

func TestConnect_DisabledReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, events.Connect(config.RedisConfig{Enabled: false}, infralogger.NewNop()))
}

func TestConnect_Enabled(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	pub := events.Connect(config.RedisConfig{Enabled: true, Address: mr.Addr(), Stream: "s"}, infralogger.NewNop())
	require.NotNil(t, pub)
	t.Cleanup(func() { _ = pub.Close() })
	require.NoError(t, pub.Ping(context.Background()))
}
