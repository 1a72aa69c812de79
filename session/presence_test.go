package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRedisPresenceUnreachable(t *testing.T) {
	logger := zerolog.Nop()

	_, err := NewRedisPresence(context.Background(), "redis://:%zz@localhost", "", time.Minute, &logger)
	require.Error(t, err)

	_, err = NewRedisPresence(context.Background(), "127.0.0.1:1", "", time.Minute, &logger)
	require.Error(t, err)
}

// Runs against a real server when REDIS_URL is set.
func TestRedisPresenceLifecycle(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	logger := zerolog.Nop()

	p, err := NewRedisPresence(ctx, url, os.Getenv("REDIS_PASSWORD"), time.Minute, &logger)
	require.NoError(t, err)
	defer p.Close()

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	const id = "presence-test"
	p.Joined(ctx, id, English, time.Now())
	require.Equal(t, "en", client.HGet(ctx, sessionKey(id), "language").Val())
	require.True(t, client.SIsMember(ctx, activeSessionsKey, id).Val())

	p.LanguageChanged(ctx, id, Urdu)
	require.Equal(t, "ur", client.HGet(ctx, sessionKey(id), "language").Val())

	p.Refresh(ctx, []string{id})
	require.Positive(t, client.TTL(ctx, sessionKey(id)).Val())

	p.Left(ctx, id)
	require.Zero(t, client.Exists(ctx, sessionKey(id)).Val())
	require.False(t, client.SIsMember(ctx, activeSessionsKey, id).Val())
}
