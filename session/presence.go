package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	activeSessionsKey = "active_sessions"
	presenceTimeout   = 500 * time.Millisecond
)

// Presence mirrors registry membership somewhere outside the process.
// Implementations must be best effort: the registry ignores their failures.
type Presence interface {
	Joined(ctx context.Context, id string, lang Language, at time.Time)
	LanguageChanged(ctx context.Context, id string, lang Language)
	// Left drops every given id in one round trip.
	Left(ctx context.Context, ids ...string)
	Refresh(ctx context.Context, ids []string)
	Close() error
}

type nopPresence struct{}

func (nopPresence) Joined(context.Context, string, Language, time.Time) {}
func (nopPresence) LanguageChanged(context.Context, string, Language)   {}
func (nopPresence) Left(context.Context, ...string)                     {}
func (nopPresence) Refresh(context.Context, []string)                   {}
func (nopPresence) Close() error                                        { return nil }

// RedisPresence keeps a hash per session and a set of active ids in Redis
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisPresence connects to Redis. addr may be a redis:// URL or host:port.
func NewRedisPresence(ctx context.Context, addr, password string, ttl time.Duration, logger *zerolog.Logger) (*RedisPresence, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		if strings.Contains(addr, "://") {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = &redis.Options{Addr: addr}
	}
	if password != "" {
		opts.Password = password
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPresence{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "presence").Logger(),
	}, nil
}

func sessionKey(id string) string {
	return "session:" + id
}

func (p *RedisPresence) Joined(ctx context.Context, id string, lang Language, at time.Time) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(id), map[string]interface{}{
		"language":     string(lang),
		"connected_at": at.Format(time.RFC3339),
	})
	pipe.SAdd(ctx, activeSessionsKey, id)
	if p.ttl > 0 {
		pipe.Expire(ctx, sessionKey(id), p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn().Err(err).Str("sid", id).Msg("presence join")
	}
}

func (p *RedisPresence) LanguageChanged(ctx context.Context, id string, lang Language) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()

	if err := p.client.HSet(ctx, sessionKey(id), "language", string(lang)).Err(); err != nil {
		p.logger.Warn().Err(err).Str("sid", id).Msg("presence language")
	}
}

func (p *RedisPresence) Left(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()

	keys := make([]string, 0, len(ids))
	members := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
		members = append(members, id)
	}

	pipe := p.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, activeSessionsKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn().Err(err).Strs("sids", ids).Msg("presence leave")
	}
}

// Refresh pushes the expiry of live sessions forward.
func (p *RedisPresence) Refresh(ctx context.Context, ids []string) {
	if p.ttl <= 0 || len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()

	pipe := p.client.Pipeline()
	for _, id := range ids {
		pipe.Expire(ctx, sessionKey(id), p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn().Err(err).Int("sessions", len(ids)).Msg("presence refresh")
	}
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}
