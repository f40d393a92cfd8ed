package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pong-arena/internal/game"
)

const (
	historyKey   = "pong:matches"
	usersKey     = "pong:users" // hash: username -> user id
	userStatsFmt = "pong:stats:%s"
	historyLimit = 1000
)

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// RedisSink keeps a capped match history list and per-user win/loss counters.
type RedisSink struct {
	client redis.Cmdable
}

// NewRedisSink wraps a connected client.
func NewRedisSink(client redis.Cmdable) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) ReportMatchFinished(ctx context.Context, summary game.MatchSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, historyKey, data)
	pipe.LTrim(ctx, historyKey, 0, historyLimit-1)

	for _, p := range []game.Player{summary.Player1, summary.Player2} {
		if p.UserID == "" {
			continue
		}
		key := UserStatsKey(p.UserID)
		pipe.HIncrBy(ctx, key, "played", 1)
		switch {
		case summary.Winner == nil:
			pipe.HIncrBy(ctx, key, "abandoned", 1)
		case summary.Winner.ID == p.ID:
			pipe.HIncrBy(ctx, key, "wins", 1)
		default:
			pipe.HIncrBy(ctx, key, "losses", 1)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write match %s: %w", summary.SessionID, err)
	}
	return nil
}

// UserStatsKey is the hash holding a user's counters.
func UserStatsKey(userID string) string {
	return fmt.Sprintf(userStatsFmt, userID)
}

// RedisResolver looks usernames up in the pong:users hash.
type RedisResolver struct {
	client redis.Cmdable
}

// NewRedisResolver wraps a connected client.
func NewRedisResolver(client redis.Cmdable) *RedisResolver {
	return &RedisResolver{client: client}
}

func (r *RedisResolver) ResolveUserID(ctx context.Context, username string) (string, bool, error) {
	id, err := r.client.HGet(ctx, usersKey, username).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve %q: %w", username, err)
	}
	return id, true, nil
}
