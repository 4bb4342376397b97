package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrTurnInProgress is returned when a session already has an
// in-flight turn.
var ErrTurnInProgress = errors.New("a turn is already in progress for this session")

// turnLockTTL caps how long a crashed turn can hold its lock.
const turnLockTTL = 2 * time.Minute

const lockKeyPrefix = "meridian:turn:"

// RedisTurnLock serializes turns per session id with a Redis SET NX
// lock, enforcing the one-in-flight-turn-per-session invariant.
type RedisTurnLock struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisTurnLock connects to Redis and verifies it with a ping.
func NewRedisTurnLock(redisURL string, logger *zap.Logger) (*RedisTurnLock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisTurnLock{rdb: rdb, logger: logger}, nil
}

// Acquire takes the session's turn lock or fails fast with
// ErrTurnInProgress.
func (l *RedisTurnLock) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockKeyPrefix + sessionID
	ok, err := l.rdb.SetNX(ctx, key, "1", turnLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire turn lock: %w", err)
	}
	if !ok {
		return nil, ErrTurnInProgress
	}
	release := func() {
		// Release outside the turn's context so a cancelled turn
		// still frees its lock.
		if err := l.rdb.Del(context.Background(), key).Err(); err != nil {
			l.logger.Warn("release turn lock failed",
				zap.String("session", sessionID), zap.Error(err))
		}
	}
	return release, nil
}

// Close shuts down the Redis connection.
func (l *RedisTurnLock) Close() error {
	return l.rdb.Close()
}
