// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ladderworks/challenge-api/internal/models"
)

// leaderboardTTL bounds staleness if an invalidation is ever missed.
const leaderboardTTL = 30 * time.Second

// LeaderboardCache memoizes top-N leaderboard responses in Redis. It is an
// optional layer: every method degrades to a miss (with a warn log) when
// Redis misbehaves, so the store remains the source of truth.
type LeaderboardCache struct {
	rdb *redis.Client
	log *logrus.Logger
}

// NewLeaderboardCache connects a Redis client and verifies the connection.
func NewLeaderboardCache(addr string, db int, logger *logrus.Logger) (*LeaderboardCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	if logger == nil {
		logger = logrus.New()
	}
	return &LeaderboardCache{rdb: rdb, log: logger}, nil
}

// Close releases the client.
func (c *LeaderboardCache) Close() error {
	return c.rdb.Close()
}

func leaderboardKey(n int) string {
	return fmt.Sprintf("leaderboard:%d", n)
}

// GetTop returns the cached leaderboard for n, or ok=false on a miss.
func (c *LeaderboardCache) GetTop(ctx context.Context, n int) ([]models.PlayerRecord, bool) {
	raw, err := c.rdb.Get(ctx, leaderboardKey(n)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.WithError(err).Warn("leaderboard cache read failed")
		return nil, false
	}

	var players []models.PlayerRecord
	if err := json.Unmarshal(raw, &players); err != nil {
		c.log.WithError(err).Warn("leaderboard cache entry corrupt")
		return nil, false
	}
	return players, true
}

// SetTop stores the leaderboard for n.
func (c *LeaderboardCache) SetTop(ctx context.Context, n int, players []models.PlayerRecord) {
	data, err := json.Marshal(players)
	if err != nil {
		c.log.WithError(err).Warn("failed to marshal leaderboard")
		return
	}
	if err := c.rdb.Set(ctx, leaderboardKey(n), data, leaderboardTTL).Err(); err != nil {
		c.log.WithError(err).Warn("leaderboard cache write failed")
	}
}

// InvalidateLeaderboard drops every cached leaderboard. Called after each
// committed result; the key space is tiny (one key per requested limit) so
// KEYS is fine here.
func (c *LeaderboardCache) InvalidateLeaderboard(ctx context.Context) {
	keys, err := c.rdb.Keys(ctx, "leaderboard:*").Result()
	if err != nil {
		c.log.WithError(err).Warn("leaderboard invalidation scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Warn("leaderboard invalidation failed")
	}
}
